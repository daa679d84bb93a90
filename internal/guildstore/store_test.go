package guildstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/omegabot/omegabot/internal/database"
	"github.com/omegabot/omegabot/internal/models"
)

func newTestStore(t *testing.T, legacyDir string) (*Store, *database.Repository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.GuildConfig{}, &models.InfoRecord{}))
	repo := database.NewRepositoryWithDB(db)
	return New(repo, legacyDir), repo
}

func TestEnsureLoadedCreatesAndCaches(t *testing.T) {
	store, repo := newTestStore(t, "")

	first, err := store.EnsureLoaded("g1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "OmegaBot", first.BotName)
	assert.Equal(t, 5, first.AnnouncementDelayHours)

	// The fresh default must already be persisted.
	persisted, err := repo.GetGuildConfig("g1")
	require.NoError(t, err)
	require.NotNil(t, persisted)

	second, err := store.EnsureLoaded("g1")
	require.NoError(t, err)
	assert.Same(t, first, second, "repeat loads must return the identical instance")

	// Mutations through one reference are visible through the other.
	first.AllowAll = true
	assert.True(t, second.AllowAll)
}

func TestEnsureLoadedUsesStoredRecord(t *testing.T) {
	store, repo := newTestStore(t, "")

	stored := models.DefaultGuildConfig("g1")
	stored.BotName = "CustomName"
	require.NoError(t, repo.SaveGuildConfig(stored))

	cfg, err := store.EnsureLoaded("g1")
	require.NoError(t, err)
	assert.Equal(t, "CustomName", cfg.BotName)
	assert.False(t, cfg.Imported)
}

func TestSaveAndForget(t *testing.T) {
	store, repo := newTestStore(t, "")

	assert.Error(t, store.Save("g1"), "saving an unloaded guild must fail")

	cfg, err := store.EnsureLoaded("g1")
	require.NoError(t, err)
	cfg.BotName = "Renamed"
	require.NoError(t, store.Save("g1"))

	persisted, err := repo.GetGuildConfig("g1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", persisted.BotName)

	store.Forget("g1")
	reloaded, err := store.EnsureLoaded("g1")
	require.NoError(t, err)
	assert.NotSame(t, cfg, reloaded, "forget must drop the cached instance")
}

func TestLegacyImportOldestSchema(t *testing.T) {
	dir := t.TempDir()
	legacy := `{
		"botname": "FlaDiBo",
		"streamerChannelId": "c9",
		"announcementDelayHours": 2,
		"announcerMessage": "live: {username}",
		"allowAll": true,
		"streamerList": ["m1", "m2"],
		"streamerMessages": {"m1": "special for m1"},
		"selfPromotionRoles": ["r1"]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "g1.json"), []byte(legacy), 0o644))

	store, repo := newTestStore(t, dir)
	cfg, err := store.EnsureLoaded("g1")
	require.NoError(t, err)

	assert.True(t, cfg.Imported)
	assert.Equal(t, "FlaDiBo", cfg.BotName)
	assert.Equal(t, "c9", cfg.StreamerChannelID)
	assert.Equal(t, 2, cfg.AnnouncementDelayHours)
	assert.True(t, cfg.AllowAll)
	assert.Equal(t, "special for m1", cfg.StreamerList["m1"].Message)
	assert.Contains(t, cfg.StreamerList, "m2")
	assert.Contains(t, cfg.SelfPromotionRoles, "r1")

	persisted, err := repo.GetGuildConfig("g1")
	require.NoError(t, err)
	assert.True(t, persisted.Imported, "imported settings must be persisted")
}

func TestLegacyImportNewerSchema(t *testing.T) {
	dir := t.TempDir()
	legacy := `{
		"botname": "FlaDiBo",
		"streamerList": {"m1": {"channelId": "c1", "message": "custom"}},
		"selfPromotionRoles": {"r1": {"alias": "gamer", "emojiName": "joystick", "channelId": ["c2"]}},
		"commandPermissions": {"!add": ["m5"]},
		"flags": {"allowAll": false, "sayHello": true, "removeJoinCommand": false, "removeLeaveCommand": true}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "g1.json"), []byte(legacy), 0o644))

	store, _ := newTestStore(t, dir)
	cfg, err := store.EnsureLoaded("g1")
	require.NoError(t, err)

	assert.Equal(t, "c1", cfg.StreamerList["m1"].ChannelID)
	assert.Equal(t, "custom", cfg.StreamerList["m1"].Message)

	role := cfg.SelfPromotionRoles["r1"]
	assert.Equal(t, "gamer", role.Alias)
	assert.Equal(t, "joystick", role.EmojiName)
	assert.Equal(t, []string{"c2"}, role.ChannelIDs)

	assert.Equal(t, []string{"m5"}, cfg.CommandPermissions["!add"])
	assert.True(t, cfg.SayHello)
	assert.False(t, cfg.RemoveJoinCommand)
	assert.True(t, cfg.RemoveLeaveCommand)
}

func TestLegacyImportInfos(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "g1.json"), []byte(`{"botname": "FlaDiBo"}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "g1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "g1", "Quote.json"), []byte(`{"data": ["a", "b"]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "g1", "rule.json"), []byte(`{"data": "be nice"}`), 0o644))

	store, repo := newTestStore(t, dir)
	_, err := store.EnsureLoaded("g1")
	require.NoError(t, err)

	quote, err := repo.GetInfo("g1", "quote")
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.True(t, quote.Data.List)
	assert.Equal(t, []string{"a", "b"}, quote.Data.Values)

	rule, err := repo.GetInfo("g1", "rule")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.False(t, rule.Data.List)
	assert.Equal(t, []string{"be nice"}, rule.Data.Values)
}

func TestMissingLegacyFileFallsBackToDefaults(t *testing.T) {
	store, _ := newTestStore(t, t.TempDir())

	cfg, err := store.EnsureLoaded("g1")
	require.NoError(t, err)
	assert.False(t, cfg.Imported)
	assert.Equal(t, "OmegaBot", cfg.BotName)
}
