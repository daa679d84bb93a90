package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoDataScalarRoundTrip(t *testing.T) {
	var d InfoData
	d.Append("only entry")

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"only entry"`, string(raw))

	var decoded InfoData
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.False(t, decoded.List)
	assert.Equal(t, []string{"only entry"}, decoded.Values)
}

func TestInfoDataPromotesToList(t *testing.T) {
	var d InfoData
	d.Append("first")
	assert.False(t, d.List)

	d.Append("second")
	assert.True(t, d.List)
	assert.Equal(t, []string{"first", "second"}, d.Values)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `["first","second"]`, string(raw))
}

func TestInfoDataUnmarshalList(t *testing.T) {
	var d InfoData
	require.NoError(t, json.Unmarshal([]byte(`["a","b","c"]`), &d))
	assert.True(t, d.List)
	assert.Len(t, d.Values, 3)
}

func TestInfoDataPick(t *testing.T) {
	var d InfoData
	assert.Equal(t, "", d.Pick())

	d.Append("solo")
	assert.Equal(t, "solo", d.Pick())

	d.Append("pair")
	d.Append("trio")

	// Every entry should show up over enough draws, and the input order
	// must survive the picking.
	seen := map[string]int{}
	for i := 0; i < 1000; i++ {
		seen[d.Pick()]++
	}
	assert.Len(t, seen, 3)
	for value, count := range seen {
		assert.Greater(t, count, 200, "entry %q drawn too rarely", value)
	}
	assert.Equal(t, []string{"solo", "pair", "trio"}, d.Values)
}

func TestSelfPromotionRoleAllowedIn(t *testing.T) {
	open := SelfPromotionRole{}
	assert.True(t, open.AllowedIn("anywhere"))

	gated := SelfPromotionRole{ChannelIDs: []string{"c1", "c2"}}
	assert.True(t, gated.AllowedIn("c2"))
	assert.False(t, gated.AllowedIn("c3"))
}

func TestPermissionListAllows(t *testing.T) {
	perms := PermissionList{"!add": {"m1", "m2"}}
	assert.True(t, perms.Allows("!add", "m2"))
	assert.False(t, perms.Allows("!add", "m3"))
	assert.False(t, perms.Allows("!remove", "m1"))
}

func TestGuildConfigRoleLookups(t *testing.T) {
	cfg := DefaultGuildConfig("g1")
	cfg.SelfPromotionRoles["r1"] = SelfPromotionRole{Alias: "gamer", EmojiName: "joystick"}

	roleID, role, ok := cfg.RoleForEmoji("joystick")
	require.True(t, ok)
	assert.Equal(t, "r1", roleID)
	assert.Equal(t, "gamer", role.Alias)

	_, _, ok = cfg.RoleForEmoji("")
	assert.False(t, ok)

	_, _, ok = cfg.RoleForEmoji("unbound")
	assert.False(t, ok)

	roleID, _, ok = cfg.RoleForAlias("gamer")
	require.True(t, ok)
	assert.Equal(t, "r1", roleID)

	_, _, ok = cfg.RoleForAlias("not an alias")
	assert.False(t, ok)
}

func TestDefaultGuildConfig(t *testing.T) {
	cfg := DefaultGuildConfig("g1")
	assert.Equal(t, "OmegaBot", cfg.BotName)
	assert.Equal(t, 5, cfg.AnnouncementDelayHours)
	assert.True(t, cfg.RemoveJoinCommand)
	assert.True(t, cfg.RemoveLeaveCommand)
	assert.False(t, cfg.AllowAll)
	assert.NotNil(t, cfg.StreamerList)
	assert.NotNil(t, cfg.SelfPromotionRoles)
	assert.NotNil(t, cfg.CommandPermissions)
}
