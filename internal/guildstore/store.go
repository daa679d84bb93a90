package guildstore

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/omegabot/omegabot/internal/database"
	"github.com/omegabot/omegabot/internal/models"
)

// Store caches one configuration record per guild. Records are loaded lazily
// on first reference, created with defaults when missing, and handed out as
// the same in-memory instance for the process lifetime. Command handlers
// mutate the cached record in place and persist it explicitly via Save.
type Store struct {
	repo      *database.Repository
	legacyDir string

	mu      sync.Mutex
	configs map[string]*models.GuildConfig
	loaded  map[string]bool
}

// New creates a store. legacyDir points at the old flat-file data directory
// and may be empty to disable the one-time import.
func New(repo *database.Repository, legacyDir string) *Store {
	return &Store{
		repo:      repo,
		legacyDir: legacyDir,
		configs:   make(map[string]*models.GuildConfig),
		loaded:    make(map[string]bool),
	}
}

// EnsureLoaded returns the cached configuration for a guild, fetching or
// creating it on first reference. Subsequent calls return the identical
// instance without touching the repository.
func (s *Store) EnsureLoaded(guildID string) (*models.GuildConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded[guildID] {
		return s.configs[guildID], nil
	}

	cfg, err := s.repo.GetGuildConfig(guildID)
	if err != nil {
		return nil, fmt.Errorf("loading guild %s: %w", guildID, err)
	}
	if cfg == nil {
		cfg = s.importLegacy(guildID)
		if err := s.repo.SaveGuildConfig(cfg); err != nil {
			return nil, fmt.Errorf("persisting guild %s: %w", guildID, err)
		}
	}

	s.configs[guildID] = cfg
	s.loaded[guildID] = true
	return cfg, nil
}

// Save persists the cached record for a guild. Callers are expected to report
// the result to the requester; a failure never crashes the process.
func (s *Store) Save(guildID string) error {
	s.mu.Lock()
	cfg := s.configs[guildID]
	s.mu.Unlock()
	if cfg == nil {
		return fmt.Errorf("guild %s not loaded", guildID)
	}
	return s.repo.SaveGuildConfig(cfg)
}

// Forget drops the cached record so a later reference loads fresh. Used on
// guild removal.
func (s *Store) Forget(guildID string) {
	s.mu.Lock()
	delete(s.configs, guildID)
	delete(s.loaded, guildID)
	s.mu.Unlock()
}

// importLegacy builds a populated default from the old flat-file storage.
// Best effort: any read or parse failure is logged and the default stands.
func (s *Store) importLegacy(guildID string) *models.GuildConfig {
	cfg := models.DefaultGuildConfig(guildID)
	if s.legacyDir == "" {
		return cfg
	}

	file := filepath.Join(s.legacyDir, guildID+".json")
	raw, err := os.ReadFile(file)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Guild %s: legacy config unreadable: %v", guildID, err)
		}
		return cfg
	}

	var legacy legacyGuildConfig
	if err := json.Unmarshal(raw, &legacy); err != nil {
		log.Printf("Guild %s: legacy config unparseable: %v", guildID, err)
		return cfg
	}
	legacy.applyTo(cfg)
	cfg.Imported = true
	log.Printf("Guild %s: legacy settings found and imported", guildID)

	s.importLegacyInfos(guildID)
	return cfg
}

// importLegacyInfos migrates the per-topic snippet files stored next to the
// legacy guild config.
func (s *Store) importLegacyInfos(guildID string) {
	dir := filepath.Join(s.legacyDir, guildID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Printf("Guild %s: legacy info %s unreadable: %v", guildID, entry.Name(), err)
			continue
		}
		var payload struct {
			Data models.InfoData `json:"data"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			log.Printf("Guild %s: legacy info %s unparseable: %v", guildID, entry.Name(), err)
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		record := &models.InfoRecord{GuildID: guildID, Name: strings.ToLower(name), Data: payload.Data}
		if err := s.repo.SaveInfo(record); err != nil {
			log.Printf("Guild %s: legacy info %s not migrated: %v", guildID, name, err)
			continue
		}
		log.Printf("Guild %s: legacy info <%s> imported", guildID, name)
	}
}

// legacyGuildConfig covers both historic flat-file schemas: the oldest kept
// streamerList as a plain ID array with messages in a separate map and
// selfPromotionRoles as an ID array; the newer one already used object maps.
type legacyGuildConfig struct {
	BotName                string          `json:"botname"`
	StreamerChannelID      string          `json:"streamerChannelId"`
	AnnouncementDelayHours int             `json:"announcementDelayHours"`
	AnnouncerMessage       string          `json:"announcerMessage"`
	WelcomeMessage         string          `json:"welcomeMessage"`
	AllowAll               bool            `json:"allowAll"`
	StreamerList           json.RawMessage `json:"streamerList"`
	StreamerMessages       map[string]string `json:"streamerMessages"`
	SelfPromotionRoles     json.RawMessage `json:"selfPromotionRoles"`
	CommandPermissions     map[string][]string `json:"commandPermissions"`
	Flags                  *struct {
		AllowAll           bool `json:"allowAll"`
		SayHello           bool `json:"sayHello"`
		RemoveJoinCommand  bool `json:"removeJoinCommand"`
		RemoveLeaveCommand bool `json:"removeLeaveCommand"`
	} `json:"flags"`
}

func (l *legacyGuildConfig) applyTo(cfg *models.GuildConfig) {
	if l.BotName != "" {
		cfg.BotName = l.BotName
	}
	cfg.StreamerChannelID = l.StreamerChannelID
	if l.AnnouncementDelayHours > 0 {
		cfg.AnnouncementDelayHours = l.AnnouncementDelayHours
	}
	cfg.AnnouncerMessage = l.AnnouncerMessage
	cfg.WelcomeMessage = l.WelcomeMessage
	cfg.AllowAll = l.AllowAll
	if l.Flags != nil {
		cfg.AllowAll = l.Flags.AllowAll
		cfg.SayHello = l.Flags.SayHello
		cfg.RemoveJoinCommand = l.Flags.RemoveJoinCommand
		cfg.RemoveLeaveCommand = l.Flags.RemoveLeaveCommand
	}
	for token, members := range l.CommandPermissions {
		cfg.CommandPermissions[token] = members
	}
	l.applyStreamers(cfg)
	l.applyRoles(cfg)
}

func (l *legacyGuildConfig) applyStreamers(cfg *models.GuildConfig) {
	if len(l.StreamerList) == 0 {
		return
	}
	var ids []string
	if err := json.Unmarshal(l.StreamerList, &ids); err == nil {
		for _, id := range ids {
			cfg.StreamerList[id] = models.StreamerOverride{Message: l.StreamerMessages[id]}
		}
		return
	}
	var entries map[string]struct {
		ChannelID string `json:"channelId"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(l.StreamerList, &entries); err != nil {
		log.Printf("Legacy streamer list unparseable: %v", err)
		return
	}
	for id, entry := range entries {
		cfg.StreamerList[id] = models.StreamerOverride{ChannelID: entry.ChannelID, Message: entry.Message}
	}
}

func (l *legacyGuildConfig) applyRoles(cfg *models.GuildConfig) {
	if len(l.SelfPromotionRoles) == 0 {
		return
	}
	var ids []string
	if err := json.Unmarshal(l.SelfPromotionRoles, &ids); err == nil {
		for _, id := range ids {
			cfg.SelfPromotionRoles[id] = models.SelfPromotionRole{}
		}
		return
	}
	var entries map[string]struct {
		Alias     string   `json:"alias"`
		EmojiName string   `json:"emojiName"`
		ChannelID []string `json:"channelId"`
	}
	if err := json.Unmarshal(l.SelfPromotionRoles, &entries); err != nil {
		log.Printf("Legacy role list unparseable: %v", err)
		return
	}
	for id, entry := range entries {
		cfg.SelfPromotionRoles[id] = models.SelfPromotionRole{
			Alias:      entry.Alias,
			EmojiName:  entry.EmojiName,
			ChannelIDs: entry.ChannelID,
		}
	}
}
