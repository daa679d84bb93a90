package models

// StreamerOverride holds per-member announcement settings. Presence of a member
// in the streamer list is the authorization to be announced at all (unless the
// guild runs with AllowAll).
type StreamerOverride struct {
	ChannelID string `json:"channelId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// StreamerList maps member IDs to their announcement overrides.
type StreamerList map[string]StreamerOverride

// SelfPromotionRole describes a role the bot may grant or revoke on request.
// An empty ChannelIDs list means the role may be requested from any channel.
type SelfPromotionRole struct {
	Alias      string   `json:"alias,omitempty"`
	EmojiName  string   `json:"emojiName,omitempty"`
	ChannelIDs []string `json:"channelIds,omitempty"`
}

// AllowedIn reports whether the role may be requested from the given channel.
func (r SelfPromotionRole) AllowedIn(channelID string) bool {
	if len(r.ChannelIDs) == 0 {
		return true
	}
	for _, id := range r.ChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

// RoleList maps role IDs to their self-promotion settings.
type RoleList map[string]SelfPromotionRole

// PermissionList maps a command token to the member IDs explicitly allowed to
// use it, independent of admin status.
type PermissionList map[string][]string

// Allows reports whether the member is allow-listed for the command token.
func (p PermissionList) Allows(token, memberID string) bool {
	for _, id := range p[token] {
		if id == memberID {
			return true
		}
	}
	return false
}

// GuildConfig is the per-guild configuration record. One row per guild,
// mutated in place by command handlers and persisted explicitly via the store.
type GuildConfig struct {
	GuildID                string         `gorm:"primaryKey;column:guild_id"`
	BotName                string         `gorm:"column:bot_name"`
	StreamerChannelID      string         `gorm:"column:streamer_channel_id"`
	AnnouncementDelayHours int            `gorm:"column:announcement_delay_hours"`
	AnnouncerMessage       string         `gorm:"column:announcer_message"`
	WelcomeMessage         string         `gorm:"column:welcome_message"`
	AllowAll               bool           `gorm:"column:allow_all"`
	SayHello               bool           `gorm:"column:say_hello"`
	RemoveJoinCommand      bool           `gorm:"column:remove_join_command"`
	RemoveLeaveCommand     bool           `gorm:"column:remove_leave_command"`
	StreamerList           StreamerList   `gorm:"column:streamer_list;serializer:json"`
	SelfPromotionRoles     RoleList       `gorm:"column:self_promotion_roles;serializer:json"`
	CommandPermissions     PermissionList `gorm:"column:command_permissions;serializer:json"`
	Imported               bool           `gorm:"column:imported"`
	UpdatedAt              int64          `gorm:"autoUpdateTime"`
}

func (GuildConfig) TableName() string {
	return "guild_configs"
}

// DefaultGuildConfig returns a fresh configuration with the built-in defaults.
func DefaultGuildConfig(guildID string) *GuildConfig {
	return &GuildConfig{
		GuildID:                guildID,
		BotName:                "OmegaBot",
		AnnouncementDelayHours: 5,
		RemoveJoinCommand:      true,
		RemoveLeaveCommand:     true,
		StreamerList:           StreamerList{},
		SelfPromotionRoles:     RoleList{},
		CommandPermissions:     PermissionList{},
	}
}

// RoleForEmoji returns the self-promotion role bound to the emoji name.
func (c *GuildConfig) RoleForEmoji(emojiName string) (string, SelfPromotionRole, bool) {
	if emojiName == "" {
		return "", SelfPromotionRole{}, false
	}
	for roleID, role := range c.SelfPromotionRoles {
		if role.EmojiName == emojiName {
			return roleID, role, true
		}
	}
	return "", SelfPromotionRole{}, false
}

// RoleForAlias returns the self-promotion role whose alias equals the full
// message text.
func (c *GuildConfig) RoleForAlias(text string) (string, SelfPromotionRole, bool) {
	if text == "" {
		return "", SelfPromotionRole{}, false
	}
	for roleID, role := range c.SelfPromotionRoles {
		if role.Alias != "" && role.Alias == text {
			return roleID, role, true
		}
	}
	return "", SelfPromotionRole{}, false
}
