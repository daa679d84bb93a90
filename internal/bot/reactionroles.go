package bot

import (
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/omegabot/omegabot/internal/models"
)

// messageReactionAdd grants a role when a member reacts with an emoji bound
// to a self-promotion role in an allowed channel. Unbound emoji and
// disallowed channels are ignored without feedback.
func (b *Bot) messageReactionAdd(s *discordgo.Session, event *discordgo.MessageReactionAdd) {
	b.routeReaction(s, event.MessageReaction, true)
}

// messageReactionRemove revokes the role again when the reaction disappears.
func (b *Bot) messageReactionRemove(s *discordgo.Session, event *discordgo.MessageReactionRemove) {
	b.routeReaction(s, event.MessageReaction, false)
}

func (b *Bot) routeReaction(s *discordgo.Session, reaction *discordgo.MessageReaction, grant bool) {
	if reaction.GuildID == "" || reaction.UserID == s.State.User.ID {
		return
	}
	if member, err := s.State.Member(reaction.GuildID, reaction.UserID); err == nil && member.User != nil && member.User.Bot {
		return
	}

	cfg, err := b.Store.EnsureLoaded(reaction.GuildID)
	if err != nil {
		log.Printf("Error loading settings for guild %s: %v", reaction.GuildID, err)
		return
	}

	roleID, role, ok := cfg.RoleForEmoji(reaction.Emoji.Name)
	if !ok || !role.AllowedIn(reaction.ChannelID) {
		return
	}
	if !b.canManageRole(reaction.GuildID, roleID) {
		return
	}

	if grant {
		err = s.GuildMemberRoleAdd(reaction.GuildID, reaction.UserID, roleID)
	} else {
		err = s.GuildMemberRoleRemove(reaction.GuildID, reaction.UserID, roleID)
	}
	if err != nil {
		log.Printf("Guild %s: reaction role change for %s failed: %v", reaction.GuildID, reaction.UserID, err)
	}
}

// handleRoleAlias treats a plain chat message matching a role alias as an
// implicit join, restricted to the role's channel allow-list.
func (b *Bot) handleRoleAlias(s *discordgo.Session, m *discordgo.MessageCreate, cfg *models.GuildConfig) {
	alias := strings.TrimSpace(m.Content)
	if alias == "" {
		return
	}

	roleID, role, ok := cfg.RoleForAlias(alias)
	if !ok || !role.AllowedIn(m.ChannelID) {
		return
	}
	if !b.canManageRole(m.GuildID, roleID) {
		return
	}

	if err := s.GuildMemberRoleAdd(m.GuildID, m.Author.ID, roleID); err != nil {
		log.Printf("Guild %s: alias role grant for %s failed: %v", m.GuildID, m.Author.ID, err)
		return
	}
	b.reactOK(m.Message)
}

// canManageRole reports whether the engine holds the manage-roles permission
// and outranks the target role. Role hierarchy only lets a member assign
// roles strictly below their own highest role.
func (b *Bot) canManageRole(guildID, roleID string) bool {
	guild, err := b.Session.State.Guild(guildID)
	if err != nil {
		return false
	}
	self, err := b.Session.State.Member(guildID, b.Session.State.User.ID)
	if err != nil {
		return false
	}

	positions := make(map[string]int, len(guild.Roles))
	canManage := false
	for _, role := range guild.Roles {
		positions[role.ID] = role.Position
	}
	highest := 0
	for _, id := range self.Roles {
		role, err := b.Session.State.Role(guildID, id)
		if err != nil {
			continue
		}
		if role.Permissions&(discordgo.PermissionManageRoles|discordgo.PermissionAdministrator) != 0 {
			canManage = true
		}
		if role.Position > highest {
			highest = role.Position
		}
	}
	return canManage && positions[roleID] < highest
}
