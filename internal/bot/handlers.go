package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/omegabot/omegabot/internal/models"
)

// Topic names that collide with built-in commands cannot be used for info
// snippets.
var reservedInfoNames = map[string]bool{
	"help":     true,
	"info":     true,
	"wiki":     true,
	"roles":    true,
	"streamer": true,
}

const (
	// helpChunkSize keeps help output below the platform's 2000 character
	// message limit with headroom for the code fences.
	helpChunkSize = 1900

	// clearMessageCap bounds a single !!clear run.
	clearMessageCap = 500
)

func (b *Bot) cmdHelp(ctx *CommandContext) {
	if len(ctx.Args) > 0 && strings.EqualFold(ctx.Args[0], "announcementMsg") {
		b.send(ctx.Message.ChannelID, "The announcement message supports these placeholders:\n"+
			"```\n"+
			"{username} | The display name of the streamer\n"+
			"{title}    | The name of the game or activity\n"+
			"{detail}   | The stream title\n"+
			"{url}      | The link to the stream\n"+
			"```\n"+
			"The welcome message supports {membername} and {memberid}.")
		return
	}

	var public, restricted []string
	for _, cmd := range b.commands {
		switch cmd.Tier {
		case TierPublic:
			public = append(public, cmd.Help)
		case TierRestricted:
			restricted = append(restricted, cmd.Help)
		}
	}
	sort.Strings(public)
	sort.Strings(restricted)

	lines := []string{"Commands for everybody:"}
	lines = append(lines, public...)
	lines = append(lines, "", "Commands for admins and chosen ones:")
	lines = append(lines, restricted...)

	for _, chunk := range chunkLines(lines, helpChunkSize) {
		b.send(ctx.Message.ChannelID, "```\n"+chunk+"\n```")
	}
}

// chunkLines groups lines into blocks no longer than limit characters, never
// splitting a single line.
func chunkLines(lines []string, limit int) []string {
	var chunks []string
	var current strings.Builder
	for _, line := range lines {
		if current.Len() > 0 && current.Len()+len(line)+1 > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func (b *Bot) cmdInfo(ctx *CommandContext) {
	if len(ctx.Args) == 0 || !strings.EqualFold(ctx.Args[0], "streamer") {
		b.send(ctx.Message.ChannelID, "Try `?info streamer`.")
		return
	}

	cfg := ctx.Config
	channel := "not set"
	if cfg.StreamerChannelID != "" {
		channel = "<#" + cfg.StreamerChannelID + ">"
	}
	delay := cfg.AnnouncementDelayHours
	if delay <= 0 {
		delay = 5
	}
	message := cfg.AnnouncerMessage
	if message == "" {
		message = defaultAnnouncerMessage
	}

	b.send(ctx.Message.ChannelID, fmt.Sprintf(
		"Streamer announcement settings:\n"+
			"Announce everybody: %t\n"+
			"Announcement channel: %s\n"+
			"Delay between announcements: %d hours\n"+
			"Message: %s",
		cfg.AllowAll, channel, delay, message))
}

func (b *Bot) cmdStreamers(ctx *CommandContext) {
	if len(ctx.Config.StreamerList) == 0 {
		b.send(ctx.Message.ChannelID, "Nobody is on the streamer list yet, use `!addStreamer @name` to change that.")
		return
	}

	ids := make([]string, 0, len(ctx.Config.StreamerList))
	for id := range ctx.Config.StreamerList {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var lines []string
	for _, id := range ids {
		line := "<@!" + id + ">"
		if override := ctx.Config.StreamerList[id]; override.ChannelID != "" {
			line += " (announced in <#" + override.ChannelID + ">)"
		}
		lines = append(lines, line)
	}
	b.send(ctx.Message.ChannelID, "I announce these members when they go live:\n"+strings.Join(lines, "\n"))
}

func (b *Bot) cmdRoles(ctx *CommandContext) {
	if len(ctx.Config.SelfPromotionRoles) == 0 {
		b.send(ctx.Message.ChannelID, "There are no roles to join right now.")
		return
	}

	ids := make([]string, 0, len(ctx.Config.SelfPromotionRoles))
	for id := range ctx.Config.SelfPromotionRoles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var lines []string
	for _, id := range ids {
		role := ctx.Config.SelfPromotionRoles[id]
		line := "<@&" + id + ">"
		var extras []string
		if role.Alias != "" {
			extras = append(extras, "say \""+role.Alias+"\"")
		}
		if role.EmojiName != "" {
			extras = append(extras, "react with :"+role.EmojiName+":")
		}
		if len(extras) > 0 {
			line += " (" + strings.Join(extras, " or ") + ")"
		}
		lines = append(lines, line)
	}
	b.send(ctx.Message.ChannelID, "You can join these roles with `!join @role`:\n"+strings.Join(lines, "\n"))
}

func (b *Bot) cmdWiki(ctx *CommandContext) {
	topic := ctx.Rest(0)
	if topic == "" {
		b.send(ctx.Message.ChannelID, "Wiki about what?")
		return
	}
	b.send(ctx.Message.ChannelID,
		"https://en.wikipedia.org/wiki/Special:Search?search="+url.QueryEscape(topic))
}

func (b *Bot) cmdJoin(ctx *CommandContext) {
	b.selfAssignRole(ctx, true)
}

func (b *Bot) cmdLeave(ctx *CommandContext) {
	b.selfAssignRole(ctx, false)
}

// selfAssignRole handles !join and !leave: the mentioned role must be on the
// self-promotion list and assignable by the engine. The invoking message is
// removed afterwards when the guild is configured that way.
func (b *Bot) selfAssignRole(ctx *CommandContext, join bool) {
	if len(ctx.Message.MentionRoles) == 0 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "You need to mention the role, like `!join @role`.")
		return
	}
	roleID := ctx.Message.MentionRoles[0]

	if _, ok := ctx.Config.SelfPromotionRoles[roleID]; !ok {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Sorry, I am not allowed to hand out that role.")
		return
	}

	if !b.canManageRole(ctx.GuildID, roleID) {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "I lack the permission to manage that role, poke an admin.")
		return
	}

	var err error
	if join {
		err = ctx.Session.GuildMemberRoleAdd(ctx.GuildID, ctx.Message.Author.ID, roleID)
	} else {
		err = ctx.Session.GuildMemberRoleRemove(ctx.GuildID, ctx.Message.Author.ID, roleID)
	}
	if err != nil {
		log.Printf("Guild %s: role change for %s failed: %v", ctx.GuildID, ctx.Message.Author.ID, err)
		b.reactFail(ctx.Message.Message)
		return
	}

	removeInvocation := (join && ctx.Config.RemoveJoinCommand) || (!join && ctx.Config.RemoveLeaveCommand)
	if removeInvocation {
		if err := ctx.Session.ChannelMessageDelete(ctx.Message.ChannelID, ctx.Message.ID); err != nil {
			log.Printf("Guild %s: could not remove command message: %v", ctx.GuildID, err)
		}
		return
	}
	b.reactOK(ctx.Message.Message)
}

func (b *Bot) cmdAddInfo(ctx *CommandContext) {
	if len(ctx.Args) < 2 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Usage: `!add [name] [text]`.")
		return
	}
	name := strings.ToLower(ctx.Args[0])
	if reservedInfoNames[name] {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "That name is taken by one of my own commands, pick another one.")
		return
	}

	if err := b.Repo.AppendInfo(ctx.GuildID, name, ctx.Rest(1)); err != nil {
		log.Printf("Guild %s: storing info %q failed: %v", ctx.GuildID, name, err)
		b.reactFail(ctx.Message.Message)
		return
	}
	b.reactOK(ctx.Message.Message)
}

func (b *Bot) cmdRemoveInfo(ctx *CommandContext) {
	if len(ctx.Args) != 1 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Usage: `!remove [name]`.")
		return
	}
	if err := b.Repo.RemoveInfo(ctx.GuildID, ctx.Args[0]); err != nil {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, fmt.Sprintf("There is nothing stored under %q.", strings.ToLower(ctx.Args[0])))
		return
	}
	b.reactOK(ctx.Message.Message)
}

func (b *Bot) cmdAddStreamer(ctx *CommandContext) {
	if len(ctx.Message.Mentions) == 0 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Mention who you want announced, like `!addStreamer @name`.")
		return
	}
	for _, user := range ctx.Message.Mentions {
		if _, ok := ctx.Config.StreamerList[user.ID]; !ok {
			ctx.Config.StreamerList[user.ID] = models.StreamerOverride{}
		}
	}
	b.ackSave(ctx)
}

func (b *Bot) cmdRemoveStreamer(ctx *CommandContext) {
	if len(ctx.Message.Mentions) == 0 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Mention who you want off the list, like `!removeStreamer @name`.")
		return
	}
	for _, user := range ctx.Message.Mentions {
		delete(ctx.Config.StreamerList, user.ID)
	}
	b.ackSave(ctx)
}

func (b *Bot) cmdSetStreamer(ctx *CommandContext) {
	if len(ctx.Args) < 2 || len(ctx.Message.Mentions) == 0 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Usage: `!setStreamer [channelId|message] [value] @name`.")
		return
	}
	user := ctx.Message.Mentions[0]
	if _, ok := ctx.Config.StreamerList[user.ID]; !ok {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "That member is not on the streamer list, add them first with `!addStreamer`.")
		return
	}

	override := ctx.Config.StreamerList[user.ID]
	switch prop := ctx.Args[0]; {
	case strings.EqualFold(prop, "channelId"):
		channelID := parseChannelID(ctx.Args[1])
		if channelID == "" {
			b.reactFail(ctx.Message.Message)
			b.send(ctx.Message.ChannelID, "I could not make out a channel in there.")
			return
		}
		override.ChannelID = channelID
	case strings.EqualFold(prop, "message"):
		override.Message = stripMentionTokens(ctx.Args[1:], user.ID)
	default:
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "I only know the props `channelId` and `message`.")
		return
	}

	ctx.Config.StreamerList[user.ID] = override
	b.ackSave(ctx)
}

// parseChannelID accepts either a raw channel id or a channel mention of the
// form <#id>.
func parseChannelID(token string) string {
	token = strings.TrimSuffix(strings.TrimPrefix(token, "<#"), ">")
	if token == "" {
		return ""
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return token
}

// stripMentionTokens joins tokens into free text, dropping the mention of the
// given user wherever it appears.
func stripMentionTokens(tokens []string, userID string) string {
	var kept []string
	for _, t := range tokens {
		if t == "<@"+userID+">" || t == "<@!"+userID+">" {
			continue
		}
		kept = append(kept, t)
	}
	return strings.Join(kept, " ")
}

func (b *Bot) cmdSetStreamChannel(ctx *CommandContext) {
	ctx.Config.StreamerChannelID = ctx.Message.ChannelID
	b.ackSave(ctx)
}

func (b *Bot) cmdSetAllowAll(ctx *CommandContext) {
	if len(ctx.Args) != 1 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Usage: `!setAllowAll [true|false]`.")
		return
	}
	value, err := strconv.ParseBool(ctx.Args[0])
	if err != nil {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "That has to be `true` or `false`.")
		return
	}
	ctx.Config.AllowAll = value
	b.ackSave(ctx)
}

func (b *Bot) cmdSet(ctx *CommandContext) {
	if len(ctx.Args) < 1 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Usage: `!set [prop] [value]`, see `?help`.")
		return
	}

	prop := ctx.Args[0]
	switch {
	case strings.EqualFold(prop, "name"):
		name := ctx.Rest(1)
		if name == "" {
			b.reactFail(ctx.Message.Message)
			return
		}
		ctx.Config.BotName = name
		if err := ctx.Session.GuildMemberNickname(ctx.GuildID, "@me", name); err != nil {
			log.Printf("Guild %s: could not apply nickname: %v", ctx.GuildID, err)
		}
		b.ackSave(ctx)

	case strings.EqualFold(prop, "allowAll"):
		ctx.Args = ctx.Args[1:]
		b.cmdSetAllowAll(ctx)

	case strings.EqualFold(prop, "streamerChannel"):
		if len(ctx.Args) >= 2 {
			channelID := parseChannelID(ctx.Args[1])
			if channelID == "" {
				b.reactFail(ctx.Message.Message)
				b.send(ctx.Message.ChannelID, "I could not make out a channel in there.")
				return
			}
			ctx.Config.StreamerChannelID = channelID
			b.ackSave(ctx)
			return
		}
		b.cmdSetStreamChannel(ctx)

	case strings.EqualFold(prop, "announcementDelayHours"):
		if len(ctx.Args) < 2 {
			b.reactFail(ctx.Message.Message)
			return
		}
		hours, err := strconv.Atoi(ctx.Args[1])
		if err != nil || hours < 1 {
			b.reactFail(ctx.Message.Message)
			b.send(ctx.Message.ChannelID, "The delay has to be a number of hours, at least 1.")
			return
		}
		ctx.Config.AnnouncementDelayHours = hours
		b.ackSave(ctx)

	case strings.EqualFold(prop, "announcementMsg"):
		ctx.Config.AnnouncerMessage = ctx.Rest(1)
		b.ackSave(ctx)

	case strings.EqualFold(prop, "welcomeMsg"):
		ctx.Config.WelcomeMessage = ctx.Rest(1)
		b.ackSave(ctx)

	case strings.EqualFold(prop, "sayHello"):
		value, err := strconv.ParseBool(ctx.Rest(1))
		if err != nil {
			b.reactFail(ctx.Message.Message)
			return
		}
		ctx.Config.SayHello = value
		b.ackSave(ctx)

	case strings.EqualFold(prop, "removeJoinCommand"):
		value, err := strconv.ParseBool(ctx.Rest(1))
		if err != nil {
			b.reactFail(ctx.Message.Message)
			return
		}
		ctx.Config.RemoveJoinCommand = value
		b.ackSave(ctx)

	case strings.EqualFold(prop, "removeLeaveCommand"):
		value, err := strconv.ParseBool(ctx.Rest(1))
		if err != nil {
			b.reactFail(ctx.Message.Message)
			return
		}
		ctx.Config.RemoveLeaveCommand = value
		b.ackSave(ctx)

	case strings.EqualFold(prop, "streamer"):
		ctx.Args = ctx.Args[1:]
		b.cmdSetStreamer(ctx)

	case strings.EqualFold(prop, "role"):
		b.setRoleConfig(ctx)

	default:
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "I don't know that setting, check `?help`.")
	}
}

// setRoleConfig wires a role into the self-promotion list with its alias,
// emoji and channel allow-list:
//
//	!set role @role #channel... [alias] [emoji]
//
// Channels may be mentioned anywhere after the role; the first remaining
// token becomes the alias, the second the emoji name.
func (b *Bot) setRoleConfig(ctx *CommandContext) {
	if len(ctx.Message.MentionRoles) == 0 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Usage: `!set role @role #channel [alias] [emoji]`.")
		return
	}
	roleID := ctx.Message.MentionRoles[0]

	role := ctx.Config.SelfPromotionRoles[roleID]
	role.ChannelIDs = nil
	var words []string
	for _, token := range ctx.Args[1:] {
		if token == "<@&"+roleID+">" {
			continue
		}
		if channelID := parseChannelID(token); channelID != "" && strings.HasPrefix(token, "<#") {
			role.ChannelIDs = append(role.ChannelIDs, channelID)
			continue
		}
		words = append(words, token)
	}
	if len(words) > 0 {
		role.Alias = words[0]
	}
	if len(words) > 1 {
		role.EmojiName = strings.Trim(words[1], ":")
	}

	ctx.Config.SelfPromotionRoles[roleID] = role
	b.ackSave(ctx)
}

func (b *Bot) cmdUnset(ctx *CommandContext) {
	if len(ctx.Args) < 1 || !strings.EqualFold(ctx.Args[0], "role") || len(ctx.Message.MentionRoles) == 0 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Usage: `!unset role @role`.")
		return
	}
	delete(ctx.Config.SelfPromotionRoles, ctx.Message.MentionRoles[0])
	b.ackSave(ctx)
}

func (b *Bot) cmdRolesAdd(ctx *CommandContext) {
	if len(ctx.Message.MentionRoles) == 0 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Mention the roles I should hand out, like `!rolesAdd @role`.")
		return
	}
	for _, roleID := range ctx.Message.MentionRoles {
		if _, ok := ctx.Config.SelfPromotionRoles[roleID]; !ok {
			ctx.Config.SelfPromotionRoles[roleID] = models.SelfPromotionRole{}
		}
	}
	b.ackSave(ctx)
}

func (b *Bot) cmdRolesRemove(ctx *CommandContext) {
	if len(ctx.Message.MentionRoles) == 0 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Mention the roles to remove, like `!rolesRemove @role`.")
		return
	}
	for _, roleID := range ctx.Message.MentionRoles {
		delete(ctx.Config.SelfPromotionRoles, roleID)
	}
	b.ackSave(ctx)
}

func (b *Bot) cmdGrant(ctx *CommandContext) {
	token, ok := b.grantableCommand(ctx)
	if !ok {
		return
	}
	granted := ctx.Config.CommandPermissions[token]
	for _, user := range ctx.Message.Mentions {
		if !contains(granted, user.ID) {
			granted = append(granted, user.ID)
		}
	}
	ctx.Config.CommandPermissions[token] = granted
	b.ackSave(ctx)
}

func (b *Bot) cmdRevoke(ctx *CommandContext) {
	token, ok := b.grantableCommand(ctx)
	if !ok {
		return
	}
	var kept []string
	for _, id := range ctx.Config.CommandPermissions[token] {
		revoked := false
		for _, user := range ctx.Message.Mentions {
			if user.ID == id {
				revoked = true
				break
			}
		}
		if !revoked {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(ctx.Config.CommandPermissions, token)
	} else {
		ctx.Config.CommandPermissions[token] = kept
	}
	b.ackSave(ctx)
}

// grantableCommand validates the shared argument shape of !!grant and
// !!revoke and resolves the target command token.
func (b *Bot) grantableCommand(ctx *CommandContext) (string, bool) {
	if len(ctx.Args) < 1 || len(ctx.Message.Mentions) == 0 {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "Usage: `!!grant [command] @name`.")
		return "", false
	}
	token := ctx.Args[0]
	if !strings.HasPrefix(token, "!") && !strings.HasPrefix(token, "?") {
		token = "!" + token
	}
	cmd, ok := b.commands[token]
	if !ok || cmd.Tier != TierRestricted {
		b.reactFail(ctx.Message.Message)
		b.send(ctx.Message.ChannelID, "I can only grant my own restricted commands.")
		return "", false
	}
	return token, true
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func (b *Bot) cmdClear(ctx *CommandContext) {
	channelID := ctx.Message.ChannelID
	// Deleting one message at a time keeps pinned handling simple; the
	// limiter spaces the calls out well below the platform rate limit.
	limiter := rate.NewLimiter(rate.Limit(2), 1)

	deleted := 0
	beforeID := ""
	for deleted < clearMessageCap {
		messages, err := ctx.Session.ChannelMessages(channelID, 100, beforeID, "", "")
		if err != nil {
			log.Printf("Guild %s: clear aborted: %v", ctx.GuildID, err)
			break
		}
		if len(messages) == 0 {
			break
		}
		beforeID = messages[len(messages)-1].ID

		for _, msg := range messages {
			if msg.Pinned || msg.ID == ctx.Message.ID {
				continue
			}
			if deleted >= clearMessageCap {
				break
			}
			if err := limiter.Wait(context.Background()); err != nil {
				break
			}
			if err := ctx.Session.ChannelMessageDelete(channelID, msg.ID); err != nil {
				log.Printf("Guild %s: could not delete message %s: %v", ctx.GuildID, msg.ID, err)
				continue
			}
			deleted++
		}
		if len(messages) < 100 {
			break
		}
	}

	b.send(channelID, fmt.Sprintf("All tidy, removed %d messages.", deleted))
}

func (b *Bot) cmdExport(ctx *CommandContext) {
	payload, err := json.MarshalIndent(ctx.Config, "", "  ")
	if err != nil {
		log.Printf("Guild %s: export failed: %v", ctx.GuildID, err)
		b.reactFail(ctx.Message.Message)
		return
	}
	_, err = ctx.Session.ChannelFileSend(ctx.Message.ChannelID,
		ctx.GuildID+".json", strings.NewReader(string(payload)))
	if err != nil {
		log.Printf("Guild %s: export upload failed: %v", ctx.GuildID, err)
		b.reactFail(ctx.Message.Message)
		return
	}
	b.reactOK(ctx.Message.Message)
}

func (b *Bot) cmdTemplate(ctx *CommandContext) {
	b.send(ctx.Message.ChannelID, "Default templates:\n"+
		"announcementMsg: "+defaultAnnouncerMessage+"\n"+
		"welcomeMsg: "+defaultWelcomeMessage)
}
