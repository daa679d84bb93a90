package bot

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/omegabot/omegabot/internal/models"
)

// PermissionTier decides who may invoke a command.
type PermissionTier int

const (
	// TierPublic commands are open to every guild member.
	TierPublic PermissionTier = iota
	// TierRestricted commands require administrator permission, developer
	// status, or an explicit per-command grant.
	TierRestricted
	// TierDeveloper commands are reserved for the configured developer list,
	// admin status does not help.
	TierDeveloper
)

// Command describes one chat command: its token (including the ! or ?
// prefix), permission tier, handler and help line.
type Command struct {
	Token   string
	Tier    PermissionTier
	Help    string
	Handler func(ctx *CommandContext)
}

// CommandContext carries everything a handler needs for one invocation.
// Config is the live cached record; handlers mutate it in place and persist
// through SaveConfig.
type CommandContext struct {
	Bot     *Bot
	Session *discordgo.Session
	Message *discordgo.MessageCreate
	GuildID string
	Config  *models.GuildConfig
	Args    []string
}

// Rest joins the args from position n onward into one free-text value. This
// is the single parsing rule for multi-word values: fixed positional tokens
// first, joined remainder last.
func (ctx *CommandContext) Rest(n int) string {
	if n >= len(ctx.Args) {
		return ""
	}
	return strings.Join(ctx.Args[n:], " ")
}

type authDecision int

const (
	authAllowed authDecision = iota
	authDeniedDeveloperOnly
	authDeniedRestricted
)

// authorizeCommand is the single authorization gate every dispatch goes
// through. Developer-only commands ignore admin status; restricted commands
// accept admins, developers, and explicitly granted members.
func authorizeCommand(cmd *Command, memberID string, isAdmin, isDeveloper bool, perms models.PermissionList) authDecision {
	switch cmd.Tier {
	case TierDeveloper:
		if !isDeveloper {
			return authDeniedDeveloperOnly
		}
	case TierRestricted:
		if !isAdmin && !isDeveloper && !perms.Allows(cmd.Token, memberID) {
			return authDeniedRestricted
		}
	}
	return authAllowed
}

func (b *Bot) registerCommands() {
	commands := []*Command{
		{Token: "?help", Tier: TierPublic, Handler: b.cmdHelp,
			Help: "?help [topic]                        | Show this help, or details for a topic (announcementMsg)"},
		{Token: "?info", Tier: TierPublic, Handler: b.cmdInfo,
			Help: "?info streamer                       | Show the current streamer announcement settings"},
		{Token: "?streamer", Tier: TierPublic, Handler: b.cmdStreamers,
			Help: "?streamer                            | List the members I am allowed to announce"},
		{Token: "?roles", Tier: TierPublic, Handler: b.cmdRoles,
			Help: "?roles                               | Show the roles I may hand out, use !join @role to join one"},
		{Token: "?wiki", Tier: TierPublic, Handler: b.cmdWiki,
			Help: "?wiki [topic]                        | Get a Wikipedia link for a topic, no promises it works"},
		{Token: "!join", Tier: TierPublic, Handler: b.cmdJoin,
			Help: "!join @role                          | Try to join a role, I will tell you how it went"},
		{Token: "!leave", Tier: TierPublic, Handler: b.cmdLeave,
			Help: "!leave @role                         | Leave a role you picked up earlier"},

		{Token: "!add", Tier: TierRestricted, Handler: b.cmdAddInfo,
			Help: "!add [name] [text]                   | Store a text retrievable later via ?[name], quotes or infos"},
		{Token: "!remove", Tier: TierRestricted, Handler: b.cmdRemoveInfo,
			Help: "!remove [name]                       | Delete everything stored under [name]"},
		{Token: "!addStreamer", Tier: TierRestricted, Handler: b.cmdAddStreamer,
			Help: "!addStreamer @name ...               | Allow one or more members to be announced when they go live"},
		{Token: "!removeStreamer", Tier: TierRestricted, Handler: b.cmdRemoveStreamer,
			Help: "!removeStreamer @name ...            | Stop announcing one or more members"},
		{Token: "!setStreamer", Tier: TierRestricted, Handler: b.cmdSetStreamer,
			Help: "!setStreamer [prop] [value] @name    | Configure a streamer, prop is 'channelId' or 'message'"},
		{Token: "!setStreamChannel", Tier: TierRestricted, Handler: b.cmdSetStreamChannel,
			Help: "!setStreamChannel                    | Make the current channel the announcement channel"},
		{Token: "!setAllowAll", Tier: TierRestricted, Handler: b.cmdSetAllowAll,
			Help: "!setAllowAll [true|false]            | Announce everybody who goes live, or only listed streamers"},
		{Token: "!set", Tier: TierRestricted, Handler: b.cmdSet,
			Help: "!set [prop] [value]                  | Change a setting: name, allowAll, streamerChannel,\n" +
				"                                     | announcementDelayHours, announcementMsg, welcomeMsg, sayHello,\n" +
				"                                     | removeJoinCommand, removeLeaveCommand, streamer, role"},
		{Token: "!unset", Tier: TierRestricted, Handler: b.cmdUnset,
			Help: "!unset role @role                    | Take away my right to hand out this role"},
		{Token: "!rolesAdd", Tier: TierRestricted, Handler: b.cmdRolesAdd,
			Help: "!rolesAdd @role ...                  | Allow me to hand out these roles via !join"},
		{Token: "!rolesRemove", Tier: TierRestricted, Handler: b.cmdRolesRemove,
			Help: "!rolesRemove @role ...               | Stop me from handing out these roles"},
		{Token: "!!grant", Tier: TierRestricted, Handler: b.cmdGrant,
			Help: "!!grant [command] @name ...          | Allow members to use one of my restricted commands"},
		{Token: "!!revoke", Tier: TierRestricted, Handler: b.cmdRevoke,
			Help: "!!revoke [command] @name ...         | Revoke a previously granted command permission"},
		{Token: "!!clear", Tier: TierRestricted, Handler: b.cmdClear,
			Help: "!!clear                              | Clean up this channel, pinned messages survive"},
		{Token: "!!export", Tier: TierRestricted, Handler: b.cmdExport,
			Help: "!!export                             | Send the stored guild configuration as a file"},

		{Token: "!template", Tier: TierDeveloper, Handler: b.cmdTemplate,
			Help: "!template                            | Not a real command"},
	}

	b.commands = make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		b.commands[cmd.Token] = cmd
	}
}
