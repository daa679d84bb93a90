package bot

import (
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/omegabot/omegabot/internal/config"
	"github.com/omegabot/omegabot/internal/database"
	"github.com/omegabot/omegabot/internal/guildstore"
	"github.com/omegabot/omegabot/internal/health"
	"github.com/omegabot/omegabot/internal/models"
)

// Bot is the engine composition root: it owns the platform session, the
// per-guild config store, the command registry and one presence watcher per
// guild. Exactly one instance is constructed at process start.
type Bot struct {
	Session *discordgo.Session
	Repo    *database.Repository
	Store   *guildstore.Store
	Stats   *health.Aggregator

	commands map[string]*Command

	watchersMu sync.Mutex
	watchers   map[string]*presenceWatcher
}

func New(repo *database.Repository, store *guildstore.Store, stats *health.Aggregator) (*Bot, error) {
	discord, err := discordgo.New("Bot " + config.DiscordToken)
	if err != nil {
		return nil, err
	}

	discord.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildPresences |
		discordgo.IntentMessageContent

	bot := &Bot{
		Session:  discord,
		Repo:     repo,
		Store:    store,
		Stats:    stats,
		watchers: make(map[string]*presenceWatcher),
	}

	bot.registerCommands()
	bot.registerHandlers()

	return bot, nil
}

func (b *Bot) registerHandlers() {
	b.Session.AddHandler(b.ready)
	b.Session.AddHandler(b.messageCreate)
	b.Session.AddHandler(b.guildCreate)
	b.Session.AddHandler(b.guildDelete)
	b.Session.AddHandler(b.guildMemberAdd)
	b.Session.AddHandler(b.messageReactionAdd)
	b.Session.AddHandler(b.messageReactionRemove)
}

func (b *Bot) Start() error {
	if err := b.Session.Open(); err != nil {
		return err
	}

	go b.updateStatusPeriodically()
	go b.heartbeat()

	return nil
}

// Stop shuts the engine down. Nothing needs flushing: configuration is
// persisted on every save and the presence caches are ephemeral by design.
func (b *Bot) Stop() {
	b.watchersMu.Lock()
	for _, w := range b.watchers {
		w.Stop()
	}
	b.watchers = make(map[string]*presenceWatcher)
	b.watchersMu.Unlock()

	b.Session.Close()
}

func (b *Bot) ready(s *discordgo.Session, event *discordgo.Ready) {
	log.Printf("Logged in as %s", s.State.User.Username)
	for _, g := range event.Guilds {
		b.initGuild(g.ID)
	}
	b.updateBotStatus()
}

func (b *Bot) guildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	log.Printf("Joined guild %s with %d members", event.Guild.Name, event.Guild.MemberCount)

	// A guild without a stored record is a genuine first join, not a
	// reconnect, and gets a greeting.
	existing, err := b.Repo.GetGuildConfig(event.Guild.ID)
	if err != nil {
		log.Printf("Error checking settings for guild %s: %v", event.Guild.ID, err)
	}
	b.initGuild(event.Guild.ID)

	if err == nil && existing == nil && event.Guild.SystemChannelID != "" {
		b.send(event.Guild.SystemChannelID, "Hello! I am OmegaBot. Type `?help` to see what I can do.")
	}
	b.logToChannel(fmt.Sprintf("Joined guild %s (%s)", event.Guild.Name, event.Guild.ID))
	b.updateBotStatus()
}

func (b *Bot) guildDelete(s *discordgo.Session, event *discordgo.GuildDelete) {
	if event.Unavailable {
		log.Printf("Guild %s became unavailable", event.ID)
		return
	}
	log.Printf("Removed from guild %s, cleaning up", event.ID)
	b.logToChannel(fmt.Sprintf("Removed from guild %s", event.ID))
	b.stopWatcher(event.ID)
	b.Store.Forget(event.ID)
	if err := b.Repo.DeleteGuildData(event.ID); err != nil {
		log.Printf("Error deleting data for guild %s: %v", event.ID, err)
	}
	b.updateBotStatus()
}

// initGuild loads (or creates) the guild configuration, applies the nickname
// override and arms the presence watcher.
func (b *Bot) initGuild(guildID string) {
	cfg, err := b.Store.EnsureLoaded(guildID)
	if err != nil {
		log.Printf("Error loading settings for guild %s: %v", guildID, err)
		return
	}

	if cfg.BotName != "" {
		if err := b.Session.GuildMemberNickname(guildID, "@me", cfg.BotName); err != nil {
			log.Printf("Guild %s: could not apply nickname: %v", guildID, err)
		}
	}

	b.startWatcher(guildID)
}

func (b *Bot) startWatcher(guildID string) {
	b.watchersMu.Lock()
	defer b.watchersMu.Unlock()
	if _, ok := b.watchers[guildID]; ok {
		return
	}
	interval := time.Duration(config.ScanIntervalSeconds) * time.Second
	w := newPresenceWatcher(guildID, interval, b.Store, b, b, b.Stats)
	b.watchers[guildID] = w
	w.Start()
}

func (b *Bot) stopWatcher(guildID string) {
	b.watchersMu.Lock()
	defer b.watchersMu.Unlock()
	if w, ok := b.watchers[guildID]; ok {
		w.Stop()
		delete(b.watchers, guildID)
	}
}

func (b *Bot) guildMemberAdd(s *discordgo.Session, event *discordgo.GuildMemberAdd) {
	cfg, err := b.Store.EnsureLoaded(event.GuildID)
	if err != nil || !cfg.SayHello {
		return
	}
	guild, err := s.State.Guild(event.GuildID)
	if err != nil || guild.SystemChannelID == "" {
		return
	}
	content := renderWelcome(cfg.WelcomeMessage, event.Member.DisplayName(), event.User.ID)
	if _, err := s.ChannelMessageSend(guild.SystemChannelID, content); err != nil {
		log.Printf("Guild %s: welcome message failed: %v", event.GuildID, err)
		return
	}
	b.Stats.RecordWelcome()
}

func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in message handler: %v\n%s", r, debug.Stack())
		}
	}()

	if m.GuildID == "" || m.Author == nil || m.Author.Bot {
		return
	}

	cfg, err := b.Store.EnsureLoaded(m.GuildID)
	if err != nil {
		log.Printf("Error loading settings for guild %s: %v", m.GuildID, err)
		return
	}

	isCommand := strings.HasPrefix(m.Content, "?") || strings.HasPrefix(m.Content, "!")
	if !isCommand {
		b.handleRoleAlias(s, m, cfg)
		return
	}

	fields := strings.Fields(m.Content)
	if len(fields) == 0 {
		return
	}
	token, args := fields[0], fields[1:]

	cmd, ok := b.commands[token]
	if !ok {
		if strings.HasPrefix(token, "?") {
			b.lookupInfo(s, m, token)
		} else {
			b.reactFail(m.Message)
			b.send(m.ChannelID, "I don't know that command, try `?help`.")
		}
		return
	}

	isDeveloper := config.IsDeveloper(m.Author.ID)
	isAdmin := b.memberIsAdmin(s, m)

	switch authorizeCommand(cmd, m.Author.ID, isAdmin, isDeveloper, cfg.CommandPermissions) {
	case authDeniedDeveloperOnly:
		b.reactFail(m.Message)
		b.send(m.ChannelID, "Hands off! That command is reserved for the developer.")
		return
	case authDeniedRestricted:
		b.reactFail(m.Message)
		b.send(m.ChannelID, "Hold on! That command is for selected people only, and you are... NOT one of them.")
		return
	}

	cmd.Handler(&CommandContext{
		Bot:     b,
		Session: s,
		Message: m,
		GuildID: m.GuildID,
		Config:  cfg,
		Args:    args,
	})
	b.Stats.RecordCommand()
}

// lookupInfo resolves an unknown ?-token as an info snippet: the raw topic
// name after the sigil, matched case-insensitively. List-valued topics answer
// with a random entry.
func (b *Bot) lookupInfo(s *discordgo.Session, m *discordgo.MessageCreate, token string) {
	name := strings.TrimPrefix(token, "?")
	record, err := b.Repo.GetInfo(m.GuildID, name)
	if err != nil {
		log.Printf("Guild %s: info lookup %q failed: %v", m.GuildID, name, err)
		b.reactFail(m.Message)
		return
	}
	if record == nil {
		b.send(m.ChannelID, fmt.Sprintf("I know absolutely nothing about %s!", token))
		return
	}
	b.send(m.ChannelID, record.Data.Pick())
}

// memberIsAdmin reports whether the author counts as a platform
// administrator: the administrator permission bit or guild ownership.
func (b *Bot) memberIsAdmin(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	perms, err := s.State.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err == nil && perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	guild, err := s.State.Guild(m.GuildID)
	return err == nil && guild.OwnerID == m.Author.ID
}

// MemberPresences lists the streaming state of every cached member of a
// guild. It satisfies the presence source of the watcher.
func (b *Bot) MemberPresences(guildID string) ([]MemberPresence, error) {
	guild, err := b.Session.State.Guild(guildID)
	if err != nil {
		return nil, err
	}

	presences := make([]MemberPresence, 0, len(guild.Presences))
	for _, p := range guild.Presences {
		if p.User == nil {
			continue
		}
		mp := MemberPresence{MemberID: p.User.ID, DisplayName: p.User.Username}
		if member, err := b.Session.State.Member(guildID, p.User.ID); err == nil {
			mp.DisplayName = member.DisplayName()
		}
		for _, a := range p.Activities {
			if a.Type == discordgo.ActivityTypeStreaming && a.URL != "" {
				mp.Activity = &StreamActivity{Title: a.Name, Detail: a.Details, URL: a.URL}
				break
			}
		}
		presences = append(presences, mp)
	}
	return presences, nil
}

// SendChannelMessage satisfies the message sender of the watcher.
func (b *Bot) SendChannelMessage(channelID, content string) error {
	_, err := b.Session.ChannelMessageSend(channelID, content)
	return err
}

// logToChannel mirrors an operational event to the configured log channel.
// Disabled when no channel is set.
func (b *Bot) logToChannel(content string) {
	if config.LogChannelID == "" {
		return
	}
	if _, err := b.Session.ChannelMessageSend(config.LogChannelID, content); err != nil {
		log.Printf("Error writing to log channel: %v", err)
	}
}

func (b *Bot) send(channelID, content string) {
	if _, err := b.Session.ChannelMessageSend(channelID, content); err != nil {
		log.Printf("Error sending message to %s: %v", channelID, err)
	}
}

func (b *Bot) reactOK(m *discordgo.Message) {
	if err := b.Session.MessageReactionAdd(m.ChannelID, m.ID, "👍"); err != nil {
		log.Printf("Error adding reaction: %v", err)
	}
}

func (b *Bot) reactFail(m *discordgo.Message) {
	if err := b.Session.MessageReactionAdd(m.ChannelID, m.ID, "👎"); err != nil {
		log.Printf("Error adding reaction: %v", err)
	}
}

// ackSave persists the guild config and reacts with the outcome. The save
// result is reported to the requester, never escalated.
func (b *Bot) ackSave(ctx *CommandContext) {
	if err := b.Store.Save(ctx.GuildID); err != nil {
		log.Printf("Guild %s: save failed: %v", ctx.GuildID, err)
		b.reactFail(ctx.Message.Message)
		return
	}
	b.reactOK(ctx.Message.Message)
}

func (b *Bot) heartbeat() {
	ticker := time.NewTicker(2 * time.Minute)
	defer ticker.Stop()

	for {
		status := &models.ServiceStatus{
			ServiceName:   "omegabot",
			Status:        "operational",
			LastHeartbeat: time.Now(),
		}
		if err := b.Repo.UpsertServiceStatus(status); err != nil {
			log.Printf("Error sending heartbeat: %v", err)
		}
		<-ticker.C
	}
}

func (b *Bot) updateStatusPeriodically() {
	ticker := time.NewTicker(time.Duration(config.StatusUpdateIntervalMinutes) * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		b.updateBotStatus()
	}
}

func (b *Bot) updateBotStatus() {
	serverCount := len(b.Session.State.Guilds)
	err := b.Session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{
			{
				Name: fmt.Sprintf("Watching %d servers", serverCount),
				Type: discordgo.ActivityTypeWatching,
			},
		},
	})
	if err != nil {
		log.Printf("Error updating status: %v", err)
	}
}
