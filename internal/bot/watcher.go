package bot

import (
	"log"
	"sync"
	"time"

	"github.com/omegabot/omegabot/internal/models"
)

// StreamActivity is the broadcasting state of a member as observed during a
// scan.
type StreamActivity struct {
	Title  string
	Detail string
	URL    string
}

// MemberPresence pairs a guild member with their current streaming activity,
// nil when the member is not broadcasting.
type MemberPresence struct {
	MemberID    string
	DisplayName string
	Activity    *StreamActivity
}

type presenceSource interface {
	MemberPresences(guildID string) ([]MemberPresence, error)
}

type messageSender interface {
	SendChannelMessage(channelID, content string) error
}

type configSource interface {
	EnsureLoaded(guildID string) (*models.GuildConfig, error)
}

type announcementRecorder interface {
	RecordAnnouncement()
}

// presenceWatcher runs the recurring broadcast-start scan for one guild. The
// timer is self-rearming: each scan schedules the next one after it finishes,
// so a slow scan stretches the cadence instead of overlapping.
//
// The activity and announcement caches live only in memory. After a restart
// the first scan may re-announce members who are still live, bounded by the
// per-member cooldown.
type presenceWatcher struct {
	guildID   string
	interval  time.Duration
	store     configSource
	presences presenceSource
	sender    messageSender
	stats     announcementRecorder
	now       func() time.Time

	mu            sync.Mutex
	timer         *time.Timer
	stopped       bool
	lastActivity  map[string]*StreamActivity
	lastAnnounced map[string]time.Time
}

func newPresenceWatcher(guildID string, interval time.Duration, store configSource, presences presenceSource, sender messageSender, stats announcementRecorder) *presenceWatcher {
	return &presenceWatcher{
		guildID:       guildID,
		interval:      interval,
		store:         store,
		presences:     presences,
		sender:        sender,
		stats:         stats,
		now:           time.Now,
		lastActivity:  make(map[string]*StreamActivity),
		lastAnnounced: make(map[string]time.Time),
	}
}

// Start arms the scan timer. Safe to call once per watcher.
func (w *presenceWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.timer != nil {
		return
	}
	w.timer = time.AfterFunc(w.interval, w.tick)
}

// Stop prevents any further rearming. An in-flight scan finishes normally.
func (w *presenceWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *presenceWatcher) tick() {
	w.Scan()
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.timer = time.AfterFunc(w.interval, w.tick)
	}
}

// Scan performs one presence diff over the guild's members, announcing every
// eligible rising edge. A failed send for one member never aborts the scan
// for the rest.
func (w *presenceWatcher) Scan() {
	cfg, err := w.store.EnsureLoaded(w.guildID)
	if err != nil {
		log.Printf("Guild %s: presence scan skipped, config unavailable: %v", w.guildID, err)
		return
	}

	members, err := w.presences.MemberPresences(w.guildID)
	if err != nil {
		log.Printf("Guild %s: presence scan skipped: %v", w.guildID, err)
		return
	}

	delay := cfg.AnnouncementDelayHours
	if delay <= 0 {
		delay = 5
	}
	now := w.now()
	cutoff := now.Add(-time.Duration(delay) * time.Hour)

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, member := range members {
		current := member.Activity
		last := w.lastActivity[member.MemberID]

		if current != nil && last == nil {
			w.announce(cfg, member, now, cutoff)
		}
		// Always record the observation so a stop/restart re-triggers the
		// rising edge, still gated by the cooldown.
		w.lastActivity[member.MemberID] = current
	}
}

func (w *presenceWatcher) announce(cfg *models.GuildConfig, member MemberPresence, now, cutoff time.Time) {
	override, listed := cfg.StreamerList[member.MemberID]
	if !cfg.AllowAll && !listed {
		return
	}
	if announced, ok := w.lastAnnounced[member.MemberID]; ok && !announced.Before(cutoff) {
		return
	}

	channelID := override.ChannelID
	if channelID == "" {
		channelID = cfg.StreamerChannelID
	}
	if channelID == "" {
		return
	}

	template := override.Message
	if template == "" {
		template = cfg.AnnouncerMessage
	}
	content := renderAnnouncement(template, member.DisplayName, member.Activity.Title, member.Activity.Detail, member.Activity.URL)

	if err := w.sender.SendChannelMessage(channelID, content); err != nil {
		log.Printf("Guild %s: announcement for %s failed: %v", w.guildID, member.MemberID, err)
		return
	}
	w.lastAnnounced[member.MemberID] = now
	if w.stats != nil {
		w.stats.RecordAnnouncement()
	}
}
