package bot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegabot/omegabot/internal/models"
)

type stubPresences struct {
	members []MemberPresence
	err     error
}

func (s *stubPresences) MemberPresences(string) ([]MemberPresence, error) {
	return s.members, s.err
}

type sentMessage struct {
	channelID string
	content   string
}

type stubSender struct {
	sent []sentMessage
	err  error
}

func (s *stubSender) SendChannelMessage(channelID, content string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{channelID, content})
	return nil
}

type stubConfig struct {
	cfg *models.GuildConfig
}

func (s *stubConfig) EnsureLoaded(string) (*models.GuildConfig, error) {
	return s.cfg, nil
}

type stubRecorder struct {
	count int
}

func (s *stubRecorder) RecordAnnouncement() {
	s.count++
}

func live(memberID, name, title string) MemberPresence {
	return MemberPresence{
		MemberID:    memberID,
		DisplayName: name,
		Activity:    &StreamActivity{Title: title, Detail: "some detail", URL: "https://example.com/" + memberID},
	}
}

func offline(memberID, name string) MemberPresence {
	return MemberPresence{MemberID: memberID, DisplayName: name}
}

func newTestWatcher(cfg *models.GuildConfig) (*presenceWatcher, *stubPresences, *stubSender, *stubRecorder) {
	presences := &stubPresences{}
	sender := &stubSender{}
	stats := &stubRecorder{}
	w := newPresenceWatcher("g1", 5*time.Second, &stubConfig{cfg: cfg}, presences, sender, stats)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return base }
	return w, presences, sender, stats
}

func TestScanAnnouncesRisingEdgeOnce(t *testing.T) {
	cfg := models.DefaultGuildConfig("g1")
	cfg.StreamerChannelID = "c1"
	cfg.StreamerList["m1"] = models.StreamerOverride{}
	w, presences, sender, stats := newTestWatcher(cfg)

	presences.members = []MemberPresence{live("m1", "Foo", "CoolGame")}
	w.Scan()
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "c1", sender.sent[0].channelID)
	assert.Contains(t, sender.sent[0].content, "Foo")
	assert.Contains(t, sender.sent[0].content, "CoolGame")
	assert.Equal(t, 1, stats.count)
	assert.Equal(t, w.now(), w.lastAnnounced["m1"], "announcement time starts the cooldown")

	// Still broadcasting: no repeat.
	w.Scan()
	w.Scan()
	assert.Len(t, sender.sent, 1)
}

func TestScanCooldownGatesReEdge(t *testing.T) {
	cfg := models.DefaultGuildConfig("g1")
	cfg.StreamerChannelID = "c1"
	cfg.AnnouncementDelayHours = 1
	cfg.StreamerList["m1"] = models.StreamerOverride{}
	w, presences, sender, _ := newTestWatcher(cfg)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	w.now = func() time.Time { return now }

	presences.members = []MemberPresence{live("m1", "Foo", "CoolGame")}
	w.Scan()
	require.Len(t, sender.sent, 1)

	// Stop, then restart half an hour later: edge fires but the cooldown
	// swallows it.
	presences.members = []MemberPresence{offline("m1", "Foo")}
	w.Scan()
	now = base.Add(30 * time.Minute)
	presences.members = []MemberPresence{live("m1", "Foo", "CoolGame")}
	w.Scan()
	assert.Len(t, sender.sent, 1)

	// Another cycle past the cooldown announces again.
	presences.members = []MemberPresence{offline("m1", "Foo")}
	w.Scan()
	now = base.Add(61 * time.Minute)
	presences.members = []MemberPresence{live("m1", "Foo", "CoolGame")}
	w.Scan()
	assert.Len(t, sender.sent, 2)
}

func TestScanEligibility(t *testing.T) {
	cfg := models.DefaultGuildConfig("g1")
	cfg.StreamerChannelID = "c1"
	cfg.StreamerList["m1"] = models.StreamerOverride{}
	w, presences, sender, _ := newTestWatcher(cfg)

	// m2 is not listed and allowAll is off.
	presences.members = []MemberPresence{
		live("m1", "Listed", "GameA"),
		live("m2", "Unlisted", "GameB"),
	}
	w.Scan()
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].content, "Listed")

	// With allowAll a fresh edge from the unlisted member announces too.
	cfg.AllowAll = true
	presences.members = []MemberPresence{offline("m2", "Unlisted")}
	w.Scan()
	presences.members = []MemberPresence{live("m2", "Unlisted", "GameB")}
	w.Scan()
	assert.Len(t, sender.sent, 2)
}

func TestScanPerStreamerOverrides(t *testing.T) {
	cfg := models.DefaultGuildConfig("g1")
	cfg.StreamerChannelID = "c1"
	cfg.AnnouncerMessage = "guild template {username}"
	cfg.StreamerList["m1"] = models.StreamerOverride{ChannelID: "c2", Message: "override {username} {url}"}
	w, presences, sender, _ := newTestWatcher(cfg)

	presences.members = []MemberPresence{live("m1", "Foo", "CoolGame")}
	w.Scan()
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "c2", sender.sent[0].channelID)
	assert.Equal(t, "override Foo https://example.com/m1", sender.sent[0].content)
}

func TestScanSkipsWithoutChannel(t *testing.T) {
	cfg := models.DefaultGuildConfig("g1")
	cfg.StreamerList["m1"] = models.StreamerOverride{}
	w, presences, sender, stats := newTestWatcher(cfg)

	presences.members = []MemberPresence{live("m1", "Foo", "CoolGame")}
	w.Scan()
	assert.Empty(t, sender.sent)
	assert.Zero(t, stats.count)
}

func TestScanSendFailureDoesNotBurnCooldown(t *testing.T) {
	cfg := models.DefaultGuildConfig("g1")
	cfg.StreamerChannelID = "c1"
	cfg.StreamerList["m1"] = models.StreamerOverride{}
	cfg.StreamerList["m2"] = models.StreamerOverride{}
	w, presences, sender, stats := newTestWatcher(cfg)

	sender.err = errors.New("boom")
	presences.members = []MemberPresence{live("m1", "Foo", "GameA"), live("m2", "Bar", "GameB")}
	w.Scan()
	assert.Zero(t, stats.count)
	assert.Empty(t, w.lastAnnounced, "a failed send must not start the cooldown")

	// The next rising edge goes through once sending recovers.
	sender.err = nil
	presences.members = []MemberPresence{offline("m1", "Foo"), offline("m2", "Bar")}
	w.Scan()
	presences.members = []MemberPresence{live("m1", "Foo", "GameA"), live("m2", "Bar", "GameB")}
	w.Scan()
	assert.Len(t, sender.sent, 2)
}

func TestScanDefaultsDelayWhenUnset(t *testing.T) {
	cfg := models.DefaultGuildConfig("g1")
	cfg.AnnouncementDelayHours = 0
	cfg.StreamerChannelID = "c1"
	cfg.StreamerList["m1"] = models.StreamerOverride{}
	w, presences, sender, _ := newTestWatcher(cfg)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	w.now = func() time.Time { return now }

	presences.members = []MemberPresence{live("m1", "Foo", "GameA")}
	w.Scan()
	require.Len(t, sender.sent, 1)

	// 4 hours later is still inside the implied 5 hour cooldown.
	presences.members = []MemberPresence{offline("m1", "Foo")}
	w.Scan()
	now = base.Add(4 * time.Hour)
	presences.members = []MemberPresence{live("m1", "Foo", "GameA")}
	w.Scan()
	assert.Len(t, sender.sent, 1)
}

func TestStopPreventsRearm(t *testing.T) {
	cfg := models.DefaultGuildConfig("g1")
	w, _, _, _ := newTestWatcher(cfg)

	w.Start()
	w.Stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.True(t, w.stopped)
}
