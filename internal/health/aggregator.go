package health

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/omegabot/omegabot/internal/database"
	"github.com/omegabot/omegabot/internal/models"
)

// Aggregator holds engine activity counters in memory to reduce database
// writes, flushing them to the system_stats table on an interval.
type Aggregator struct {
	repo          *database.Repository
	announcements atomic.Int64
	commands      atomic.Int64
	welcomes      atomic.Int64
}

func NewAggregator(repo *database.Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// RecordAnnouncement increments the in-memory announcement counter. Fast and
// non-blocking, safe from scan goroutines.
func (a *Aggregator) RecordAnnouncement() {
	a.announcements.Add(1)
}

func (a *Aggregator) RecordCommand() {
	a.commands.Add(1)
}

func (a *Aggregator) RecordWelcome() {
	a.welcomes.Add(1)
}

// FlushToDB writes the aggregated counts to the database and resets the
// counters.
func (a *Aggregator) FlushToDB() {
	for key, counter := range map[string]*atomic.Int64{
		models.StatAnnouncementsSent: &a.announcements,
		models.StatCommandsHandled:   &a.commands,
		models.StatWelcomesSent:      &a.welcomes,
	} {
		delta := counter.Swap(0)
		if delta == 0 {
			continue
		}
		if err := a.repo.AddToStat(key, delta); err != nil {
			log.Printf("ERROR: Failed to flush stat %s to DB: %v", key, err)
		}
	}
}

// Start starts a background goroutine to periodically flush stats.
func (a *Aggregator) Start(interval time.Duration) {
	log.Printf("Stats aggregator started with a %s flush interval", interval)
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			a.FlushToDB()
		}
	}()
}
