// Package janitor prunes abandoned onboarding sessions on a schedule.
package janitor

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/voyago/concierge/store"
)

// Janitor deletes unfinished sessions untouched for longer than the
// retention window. Completed sessions are never pruned.
type Janitor struct {
	store     store.Store
	retention time.Duration
	cron      *cron.Cron
	schedule  string
}

// New creates a janitor with a cron schedule spec (e.g. "@hourly").
func New(st store.Store, schedule string, retention time.Duration) *Janitor {
	return &Janitor{
		store:     st,
		retention: retention,
		cron:      cron.New(),
		schedule:  schedule,
	}
}

// Start registers the sweep job and starts the scheduler.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.sweep); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.retention)
	n, err := j.store.DeleteStaleSessions(ctx, cutoff)
	if err != nil {
		log.Printf("ERROR: session sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Pruned %d stale sessions", n)
	}
}
