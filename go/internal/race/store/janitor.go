package store

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/puzzlerace/go/internal/race/room"
)

// Janitor periodically evicts rooms that outlived MaxAge. Normal teardown
// happens on the orchestrator's grace timer; this only catches leftovers.
type Janitor struct {
	store     *Store
	clock     clockwork.Clock
	interval  time.Duration
	maxAge    time.Duration
	onEvict   func(*room.Room)
	scheduler gocron.Scheduler
}

// NewJanitor prepares a janitor. onEvict may be nil.
func NewJanitor(s *Store, clock clockwork.Clock, interval, maxAge time.Duration, onEvict func(*room.Room)) *Janitor {
	return &Janitor{
		store:    s,
		clock:    clock,
		interval: interval,
		maxAge:   maxAge,
		onEvict:  onEvict,
	}
}

// Start schedules the sweep job.
func (j *Janitor) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create janitor scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(j.RunOnce),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule room sweep: %w", err)
	}

	j.scheduler = sched
	sched.Start()
	log.Info().
		Dur("interval", j.interval).
		Dur("max_age", j.maxAge).
		Msg("Room janitor started")
	return nil
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce() {
	evicted := j.store.Sweep(j.clock.Now(), j.maxAge)
	for _, r := range evicted {
		log.Warn().
			Str("room_id", r.ID).
			Str("room_code", r.Code).
			Str("state", string(r.State())).
			Msg("Evicted stale room")
		if j.onEvict != nil {
			j.onEvict(r)
		}
	}
}

// Stop shuts the scheduler down.
func (j *Janitor) Stop() error {
	if j.scheduler == nil {
		return nil
	}
	return j.scheduler.Shutdown()
}
