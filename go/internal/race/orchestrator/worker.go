package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/puzzlerace/go/internal/race/room"
	"github.com/mcdev12/puzzlerace/go/internal/race/store"
)

// Run starts the worker pool that handles fired timers and blocks until ctx
// is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().
		Str("instance", o.instanceID).
		Int("workers", o.numWorkers).
		Msg("race orchestrator started")

	var wg sync.WaitGroup
	for i := 0; i < o.numWorkers; i++ {
		wg.Add(1)
		go o.worker(ctx, &wg, i)
	}

	<-ctx.Done()
	log.Info().Str("instance", o.instanceID).Msg("orchestrator shutdown requested")

	o.stopOnce.Do(func() { close(o.done) })
	o.stopAllTimers()
	wg.Wait()

	log.Info().Str("instance", o.instanceID).Msg("all workers shut down")
	return nil
}

func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-o.workCh:
			if err := o.handleTimer(ctx, job); err != nil {
				log.Error().
					Err(err).
					Str("room_id", job.roomID).
					Stringer("timer", job.kind).
					Int("worker_id", workerID).
					Msg("timer handling failed")
			}
		}
	}
}

func (o *Orchestrator) handleTimer(ctx context.Context, job timerJob) error {
	r, err := o.store.Get(job.roomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch job.kind {
	case timerReady:
		effects, err := r.Abandon("ready_timeout")
		if ignorable(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("abandon room: %w", err)
		}
		o.apply(ctx, r, effects)

	case timerDeadline:
		effects, err := r.Expire(o.clock.Now())
		if ignorable(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("expire room: %w", err)
		}
		log.Info().Str("room_id", r.ID).Msg("race deadline reached")
		o.apply(ctx, r, effects)

	case timerTeardown:
		r.Close()
		o.store.Remove(r.ID)
		log.Info().Str("room_id", r.ID).Str("room_code", r.Code).Msg("room torn down")
	}
	return nil
}

// ignorable reports errors caused by a timer losing a race against a player
// command that already moved the room on.
func ignorable(err error) bool {
	return errors.Is(err, room.ErrWrongState) || errors.Is(err, room.ErrRoomClosed)
}
