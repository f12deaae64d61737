package orchestrator

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type timerKind int

const (
	timerReady timerKind = iota
	timerDeadline
	timerTeardown
)

func (k timerKind) String() string {
	switch k {
	case timerReady:
		return "ready"
	case timerDeadline:
		return "deadline"
	case timerTeardown:
		return "teardown"
	}
	return "unknown"
}

type timerJob struct {
	roomID string
	kind   timerKind
}

type roomTimer struct {
	kind   timerKind
	timer  clockwork.Timer
	cancel chan struct{}
}

// schedule arms a one-shot timer for roomID, replacing whatever timer the
// room had. When it fires the job goes to the worker pool.
func (o *Orchestrator) schedule(roomID string, kind timerKind, at time.Time) {
	d := at.Sub(o.clock.Now())
	if d < 0 {
		d = 0
	}

	rt := &roomTimer{
		kind:   kind,
		timer:  o.clock.NewTimer(d),
		cancel: make(chan struct{}),
	}
	o.replaceTimer(roomID, rt)

	go func() {
		select {
		case <-rt.timer.Chan():
			o.removeTimer(roomID, rt)
			select {
			case o.workCh <- timerJob{roomID: roomID, kind: kind}:
				log.Debug().Str("room_id", roomID).Stringer("timer", kind).Msg("timer fired")
			case <-o.done:
			}
		case <-rt.cancel:
		case <-o.done:
			stopAndDrainTimer(rt.timer)
		}
	}()

	log.Debug().
		Str("room_id", roomID).
		Stringer("timer", kind).
		Time("at", at).
		Dur("duration", d).
		Msg("scheduled one-shot timer")
}

func (o *Orchestrator) replaceTimer(roomID string, rt *roomTimer) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if existing, ok := o.activeTimers[roomID]; ok {
		existing.stop()
		log.Debug().Str("room_id", roomID).Stringer("timer", existing.kind).Msg("replaced existing timer")
	}
	o.activeTimers[roomID] = rt
}

func (o *Orchestrator) cancelTimer(roomID string) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if rt, ok := o.activeTimers[roomID]; ok {
		rt.stop()
		delete(o.activeTimers, roomID)
	}
}

// removeTimer forgets rt once it fired, unless it was already replaced.
func (o *Orchestrator) removeTimer(roomID string, rt *roomTimer) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if o.activeTimers[roomID] == rt {
		delete(o.activeTimers, roomID)
	}
}

func (o *Orchestrator) stopAllTimers() {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	for roomID, rt := range o.activeTimers {
		rt.stop()
		log.Debug().Str("room_id", roomID).Msg("cancelled timer on shutdown")
	}
	o.activeTimers = make(map[string]*roomTimer)
}

func (rt *roomTimer) stop() {
	stopAndDrainTimer(rt.timer)
	select {
	case <-rt.cancel:
	default:
		close(rt.cancel)
	}
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
