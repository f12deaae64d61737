package room

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mcdev12/puzzlerace/go/internal/race/scoring"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRoom() *Room {
	return New("room-1", "ABC234", "puzzle-7",
		Identity{UserID: "x", DisplayName: "Xena"},
		Identity{UserID: "y", DisplayName: "Yuri"},
		scoring.DefaultRules(), t0)
}

func startedRoom(t *testing.T) *Room {
	t.Helper()
	r := newTestRoom()
	if _, err := r.Ready("x", t0); err != nil {
		t.Fatalf("Ready(x): %v", err)
	}
	if _, err := r.Ready("y", t0); err != nil {
		t.Fatalf("Ready(y): %v", err)
	}
	return r
}

func TestReadyGatesActivation(t *testing.T) {
	r := newTestRoom()

	effects, err := r.Ready("x", t0)
	if err != nil {
		t.Fatalf("Ready(x): %v", err)
	}
	if len(effects) != 0 {
		t.Fatalf("expected no effects after one ready, got %d", len(effects))
	}
	if r.State() != StateWaitingReady {
		t.Fatalf("state = %s, want WAITING_READY", r.State())
	}

	startAt := t0.Add(2 * time.Second)
	effects, err = r.Ready("y", startAt)
	if err != nil {
		t.Fatalf("Ready(y): %v", err)
	}
	if r.State() != StateActive {
		t.Fatalf("state = %s, want ACTIVE", r.State())
	}
	if len(effects) != 1 {
		t.Fatalf("expected exactly one effect, got %d", len(effects))
	}
	started, ok := effects[0].(Started)
	if !ok {
		t.Fatalf("effect = %T, want Started", effects[0])
	}
	if !started.StartedAt.Equal(startAt) {
		t.Fatalf("startedAt = %v, want %v", started.StartedAt, startAt)
	}
	if want := startAt.Add(60 * time.Second); !started.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", started.Deadline, want)
	}
}

func TestReadyErrors(t *testing.T) {
	r := newTestRoom()
	if _, err := r.Ready("x", t0); err != nil {
		t.Fatalf("Ready(x): %v", err)
	}
	if _, err := r.Ready("x", t0); !errors.Is(err, ErrAlreadyReady) {
		t.Fatalf("duplicate ready err = %v, want ErrAlreadyReady", err)
	}
	if _, err := r.Ready("intruder", t0); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("stranger ready err = %v, want ErrNotInRoom", err)
	}
	if _, err := r.Ready("y", t0); err != nil {
		t.Fatalf("Ready(y): %v", err)
	}
	if _, err := r.Ready("y", t0); !errors.Is(err, ErrWrongState) {
		t.Fatalf("ready in ACTIVE err = %v, want ErrWrongState", err)
	}
}

func TestCompleteBeforeStartRejected(t *testing.T) {
	r := newTestRoom()
	if _, err := r.Complete("x", false, t0); !errors.Is(err, ErrWrongState) {
		t.Fatalf("err = %v, want ErrWrongState", err)
	}
}

func TestBothCompleteFinishes(t *testing.T) {
	r := startedRoom(t)

	effects, err := r.Complete("x", false, t0.Add(20*time.Second))
	if err != nil || len(effects) != 0 {
		t.Fatalf("Complete(x) = %v, %v", effects, err)
	}
	effects, err = r.Complete("y", false, t0.Add(35*time.Second))
	if err != nil {
		t.Fatalf("Complete(y): %v", err)
	}
	if len(effects) != 1 {
		t.Fatalf("expected one effect, got %d", len(effects))
	}
	fin, ok := effects[0].(Finished)
	if !ok {
		t.Fatalf("effect = %T, want Finished", effects[0])
	}
	if fin.TimedOut {
		t.Fatalf("unexpected timeout")
	}
	if fin.Result.WinnerUserID == nil || *fin.Result.WinnerUserID != "x" {
		t.Fatalf("winner = %v, want x", fin.Result.WinnerUserID)
	}
	if got := fin.Result.ScoreFor("x"); got != 800 {
		t.Fatalf("x score = %d, want 800", got)
	}
	if got := fin.Result.ScoreFor("y"); got != 650 {
		t.Fatalf("y score = %d, want 650", got)
	}
	if r.State() != StateComplete {
		t.Fatalf("state = %s, want COMPLETE", r.State())
	}
}

func TestDuplicateCompleteIgnored(t *testing.T) {
	r := startedRoom(t)

	if _, err := r.Complete("x", false, t0.Add(20*time.Second)); err != nil {
		t.Fatalf("Complete(x): %v", err)
	}
	if _, err := r.Complete("x", false, t0.Add(40*time.Second)); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("duplicate err = %v, want ErrAlreadyCompleted", err)
	}

	snap := r.Snapshot()
	if snap.Players[0].Score != 800 {
		t.Fatalf("score overwritten: %d", snap.Players[0].Score)
	}
	if snap.Players[0].TimeTakenSeconds != 20 {
		t.Fatalf("time overwritten: %v", snap.Players[0].TimeTakenSeconds)
	}
}

func TestExpireScoresNonCompleterZero(t *testing.T) {
	r := startedRoom(t)

	if _, err := r.Complete("x", false, t0.Add(30*time.Second)); err != nil {
		t.Fatalf("Complete(x): %v", err)
	}
	if _, err := r.Expire(t0.Add(59 * time.Second)); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("early expire err = %v, want ErrDeadlineNotReached", err)
	}

	effects, err := r.Expire(t0.Add(60 * time.Second))
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	fin := effects[0].(Finished)
	if !fin.TimedOut {
		t.Fatalf("expected timeout flag")
	}
	if fin.Result.ScoreFor("x") != 700 || fin.Result.ScoreFor("y") != 0 {
		t.Fatalf("scores = %+v", fin.Result.Players)
	}
	if *fin.Result.WinnerUserID != "x" {
		t.Fatalf("winner = %s, want x", *fin.Result.WinnerUserID)
	}
	if fin.Result.Players[1].TimeTakenSeconds != 60 {
		t.Fatalf("y time = %v, want 60", fin.Result.Players[1].TimeTakenSeconds)
	}

	if _, err := r.Expire(t0.Add(61 * time.Second)); !errors.Is(err, ErrWrongState) {
		t.Fatalf("second expire err = %v, want ErrWrongState", err)
	}
}

func TestLateCompletionResolvesAsTimeout(t *testing.T) {
	r := startedRoom(t)

	effects, err := r.Complete("y", false, t0.Add(61*time.Second))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	fin := effects[0].(Finished)
	if !fin.TimedOut || !fin.Result.IsTie() {
		t.Fatalf("expected timed-out tie, got %+v", fin)
	}
}

func TestDisconnectDoesNotEndRace(t *testing.T) {
	r := startedRoom(t)

	effects, err := r.Disconnect("y")
	if err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	note, ok := effects[0].(OpponentDisconnected)
	if !ok || note.NotifyUserID != "x" || note.UserID != "y" {
		t.Fatalf("effect = %+v", effects[0])
	}
	if r.State() != StateActive {
		t.Fatalf("state = %s, want ACTIVE", r.State())
	}

	effects, err = r.Disconnect("y")
	if err != nil || len(effects) != 0 {
		t.Fatalf("second disconnect = %v, %v", effects, err)
	}
}

func TestMoveRelaysToOpponent(t *testing.T) {
	r := newTestRoom()
	if _, err := r.Move("x", json.RawMessage(`{}`)); !errors.Is(err, ErrWrongState) {
		t.Fatalf("move before start err = %v", err)
	}

	r = startedRoom(t)
	effects, err := r.Move("x", json.RawMessage(`{"progress":0.5}`))
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	relay := effects[0].(MoveRelayed)
	if relay.To != "y" || relay.From != "x" {
		t.Fatalf("relay = %+v", relay)
	}
	if r.State() != StateActive {
		t.Fatalf("move changed state to %s", r.State())
	}
}

func TestAbandonOnlyBeforeStart(t *testing.T) {
	r := newTestRoom()
	effects, err := r.Abandon("ready_timeout")
	if err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if c := effects[0].(Cancelled); c.Reason != "ready_timeout" || len(c.Players) != 2 {
		t.Fatalf("cancelled = %+v", c)
	}
	if _, err := r.Ready("x", t0); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("ready after abandon err = %v, want ErrRoomClosed", err)
	}

	r = startedRoom(t)
	if _, err := r.Abandon("ready_timeout"); !errors.Is(err, ErrWrongState) {
		t.Fatalf("abandon active err = %v, want ErrWrongState", err)
	}
}
