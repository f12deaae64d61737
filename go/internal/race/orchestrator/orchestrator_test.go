package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/puzzlerace/go/internal/race/events"
	"github.com/mcdev12/puzzlerace/go/internal/race/outbox"
	"github.com/mcdev12/puzzlerace/go/internal/race/queue"
	"github.com/mcdev12/puzzlerace/go/internal/race/room"
	"github.com/mcdev12/puzzlerace/go/internal/race/store"
)

type message struct {
	userID    string
	eventType events.Type
	payload   any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []message
	ch   chan message
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan message, 256)}
}

func (n *recordingNotifier) SendToUser(userID string, t events.Type, payload any) bool {
	m := message{userID: userID, eventType: t, payload: payload}
	n.mu.Lock()
	n.sent = append(n.sent, m)
	n.mu.Unlock()
	n.ch <- m
	return true
}

func (n *recordingNotifier) SendToUsers(userIDs []string, t events.Type, payload any) {
	for _, id := range userIDs {
		n.SendToUser(id, t, payload)
	}
}

func (n *recordingNotifier) Broadcast(t events.Type, payload any) {}

func (n *recordingNotifier) ConnectedCount() int { return 2 }

// await returns the next message of type t addressed to userID.
func (n *recordingNotifier) await(t *testing.T, userID string, eventType events.Type) message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m := <-n.ch:
			if m.userID == userID && m.eventType == eventType {
				return m
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s to %s", eventType, userID)
		}
	}
}

func (n *recordingNotifier) count(userID string, eventType events.Type) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.userID == userID && m.eventType == eventType {
			c++
		}
	}
	return c
}

type award struct {
	userID string
	amount int
}

type recordingRewards struct {
	mu     sync.Mutex
	awards []award
}

func (r *recordingRewards) AwardCoins(_ context.Context, userID string, amount int, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.awards = append(r.awards, award{userID, amount})
	return nil
}

func (r *recordingRewards) all() []award {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]award(nil), r.awards...)
}

type recordingPublisher struct {
	ch chan outbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e outbox.Event) error {
	p.ch <- e
	return nil
}

func (p *recordingPublisher) await(t *testing.T, eventType string) outbox.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-p.ch:
			if e.EventType == eventType {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

type fixedPuzzle string

func (p fixedPuzzle) RandomPuzzleID(context.Context) (string, error) { return string(p), nil }

type harness struct {
	orch     *Orchestrator
	notifier *recordingNotifier
	rewards  *recordingRewards
	pub      *recordingPublisher
	clock    *clockwork.FakeClock
	store    *store.Store
	queue    *queue.Queue
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ReadyTimeout = 0
	cfg.TeardownGrace = 5 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	clock := clockwork.NewFakeClock()
	st := store.New(cfg.Rules)
	q := queue.New(queue.WithMembership(st.HasUser))
	h := &harness{
		notifier: newRecordingNotifier(),
		rewards:  &recordingRewards{},
		pub:      &recordingPublisher{ch: make(chan outbox.Event, 64)},
		clock:    clock,
		store:    st,
		queue:    q,
	}
	h.orch = New(Deps{
		Queue:     q,
		Store:     st,
		Puzzles:   fixedPuzzle("puzzle-42"),
		Rewards:   h.rewards,
		Publisher: h.pub,
		Notifier:  h.notifier,
		Clock:     clock,
	}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.orch.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func identity(id string) room.Identity {
	return room.Identity{UserID: id, DisplayName: id}
}

// matchXY queues x then y two seconds later and returns the room ID.
func (h *harness) matchXY(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	if err := h.orch.JoinMatchmaking(ctx, identity("x")); err != nil {
		t.Fatalf("join x: %v", err)
	}
	joined := h.notifier.await(t, "x", events.TypeMatchmakingJoined).payload.(events.MatchmakingJoinedPayload)
	if joined.Position != 1 {
		t.Fatalf("x position = %d, want 1", joined.Position)
	}

	h.clock.Advance(2 * time.Second)
	if err := h.orch.JoinMatchmaking(ctx, identity("y")); err != nil {
		t.Fatalf("join y: %v", err)
	}

	fx := h.notifier.await(t, "x", events.TypeMatchFound).payload.(events.MatchFoundPayload)
	fy := h.notifier.await(t, "y", events.TypeMatchFound).payload.(events.MatchFoundPayload)
	if fx.RoomID != fy.RoomID || fx.RoomCode != fy.RoomCode {
		t.Fatalf("players matched into different rooms: %+v / %+v", fx, fy)
	}
	if fx.Opponent.UserID != "y" || fy.Opponent.UserID != "x" {
		t.Fatalf("wrong opponents: %s / %s", fx.Opponent.UserID, fy.Opponent.UserID)
	}
	if fx.PuzzleID != "puzzle-42" {
		t.Fatalf("puzzle = %s", fx.PuzzleID)
	}
	h.pub.await(t, outbox.EventTypeMatchCreated)
	return fx.RoomID
}

func (h *harness) readyBoth(t *testing.T, roomID string) {
	t.Helper()
	ctx := context.Background()
	if err := h.orch.PlayerReady(ctx, "x", roomID); err != nil {
		t.Fatalf("ready x: %v", err)
	}
	if err := h.orch.PlayerReady(ctx, "y", roomID); err != nil {
		t.Fatalf("ready y: %v", err)
	}
	h.notifier.await(t, "x", events.TypeGameStart)
	h.notifier.await(t, "y", events.TypeGameStart)
}

func (h *harness) waitRoomGone(t *testing.T, roomID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := h.store.Get(roomID); errors.Is(err, store.ErrRoomNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s never torn down", roomID)
}

func TestEndToEndTimeoutWin(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	roomID := h.matchXY(t)
	h.readyBoth(t, roomID)

	if n := h.notifier.count("x", events.TypeGameStart); n != 1 {
		t.Fatalf("x received %d game_start, want 1", n)
	}

	h.clock.Advance(20 * time.Second)
	if err := h.orch.GameComplete(ctx, "x", roomID, false); err != nil {
		t.Fatalf("complete x: %v", err)
	}

	h.clock.Advance(40 * time.Second)
	res := h.notifier.await(t, "x", events.TypeGameResults).payload.(events.GameResultsPayload)
	h.notifier.await(t, "y", events.TypeGameResults)

	if !res.TimedOut {
		t.Fatalf("expected a timed-out race")
	}
	if res.WinnerUserID == nil || *res.WinnerUserID != "x" {
		t.Fatalf("winner = %v, want x", res.WinnerUserID)
	}
	if res.ScoreFor("x") != 800 || res.ScoreFor("y") != 0 {
		t.Fatalf("scores = %+v", res.Players)
	}

	h.pub.await(t, outbox.EventTypeMatchCompleted)
	awards := h.rewards.all()
	if len(awards) != 1 || awards[0].userID != "x" || awards[0].amount != 50 {
		t.Fatalf("awards = %+v", awards)
	}

	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("teardown timer: %v", err)
	}
	h.clock.Advance(5 * time.Second)
	h.waitRoomGone(t, roomID)

	if h.store.HasUser("x") || h.store.HasUser("y") {
		t.Fatalf("players still indexed after teardown")
	}
}

func TestBothCompleteFinishesBeforeDeadline(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	roomID := h.matchXY(t)
	h.readyBoth(t, roomID)

	h.clock.Advance(10 * time.Second)
	_ = h.orch.GameComplete(ctx, "y", roomID, false)
	h.clock.Advance(5 * time.Second)
	_ = h.orch.GameComplete(ctx, "x", roomID, false)

	res := h.notifier.await(t, "y", events.TypeGameResults).payload.(events.GameResultsPayload)
	if res.TimedOut {
		t.Fatalf("race should not have timed out")
	}
	if *res.WinnerUserID != "y" || res.ScoreFor("y") != 900 || res.ScoreFor("x") != 850 {
		t.Fatalf("result = %+v", res.MatchResult)
	}

	// only the teardown timer is left; the deadline was cancelled
	h.pub.await(t, outbox.EventTypeMatchCompleted)
	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("teardown timer: %v", err)
	}
	h.clock.Advance(60 * time.Second)
	h.waitRoomGone(t, roomID)

	if n := h.notifier.count("x", events.TypeGameResults); n != 1 {
		t.Fatalf("x received %d game_results, want 1", n)
	}
}

func TestDoubleTimeoutIsTieWithoutReward(t *testing.T) {
	h := newHarness(t, nil)

	roomID := h.matchXY(t)
	h.readyBoth(t, roomID)

	h.clock.Advance(60 * time.Second)
	res := h.notifier.await(t, "x", events.TypeGameResults).payload.(events.GameResultsPayload)
	if !res.IsTie() {
		t.Fatalf("winner = %v, want tie", *res.WinnerUserID)
	}
	if res.WinReward != 0 {
		t.Fatalf("win reward = %d on a tie", res.WinReward)
	}

	h.pub.await(t, outbox.EventTypeMatchCompleted)
	if awards := h.rewards.all(); len(awards) != 0 {
		t.Fatalf("awards on tie: %+v", awards)
	}
}

func TestDuplicateCompletionIgnored(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	roomID := h.matchXY(t)
	h.readyBoth(t, roomID)

	h.clock.Advance(20 * time.Second)
	if err := h.orch.GameComplete(ctx, "x", roomID, false); err != nil {
		t.Fatalf("complete x: %v", err)
	}
	h.clock.Advance(10 * time.Second)
	if err := h.orch.GameComplete(ctx, "x", roomID, false); !errors.Is(err, room.ErrAlreadyCompleted) {
		t.Fatalf("duplicate err = %v, want ErrAlreadyCompleted", err)
	}

	h.clock.Advance(30 * time.Second)
	res := h.notifier.await(t, "x", events.TypeGameResults).payload.(events.GameResultsPayload)
	if res.ScoreFor("x") != 800 {
		t.Fatalf("x score = %d, want 800", res.ScoreFor("x"))
	}
}

func TestReadyTimeoutCancelsMatch(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.ReadyTimeout = 10 * time.Second })
	ctx := context.Background()

	roomID := h.matchXY(t)
	if err := h.orch.PlayerReady(ctx, "x", roomID); err != nil {
		t.Fatalf("ready x: %v", err)
	}

	h.clock.Advance(10 * time.Second)
	c := h.notifier.await(t, "y", events.TypeMatchCancelled).payload.(events.MatchCancelledPayload)
	if c.RoomID != roomID || c.Reason != "ready_timeout" {
		t.Fatalf("cancelled = %+v", c)
	}
	h.waitRoomGone(t, roomID)

	if err := h.orch.JoinMatchmaking(ctx, identity("x")); err != nil {
		t.Fatalf("requeue after cancel: %v", err)
	}
	if h.queue.Position("x") != 1 {
		t.Fatalf("x should be queued again")
	}
}

func TestDisconnectNotifiesOpponent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	roomID := h.matchXY(t)
	h.readyBoth(t, roomID)

	h.orch.Disconnect(ctx, "y")
	d := h.notifier.await(t, "x", events.TypePlayerDisconnected).payload.(events.PlayerDisconnectedPayload)
	if d.UserID != "y" || d.RoomID != roomID {
		t.Fatalf("disconnect payload = %+v", d)
	}

	r, err := h.store.Get(roomID)
	if err != nil {
		t.Fatalf("room removed on disconnect: %v", err)
	}
	if r.State() != room.StateActive {
		t.Fatalf("state = %s, want ACTIVE", r.State())
	}

	h.clock.Advance(25 * time.Second)
	_ = h.orch.GameComplete(ctx, "x", roomID, false)
	h.clock.Advance(35 * time.Second)
	res := h.notifier.await(t, "x", events.TypeGameResults).payload.(events.GameResultsPayload)
	if *res.WinnerUserID != "x" || res.ScoreFor("x") != 750 {
		t.Fatalf("result = %+v", res.MatchResult)
	}
}

func TestJoinWhileInRoomRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.matchXY(t)

	err := h.orch.JoinMatchmaking(context.Background(), identity("x"))
	if !errors.Is(err, ErrAlreadyInRoom) {
		t.Fatalf("err = %v, want ErrAlreadyInRoom", err)
	}
}

func TestLeaveMatchmaking(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_ = h.orch.JoinMatchmaking(ctx, identity("x"))
	h.orch.LeaveMatchmaking("x")

	left := h.notifier.await(t, "x", events.TypeMatchmakingLeft).payload.(events.MatchmakingLeftPayload)
	if !left.Removed {
		t.Fatalf("expected x to be removed")
	}
	if h.queue.Len() != 0 {
		t.Fatalf("queue len = %d", h.queue.Len())
	}

	_ = h.orch.JoinMatchmaking(ctx, identity("y"))
	if h.queue.Position("y") != 1 {
		t.Fatalf("y should wait alone")
	}
}

func TestGameMoveRelayed(t *testing.T) {
	h := newHarness(t, nil)
	roomID := h.matchXY(t)
	h.readyBoth(t, roomID)

	if err := h.orch.GameMove(context.Background(), "x", roomID, []byte(`{"cells":12}`)); err != nil {
		t.Fatalf("move: %v", err)
	}
	m := h.notifier.await(t, "y", events.TypeGameMove).payload.(events.GameMoveRelayPayload)
	if m.UserID != "x" || string(m.Data) != `{"cells":12}` {
		t.Fatalf("relay = %+v", m)
	}
}

func TestCommandsForUnknownRoom(t *testing.T) {
	h := newHarness(t, nil)
	err := h.orch.PlayerReady(context.Background(), "x", "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, store.ErrRoomNotFound) {
		t.Fatalf("err = %v, want ErrRoomNotFound", err)
	}
}
