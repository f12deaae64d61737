package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/puzzlerace/go/internal/race/events"
	"github.com/mcdev12/puzzlerace/go/internal/race/outbox"
	"github.com/mcdev12/puzzlerace/go/internal/race/queue"
	"github.com/mcdev12/puzzlerace/go/internal/race/room"
	"github.com/mcdev12/puzzlerace/go/internal/race/scoring"
	"github.com/mcdev12/puzzlerace/go/internal/race/store"
)

var (
	ErrAlreadyInRoom = errors.New("player already in a room")
	ErrNoPuzzle      = errors.New("no puzzle available")
)

// Notifier delivers outbound messages. The gateway's connection manager
// implements it.
type Notifier interface {
	SendToUser(userID string, eventType events.Type, payload any) bool
	SendToUsers(userIDs []string, eventType events.Type, payload any)
	Broadcast(eventType events.Type, payload any)
	ConnectedCount() int
}

// PuzzleSource picks the shared puzzle for a new room.
type PuzzleSource interface {
	RandomPuzzleID(ctx context.Context) (string, error)
}

// Rewarder credits coins to a race winner.
type Rewarder interface {
	AwardCoins(ctx context.Context, userID string, amount int, reason string) error
}

type Config struct {
	Rules         scoring.Rules
	ReadyTimeout  time.Duration // zero disables the ready check timeout
	TeardownGrace time.Duration
	WinReward     int
	Workers       int
	RewardTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Rules:         scoring.DefaultRules(),
		ReadyTimeout:  30 * time.Second,
		TeardownGrace: 5 * time.Second,
		WinReward:     50,
		Workers:       4,
		RewardTimeout: 5 * time.Second,
	}
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Queue     *queue.Queue
	Store     *store.Store
	Puzzles   PuzzleSource
	Rewards   Rewarder
	Publisher outbox.Publisher
	Notifier  Notifier
	Clock     clockwork.Clock
}

// Orchestrator routes player commands into the queue and rooms, runs the
// per-room timers and carries out the side effects rooms ask for.
type Orchestrator struct {
	queue     *queue.Queue
	store     *store.Store
	puzzles   PuzzleSource
	rewards   Rewarder
	publisher outbox.Publisher
	notifier  Notifier
	clock     clockwork.Clock
	config    Config

	instanceID string
	numWorkers int
	workCh     chan timerJob
	done       chan struct{}
	stopOnce   sync.Once

	// one live timer per room: ready check, then deadline, then teardown
	activeTimers   map[string]*roomTimer
	activeTimersMu sync.Mutex
}

// New wires an orchestrator. Call Run to start processing timers.
func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Publisher == nil {
		deps.Publisher = outbox.LogPublisher{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RewardTimeout <= 0 {
		cfg.RewardTimeout = DefaultConfig().RewardTimeout
	}
	return &Orchestrator{
		queue:        deps.Queue,
		store:        deps.Store,
		puzzles:      deps.Puzzles,
		rewards:      deps.Rewards,
		publisher:    deps.Publisher,
		notifier:     deps.Notifier,
		clock:        deps.Clock,
		config:       cfg,
		instanceID:   uuid.New().String()[:8],
		numWorkers:   cfg.Workers,
		workCh:       make(chan timerJob, cfg.Workers*2),
		done:         make(chan struct{}),
		activeTimers: make(map[string]*roomTimer),
	}
}

// Stats is a point-in-time view for the stats endpoint.
type Stats struct {
	QueueLength   int `json:"queueLength"`
	ActiveRooms   int `json:"activeRooms"`
	ActiveTimers  int `json:"activeTimers"`
	ActivePlayers int `json:"activePlayers"`
}

func (o *Orchestrator) Stats() Stats {
	o.activeTimersMu.Lock()
	timers := len(o.activeTimers)
	o.activeTimersMu.Unlock()

	return Stats{
		QueueLength:   o.queue.Len(),
		ActiveRooms:   o.store.Len(),
		ActiveTimers:  timers,
		ActivePlayers: o.notifier.ConnectedCount(),
	}
}

// ActiveRooms snapshots every stored room.
func (o *Orchestrator) ActiveRooms() []room.Snapshot {
	rooms := o.store.Active()
	out := make([]room.Snapshot, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Snapshot())
	}
	return out
}

// RoomByCode snapshots the room with the given code.
func (o *Orchestrator) RoomByCode(code string) (room.Snapshot, error) {
	r, err := o.store.GetByCode(code)
	if err != nil {
		return room.Snapshot{}, err
	}
	return r.Snapshot(), nil
}

// OnEvict is handed to the store janitor so evicted rooms lose their timers.
func (o *Orchestrator) OnEvict(r *room.Room) {
	o.cancelTimer(r.ID)
}

func playerInfo(id room.Identity) events.PlayerInfo {
	return events.PlayerInfo{
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		Avatar:      id.Avatar,
	}
}
