package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/puzzlerace/go/internal/auth"
	"github.com/mcdev12/puzzlerace/go/internal/profile"
	"github.com/mcdev12/puzzlerace/go/internal/race/orchestrator"
	"github.com/mcdev12/puzzlerace/go/internal/race/outbox"
	"github.com/mcdev12/puzzlerace/go/internal/race/queue"
	"github.com/mcdev12/puzzlerace/go/internal/race/store"
)

// Service is the race gateway: websocket transport in front of the
// matchmaking queue, the room store and the orchestrator.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	orchestrator      *orchestrator.Orchestrator
	janitor           *store.Janitor
	outbox            *outbox.Worker
	startedAt         time.Time
}

type Config struct {
	ConnectionConfig ConnectionConfig
	Orchestrator     orchestrator.Config
	Outbox           outbox.Config
	MaxRoomAge       time.Duration
	SweepInterval    time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Orchestrator:     orchestrator.DefaultConfig(),
		Outbox:           outbox.DefaultConfig(),
		MaxRoomAge:       15 * time.Minute,
		SweepInterval:    time.Minute,
	}
}

// Deps are the external collaborators of the gateway.
type Deps struct {
	Authenticator auth.Authenticator
	Profiles      profile.Provider
	Puzzles       orchestrator.PuzzleSource
	Publisher     outbox.Publisher
	Clock         clockwork.Clock
}

func NewService(config Config, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Publisher == nil {
		deps.Publisher = outbox.LogPublisher{}
	}

	cm := NewConnectionManager(config.ConnectionConfig)

	roomStore := store.New(config.Orchestrator.Rules)
	waiting := queue.New(queue.WithMembership(roomStore.HasUser))
	worker := outbox.NewWorker(deps.Publisher, config.Outbox)

	orch := orchestrator.New(orchestrator.Deps{
		Queue:     waiting,
		Store:     roomStore,
		Puzzles:   deps.Puzzles,
		Rewards:   deps.Profiles,
		Publisher: worker,
		Notifier:  cm,
		Clock:     deps.Clock,
	}, config.Orchestrator)

	cm.SetHandler(NewDispatcher(orch, cm))

	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, deps.Authenticator, deps.Profiles),
		stateHandler:      NewStateHandler(orch),
		orchestrator:      orch,
		janitor:           store.NewJanitor(roomStore, deps.Clock, config.SweepInterval, config.MaxRoomAge, orch.OnEvict),
		outbox:            worker,
		startedAt:         time.Now(),
	}
}

// Start runs the gateway until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting race gateway service")

	if err := s.outbox.Start(ctx); err != nil {
		return fmt.Errorf("start outbox worker: %w", err)
	}
	defer s.outbox.Stop()

	if err := s.janitor.Start(); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	defer func() {
		if err := s.janitor.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop janitor")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.connectionManager.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return s.orchestrator.Run(gctx)
	})

	err := g.Wait()
	log.Info().Msg("race gateway service stopped")
	return err
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.GetStats())
	})
	log.Info().Msg("race gateway routes registered")
}

// GetStats returns service-level counters.
func (s *Service) GetStats() map[string]any {
	st := s.orchestrator.Stats()
	return map[string]any{
		"service":       "puzzlerace-gateway",
		"status":        "running",
		"uptime_sec":    int(time.Since(s.startedAt).Seconds()),
		"connections":   st.ActivePlayers,
		"queue_length":  st.QueueLength,
		"active_rooms":  st.ActiveRooms,
		"active_timers": st.ActiveTimers,
	}
}
