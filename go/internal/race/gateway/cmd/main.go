package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/puzzlerace/go/internal/auth"
	"github.com/mcdev12/puzzlerace/go/internal/config"
	"github.com/mcdev12/puzzlerace/go/internal/dbconfig"
	"github.com/mcdev12/puzzlerace/go/internal/profile"
	"github.com/mcdev12/puzzlerace/go/internal/puzzles"
	"github.com/mcdev12/puzzlerace/go/internal/race/gateway"
	"github.com/mcdev12/puzzlerace/go/internal/race/orchestrator"
	"github.com/mcdev12/puzzlerace/go/internal/race/outbox"
	"github.com/mcdev12/puzzlerace/go/internal/race/scoring"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authenticator, err := newAuthenticator(cfg.Auth)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure authentication")
	}
	profiles := newProfileProvider(cfg.Profile)

	catalogue, closeCatalogue, err := newPuzzleCatalogue(ctx, cfg.Puzzles)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load puzzle catalogue")
	}
	defer closeCatalogue()

	publisher, closePublisher, err := newPublisher(ctx, cfg.NATS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect event publisher")
	}
	defer closePublisher()

	service := gateway.NewService(serviceConfig(cfg), gateway.Deps{
		Authenticator: authenticator,
		Profiles:      profiles,
		Puzzles:       catalogue,
		Publisher:     publisher,
	})

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      gateway.NewHTTPHandler(mux, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	log.Info().
		Str("port", cfg.Server.Port).
		Str("auth_mode", cfg.Auth.Mode).
		Str("profile_mode", cfg.Profile.Mode).
		Str("puzzle_source", cfg.Puzzles.Source).
		Bool("nats", cfg.NATS.Enabled).
		Msg("starting puzzle race gateway")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return service.Start(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("gateway exited with error")
		return
	}
	log.Info().Msg("gateway stopped")
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func serviceConfig(cfg *config.Config) gateway.Config {
	sc := gateway.DefaultConfig()

	sc.ConnectionConfig.ReadBufferSize = cfg.WebSocket.ReadBufferSize
	sc.ConnectionConfig.WriteBufferSize = cfg.WebSocket.WriteBufferSize
	sc.ConnectionConfig.WriteTimeout = cfg.WebSocket.WriteWait
	sc.ConnectionConfig.ReadTimeout = cfg.WebSocket.PongWait
	sc.ConnectionConfig.PingInterval = cfg.WebSocket.PingPeriod
	sc.ConnectionConfig.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	sc.ConnectionConfig.SendBufferSize = cfg.WebSocket.SendBufferSize
	sc.ConnectionConfig.CheckOrigin = gateway.OriginChecker(cfg.Server.AllowedOrigins)

	sc.Orchestrator = orchestrator.Config{
		Rules: scoring.Rules{
			Base:         cfg.Race.BaseScore,
			Rate:         cfg.Race.PenaltyPerSecond,
			RaceDuration: cfg.Race.Duration,
		},
		ReadyTimeout:  cfg.Race.ReadyTimeout,
		TeardownGrace: cfg.Race.TeardownGrace,
		WinReward:     cfg.Race.WinReward,
		Workers:       cfg.Race.Workers,
		RewardTimeout: cfg.Profile.Timeout,
	}

	sc.MaxRoomAge = cfg.Store.MaxRoomAge
	sc.SweepInterval = cfg.Store.SweepInterval
	return sc
}

func newAuthenticator(cfg config.AuthConfig) (auth.Authenticator, error) {
	if cfg.Mode == "insecure" {
		log.Warn().Msg("insecure authentication enabled: ?user_id= is trusted")
		return auth.InsecureAuthenticator{}, nil
	}
	return auth.NewTicketService(cfg.JWTSecret, cfg.TicketTTL)
}

func newProfileProvider(cfg config.ProfileConfig) profile.Provider {
	if cfg.Mode == "connect" {
		return profile.NewConnectClient(&http.Client{Timeout: cfg.Timeout}, cfg.URL)
	}
	return profile.NewStaticProvider()
}

func newPuzzleCatalogue(ctx context.Context, cfg config.PuzzlesConfig) (orchestrator.PuzzleSource, func(), error) {
	noop := func() {}

	switch cfg.Source {
	case "yaml":
		set, err := puzzles.LoadYAML(cfg.File)
		if err != nil {
			return nil, noop, err
		}
		log.Info().Int("puzzles", set.Len()).Str("file", cfg.File).Msg("loaded puzzle catalogue")
		return set, noop, nil

	case "postgres":
		dbCfg := dbconfig.NewConfigFromEnv()
		pool, err := dbCfg.Open(ctx)
		if err != nil {
			return nil, noop, err
		}
		catalogue := puzzles.NewPostgresCatalogue(pool, cfg.RefreshInterval)
		if err := catalogue.Start(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		log.Info().Str("database", dbCfg.Database).Msg("using postgres puzzle catalogue")
		return catalogue, func() {
			if err := catalogue.Stop(); err != nil {
				log.Error().Err(err).Msg("failed to stop catalogue refresh")
			}
			pool.Close()
		}, nil

	default:
		return puzzles.NewSet(cfg.IDs...), noop, nil
	}
}

func newPublisher(ctx context.Context, cfg config.NATSConfig) (outbox.Publisher, func(), error) {
	if !cfg.Enabled {
		return outbox.LogPublisher{}, func() {}, nil
	}

	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = cfg.URL
	jsCfg.StreamName = cfg.Stream
	jsCfg.SubjectPrefix = cfg.SubjectPrefix

	publisher, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		return nil, func() {}, err
	}
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
		}
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
