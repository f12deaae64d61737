package puzzles

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const selectMultiplayerIDs = `
SELECT id::text
FROM puzzles
WHERE multiplayer = true AND active = true
ORDER BY id`

// PostgresCatalogue serves puzzle IDs cached from the puzzles table. The
// cache is refreshed on a schedule so the hot path never hits the database.
type PostgresCatalogue struct {
	pool      *pgxpool.Pool
	set       *Set
	interval  time.Duration
	scheduler gocron.Scheduler
}

func NewPostgresCatalogue(pool *pgxpool.Pool, refresh time.Duration) *PostgresCatalogue {
	return &PostgresCatalogue{pool: pool, set: NewSet(), interval: refresh}
}

// Start loads the catalogue once and schedules refreshes.
func (c *PostgresCatalogue) Start(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create catalogue scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(c.interval),
		gocron.NewTask(func() {
			rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.Refresh(rctx); err != nil {
				log.Error().Err(err).Msg("puzzle catalogue refresh failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule catalogue refresh: %w", err)
	}
	c.scheduler = sched
	sched.Start()
	return nil
}

// Refresh reloads puzzle IDs. An empty result keeps the previous contents.
func (c *PostgresCatalogue) Refresh(ctx context.Context) error {
	rows, err := c.pool.Query(ctx, selectMultiplayerIDs)
	if err != nil {
		return fmt.Errorf("query puzzles: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scan puzzles: %w", err)
	}
	if len(ids) == 0 {
		log.Warn().Msg("puzzles table returned no multiplayer puzzles")
		return nil
	}

	c.set.Replace(ids)
	log.Debug().Int("count", c.set.Len()).Msg("puzzle catalogue refreshed")
	return nil
}

func (c *PostgresCatalogue) RandomPuzzleID(ctx context.Context) (string, error) {
	return c.set.RandomPuzzleID(ctx)
}

func (c *PostgresCatalogue) Stop() error {
	if c.scheduler == nil {
		return nil
	}
	return c.scheduler.Shutdown()
}
