package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"

	"github.com/mcdev12/puzzlerace/go/internal/dbconfig"
	"github.com/mcdev12/puzzlerace/go/internal/puzzles"
	"github.com/mcdev12/puzzlerace/go/internal/sqlutil"
)

const createPuzzles = `
CREATE TABLE IF NOT EXISTS puzzles (
  id          TEXT PRIMARY KEY,
  type        TEXT NOT NULL DEFAULT '',
  difficulty  TEXT NOT NULL DEFAULT '',
  multiplayer BOOLEAN NOT NULL DEFAULT false,
  active      BOOLEAN NOT NULL DEFAULT true,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertPuzzle = `
INSERT INTO puzzles (id, type, difficulty, multiplayer)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET type = EXCLUDED.type,
    difficulty = EXCLUDED.difficulty,
    multiplayer = EXCLUDED.multiplayer
WHERE (puzzles.type, puzzles.difficulty, puzzles.multiplayer)
   IS DISTINCT FROM (EXCLUDED.type, EXCLUDED.difficulty, EXCLUDED.multiplayer)`

func main() {
	ctx := context.Background()

	path := "puzzles.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	entries, err := puzzles.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load puzzles: %v\n", err)
		os.Exit(1)
	}

	pool, err := dbconfig.NewConfigFromEnv().Open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	var (
		total    = len(entries)
		upserted int
		skipped  int
	)

	// all or nothing
	err = sqlutil.Run(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createPuzzles); err != nil {
			return fmt.Errorf("create puzzles table: %w", err)
		}
		for _, p := range entries {
			tag, err := tx.Exec(ctx, upsertPuzzle, p.ID, p.Type, p.Difficulty, p.Multiplayer)
			if err != nil {
				return fmt.Errorf("upsert puzzle %s: %w", p.ID, err)
			}
			if tag.RowsAffected() == 1 {
				upserted++
			} else {
				skipped++
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed, nothing written: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf(
		"Puzzles seed complete: %d total, %d upserted, %d unchanged\n",
		total, upserted, skipped,
	)
}
