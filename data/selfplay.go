package data

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

type SelfPlayConfig struct {
	Games   int
	Workers int    // 0 means GOMAXPROCS
	Seed    uint64 // game i always replays the same way for a given seed

	Logger logr.Logger
}

type SelfPlayStats struct {
	WinsA int
	WinsB int
	Draws int
}

func (s *SelfPlayStats) add(o Outcome) {
	switch o {
	case OutcomePlayerAWins:
		s.WinsA++
	case OutcomePlayerBWins:
		s.WinsB++
	case OutcomeDraw:
		s.Draws++
	}
}

// PlayRandomGame plays uniformly random legal moves until the game ends.
func PlayRandomGame(rng *rand.Rand) *Game {
	g := NewGame()
	for !g.Over() {
		empty := g.EmptyCells()
		// Play cannot fail on a cell taken from EmptyCells.
		_ = g.Play(empty[rng.IntN(len(empty))])
	}
	return g
}

// SelfPlay generates cfg.Games random games on a pool of workers. Each
// game draws from its own generator seeded by (Seed, index), so the
// result does not depend on scheduling.
func SelfPlay(ctx context.Context, cfg SelfPlayConfig) ([]GameRecord, SelfPlayStats, error) {
	var stats SelfPlayStats
	if cfg.Games <= 0 {
		return nil, stats, fmt.Errorf("self-play: games must be positive, got %d", cfg.Games)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	records := make([]GameRecord, cfg.Games)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < cfg.Games; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
			records[i] = PlayRandomGame(rng).Record(fmt.Sprintf("selfplay-%d-%d", cfg.Seed, i))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	for i := range records {
		stats.add(records[i].Outcome)
	}
	cfg.Logger.Info("self-play finished", "games", cfg.Games, "workers", workers,
		"xWins", stats.WinsA, "oWins", stats.WinsB, "draws", stats.Draws, "elapsed", time.Since(start))
	return records, stats, nil
}
