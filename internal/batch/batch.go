// Package batch runs independent replicates of one configuration and
// aggregates their time series.
//
// Replicate i uses RandSeed+i, so a batch is deterministic for a given base
// seed regardless of parallelism. Every replicate owns its engine; engines
// are never shared between goroutines.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrInvalidReplicates is returned when fewer than one replicate is requested.
var ErrInvalidReplicates = errors.New("replicates must be positive")

// Options controls a batch.
type Options struct {
	Replicates  int
	Parallelism int // <= 0 means GOMAXPROCS
	Logger      *slog.Logger

	// Observer, when set, returns the per-iteration callback for replicate i.
	// The returned function is called from that replicate's goroutine only.
	Observer func(i int, randSeed uint64) func(diffusion.Iteration)
}

// Replicate is one finished run of the batch.
type Replicate struct {
	Index    int
	RandSeed uint64
	Result   *diffusion.Result
}

// Summary aggregates new adoptions per iteration across replicates.
type Summary struct {
	Config     diffusion.Config
	Mode       diffusion.Mode
	Replicates []Replicate

	Mean   []float64 // mean new adoptions per iteration
	StdDev []float64 // sample standard deviation, 0 for a single replicate
	Min    []float64
	Max    []float64

	MeanTotal float64 // mean adopters at the end of a run
}

// Run executes opts.Replicates engines of the given mode over cfg and
// aggregates their series. It stops early if ctx is cancelled.
func Run(ctx context.Context, cfg diffusion.Config, mode diffusion.Mode, opts Options) (*Summary, error) {
	if opts.Replicates < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidReplicates, opts.Replicates)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limit := opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	reps := make([]Replicate, opts.Replicates)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range reps {
		g.Go(func() error {
			rc := cfg
			rc.RandSeed = cfg.RandSeed + uint64(i)

			engineOpts := []diffusion.Option{diffusion.WithLogger(logger.With("replicate", i))}
			if opts.Observer != nil {
				if fn := opts.Observer(i, rc.RandSeed); fn != nil {
					engineOpts = append(engineOpts, diffusion.WithObserver(fn))
				}
			}

			e, err := diffusion.New(rc, mode, engineOpts...)
			if err != nil {
				return fmt.Errorf("replicate %d: %w", i, err)
			}
			for e.Step() {
				if err := gctx.Err(); err != nil {
					return err
				}
			}
			res, _ := e.Result()
			reps[i] = Replicate{Index: i, RandSeed: rc.RandSeed, Result: res}
			logger.Debug("replicate finished", "replicate", i, "rand_seed", rc.RandSeed, "total", res.Total())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := summarize(cfg, mode, reps)
	logger.Info("batch complete", "mode", mode, "replicates", len(reps), "mean_total", s.MeanTotal)
	return s, nil
}

func summarize(cfg diffusion.Config, mode diffusion.Mode, reps []Replicate) *Summary {
	s := &Summary{
		Config:     cfg,
		Mode:       mode,
		Replicates: reps,
		Mean:       make([]float64, cfg.MaxIter),
		StdDev:     make([]float64, cfg.MaxIter),
		Min:        make([]float64, cfg.MaxIter),
		Max:        make([]float64, cfg.MaxIter),
	}

	series := make([][]int, len(reps))
	totals := make([]float64, len(reps))
	for i, r := range reps {
		series[i] = r.Result.TimeSeries()
		totals[i] = float64(r.Result.Total())
	}

	column := make([]float64, len(reps))
	for t := 0; t < cfg.MaxIter; t++ {
		for i := range reps {
			column[i] = float64(series[i][t])
		}
		mean, std := stat.MeanStdDev(column, nil)
		if len(column) < 2 || math.IsNaN(std) {
			std = 0
		}
		s.Mean[t] = mean
		s.StdDev[t] = std
		s.Min[t] = floats.Min(column)
		s.Max[t] = floats.Max(column)
	}
	s.MeanTotal = stat.Mean(totals, nil)
	return s
}
