package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nvandessel/hagerstrand/internal/batch"
	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/spf13/cobra"
)

type batchOutput struct {
	Mode       diffusion.Mode   `json:"mode"`
	Config     diffusion.Config `json:"config"`
	Replicates int              `json:"replicates"`
	Seeds      []uint64         `json:"seeds"`
	Totals     []int            `json:"totals"`
	Mean       []float64        `json:"mean"`
	StdDev     []float64        `json:"stddev"`
	Min        []float64        `json:"min"`
	Max        []float64        `json:"max"`
	MeanTotal  float64          `json:"mean_total"`
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run replicates and aggregate their time series",
		Long: `Run independent replicates of one model with generator seeds
rand-seed, rand-seed+1, ... and report the per-iteration mean, standard
deviation, minimum and maximum of new adopters.

Examples:
  hagerstrand batch --replicates 20
  hagerstrand batch --mode random --replicates 50 --parallelism 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeName, _ := cmd.Flags().GetString("mode")

			mode, err := diffusion.ParseMode(modeName)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("replicates") {
				cfg.Batch.Replicates, _ = cmd.Flags().GetInt("replicates")
			}
			if cmd.Flags().Changed("parallelism") {
				cfg.Batch.Parallelism, _ = cmd.Flags().GetInt("parallelism")
			}
			if err := applySimulationFlags(cmd, cfg); err != nil {
				return err
			}

			logger := newLogger(cmd, cfg)
			trace := newTrace(cfg)
			defer trace.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			summary, err := batch.Run(ctx, cfg.Simulation.ToDiffusion(), mode, batch.Options{
				Replicates:  cfg.Batch.Replicates,
				Parallelism: cfg.Batch.Parallelism,
				Logger:      logger,
				Observer: func(i int, seed uint64) func(diffusion.Iteration) {
					return trace.Observer(fmt.Sprintf("batch-%d", seed), mode)
				},
			})
			if err != nil {
				return fmt.Errorf("batch failed: %w", err)
			}

			out := newBatchOutput(summary)
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}
			printBatch(cmd.OutOrStdout(), out)
			return nil
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().String("mode", string(diffusion.ModeSpatial), "Model: spatial or random")
	cmd.Flags().Int("replicates", 0, "Number of replicates (default from config)")
	cmd.Flags().Int("parallelism", 0, "Concurrent replicates, 0 for one per CPU")

	return cmd
}

func newBatchOutput(s *batch.Summary) batchOutput {
	out := batchOutput{
		Mode:       s.Mode,
		Config:     s.Config,
		Replicates: len(s.Replicates),
		Seeds:      make([]uint64, len(s.Replicates)),
		Totals:     make([]int, len(s.Replicates)),
		Mean:       s.Mean,
		StdDev:     s.StdDev,
		Min:        s.Min,
		Max:        s.Max,
		MeanTotal:  s.MeanTotal,
	}
	for i, r := range s.Replicates {
		out.Seeds[i] = r.RandSeed
		out.Totals[i] = r.Result.Total()
	}
	return out
}

func printBatch(w io.Writer, out batchOutput) {
	c := out.Config
	fmt.Fprintf(w, "%d %s replicates on %dx%d grid, %d iterations (seeds %d..%d)\n",
		out.Replicates, out.Mode, c.Rows, c.Cols, c.MaxIter,
		out.Seeds[0], out.Seeds[len(out.Seeds)-1])
	fmt.Fprintf(w, "Mean adopters: %.1f\n\n", out.MeanTotal)
	fmt.Fprintf(w, "%-10s %10s %10s %8s %8s\n", "ITERATION", "MEAN", "STDDEV", "MIN", "MAX")
	for t := range out.Mean {
		fmt.Fprintf(w, "%-10d %10.2f %10.2f %8.0f %8.0f\n", t, out.Mean[t], out.StdDev[t], out.Min[t], out.Max[t])
	}
}
