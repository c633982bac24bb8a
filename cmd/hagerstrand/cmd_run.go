package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/spf13/cobra"
)

// runOutput is the JSON form of a finished run.
type runOutput struct {
	RunID      string           `json:"run_id,omitempty"`
	Mode       diffusion.Mode   `json:"mode"`
	Config     diffusion.Config `json:"config"`
	Total      int              `json:"total"`
	Series     []int            `json:"series"`
	Cumulative []int            `json:"cumulative"`
	Stats      diffusion.Stats  `json:"stats"`
	Frame      [][]int          `json:"frame,omitempty"`
}

func newRunCmd() *cobra.Command {
	return newSimulateCmd("run", diffusion.ModeSpatial,
		"Run the spatial diffusion model",
		`Run the Hägerstrand model: every adopter contacts one individual per
iteration, chosen through the distance-decay kernel around its cell.

Parameters default to config.simulation and may be overridden by flags.

Examples:
  hagerstrand run                                  # Defaults from config
  hagerstrand run --rows 50 --cols 50 --max-iter 200
  hagerstrand run --fallback clamp --series        # Print new adopters per iteration
  hagerstrand run --save --label pilot             # Store in the run catalog`)
}

func newBaselineCmd() *cobra.Command {
	return newSimulateCmd("baseline", diffusion.ModeRandom,
		"Run the uniform-random baseline model",
		`Run the non-spatial baseline: every adopter contacts an individual chosen
uniformly over the whole grid. Use it to contrast against 'hagerstrand run'
with the same parameters and seed.`)
}

func newSimulateCmd(use string, mode diffusion.Mode, short, long string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			save, _ := cmd.Flags().GetBool("save")
			label, _ := cmd.Flags().GetString("label")
			showSeries, _ := cmd.Flags().GetBool("series")
			frame, _ := cmd.Flags().GetInt("frame")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applySimulationFlags(cmd, cfg); err != nil {
				return err
			}
			simCfg := cfg.Simulation.ToDiffusion()
			if frame >= simCfg.MaxIter {
				return fmt.Errorf("--frame must be below max-iter (%d), got %d", simCfg.MaxIter, frame)
			}

			logger := newLogger(cmd, cfg)
			trace := newTrace(cfg)
			defer trace.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			res, err := simulate(ctx, simCfg, mode,
				diffusion.WithLogger(logger),
				diffusion.WithObserver(trace.Observer(label, mode)))
			if err != nil {
				return err
			}

			out := runOutput{
				Mode:       mode,
				Config:     res.Config(),
				Total:      res.Total(),
				Series:     res.TimeSeries(),
				Cumulative: res.Cumulative(),
				Stats:      res.Stats(),
			}
			if frame >= 0 {
				out.Frame = res.FrameGrid(frame)
			}

			if save || cfg.Storage.SaveRuns {
				s, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer s.Close()

				run, err := s.SaveRun(ctx, label, res)
				if err != nil {
					return fmt.Errorf("failed to save run: %w", err)
				}
				out.RunID = run.ID
				logger.Info("run saved", "id", run.ID, "db", s.Path())
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}
			printRun(cmd.OutOrStdout(), out, showSeries, frame)
			return nil
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().Bool("save", false, "Save the run to the catalog")
	cmd.Flags().String("label", "", "Label stored with a saved run")
	cmd.Flags().Bool("series", false, "Print new and cumulative adopters per iteration")
	cmd.Flags().Int("frame", -1, "Print the per-cell counts after this iteration")

	return cmd
}

func printRun(w io.Writer, out runOutput, showSeries bool, frame int) {
	c := out.Config
	fmt.Fprintf(w, "%s run on %dx%d grid (capacity %d, kernel %d, p0 %.2f), %d iterations\n",
		out.Mode, c.Rows, c.Cols, c.Capacity, c.KernelSize, c.SelfWeight, c.MaxIter)
	fmt.Fprintf(w, "Adopted: %d of %d\n", out.Total, c.Rows*c.Cols*c.Capacity)
	printStats(w, out.Stats)
	if out.RunID != "" {
		fmt.Fprintf(w, "Saved as %s\n", out.RunID)
	}

	if showSeries {
		fmt.Fprintln(w)
		printSeries(w, out.Series, out.Cumulative)
	}

	if out.Frame != nil {
		fmt.Fprintf(w, "\nFrame %d:\n", frame)
		printFrame(w, out.Frame)
	}
}

func printStats(w io.Writer, s diffusion.Stats) {
	fmt.Fprintf(w, "Contacts: %d (wasted %d, skipped %d, clamped %d, retries %d)\n",
		s.Contacts, s.Wasted, s.Skipped, s.Clamped, s.Retries)
}

func printSeries(w io.Writer, series, cumulative []int) {
	fmt.Fprintf(w, "%-10s %10s %12s\n", "ITERATION", "NEW", "CUMULATIVE")
	for t := range series {
		fmt.Fprintf(w, "%-10d %10d %12d\n", t, series[t], cumulative[t])
	}
}

func printFrame(w io.Writer, frame [][]int) {
	width := 1
	for _, row := range frame {
		for _, v := range row {
			width = max(width, len(fmt.Sprint(v)))
		}
	}
	for _, row := range frame {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%*d", width, v)
		}
		fmt.Fprintln(w, strings.Join(cells, " "))
	}
}
