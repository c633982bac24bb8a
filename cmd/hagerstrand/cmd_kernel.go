package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nvandessel/hagerstrand/internal/kernel"
	"github.com/spf13/cobra"
)

type kernelOutput struct {
	Size       int         `json:"size"`
	SelfWeight float64     `json:"self_weight"`
	Weights    [][]float64 `json:"weights"`
	CDF        []float64   `json:"cdf"`
}

func newKernelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kernel",
		Short: "Show the contact probability kernel",
		Long: `Print the normalized mean information field for a kernel size and
self-weight, together with its cumulative distribution.

Examples:
  hagerstrand kernel                              # Size and p0 from config
  hagerstrand kernel --size 7 --self-weight 0.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			size := cfg.Simulation.KernelSize
			if cmd.Flags().Changed("size") {
				size, _ = cmd.Flags().GetInt("size")
			}
			p0 := cfg.Simulation.SelfWeight
			if cmd.Flags().Changed("self-weight") {
				p0, _ = cmd.Flags().GetFloat64("self-weight")
			}

			k, err := kernel.New(size, p0)
			if err != nil {
				return fmt.Errorf("invalid kernel: %w", err)
			}

			out := kernelOutput{
				Size:       k.Size(),
				SelfWeight: k.SelfWeight(),
				Weights:    k.Matrix(),
				CDF:        k.CDF(),
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Kernel %dx%d, p0 = %.4f\n\n", out.Size, out.Size, out.SelfWeight)
			for _, row := range out.Weights {
				cells := make([]string, len(row))
				for i, v := range row {
					cells[i] = fmt.Sprintf("%.4f", v)
				}
				fmt.Fprintln(w, strings.Join(cells, "  "))
			}
			fmt.Fprintln(w, "\nCDF:")
			for i := 0; i < len(out.CDF); i += out.Size {
				cells := make([]string, 0, out.Size)
				for _, v := range out.CDF[i : i+out.Size] {
					cells = append(cells, fmt.Sprintf("%.4f", v))
				}
				fmt.Fprintln(w, strings.Join(cells, "  "))
			}
			return nil
		},
	}

	cmd.Flags().Int("size", 0, "Kernel side length (odd)")
	cmd.Flags().Float64("self-weight", 0, "Probability of the center cell (p0)")

	return cmd
}
