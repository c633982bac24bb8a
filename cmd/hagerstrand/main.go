package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hagerstrand",
		Short: "Hägerstrand spatial diffusion simulator",
		Long: `hagerstrand simulates the spread of an adoption across a grid of cells.

Each adopter contacts one individual per iteration. The spatial model picks
the contact through a distance-decay kernel (the mean information field)
around the adopter's cell; the baseline model picks it uniformly over the
whole grid. Finished runs can be saved, listed and exported as Arrow files.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.hagerstrand/config.yaml)")
	rootCmd.PersistentFlags().String("root", ".", "Working directory for relative export paths")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newBaselineCmd(),
		newKernelCmd(),
		newBatchCmd(),
		newRunsCmd(),
		newExportCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}
