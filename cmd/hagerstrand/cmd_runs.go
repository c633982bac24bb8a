package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/store"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage saved runs",
		Long: `List, inspect and delete runs stored in the run catalog.

The catalog is ~/.hagerstrand/runs.db unless storage.db_path is set.

Examples:
  hagerstrand runs list --mode spatial --limit 5
  hagerstrand runs show <run-id> --series
  hagerstrand runs delete <run-id>
  hagerstrand runs backup
  hagerstrand runs restore ~/.hagerstrand/backups/<file> --mode merge`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
		newRunsBackupCmd(),
		newRunsRestoreCmd(),
	)

	return cmd
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeName, _ := cmd.Flags().GetString("mode")
			limit, _ := cmd.Flags().GetInt("limit")

			filter := store.ListFilter{Limit: limit}
			if modeName != "" {
				mode, err := diffusion.ParseMode(modeName)
				if err != nil {
					return err
				}
				filter.Mode = mode
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}

			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "No saved runs.")
				return nil
			}
			fmt.Fprintf(w, "%-36s  %-8s  %-9s  %6s  %8s  %-20s  %s\n",
				"ID", "MODE", "GRID", "ITERS", "ADOPTED", "CREATED", "LABEL")
			for _, r := range runs {
				fmt.Fprintf(w, "%-36s  %-8s  %-9s  %6d  %8d  %-20s  %s\n",
					r.ID, r.Mode, fmt.Sprintf("%dx%d", r.Config.Rows, r.Config.Cols),
					r.Config.MaxIter, r.Total, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Label)
			}
			return nil
		},
	}

	cmd.Flags().String("mode", "", "Only list runs of this model (spatial or random)")
	cmd.Flags().Int("limit", 20, "Maximum number of runs, 0 for all")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			showSeries, _ := cmd.Flags().GetBool("series")
			frame, _ := cmd.Flags().GetInt("frame")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.LoadResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if frame >= res.Iterations() {
				return fmt.Errorf("--frame must be below %d, got %d", res.Iterations(), frame)
			}

			out := runOutput{
				RunID:      args[0],
				Mode:       res.Mode(),
				Config:     res.Config(),
				Total:      res.Total(),
				Series:     res.TimeSeries(),
				Cumulative: res.Cumulative(),
				Stats:      res.Stats(),
			}
			if frame >= 0 {
				out.Frame = res.FrameGrid(frame)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}
			printRun(cmd.OutOrStdout(), out, showSeries, frame)
			return nil
		},
	}

	cmd.Flags().Bool("series", false, "Print new and cumulative adopters per iteration")
	cmd.Flags().Int("frame", -1, "Print the per-cell counts after this iteration")

	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status": "deleted",
					"id":     args[0],
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}
