package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/hagerstrand/internal/export"
	"github.com/nvandessel/hagerstrand/internal/pathutil"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a saved run as an Arrow IPC file",
		Long: `Write a saved run in the Arrow IPC file format for external renderers.

--kind series writes one row per iteration (iteration, new_adopted,
cumulative). --kind frames writes the non-zero cumulative counts of every
cell after every iteration (iteration, row, col, adopted). Both carry the run
configuration in the schema metadata.

Examples:
  hagerstrand export <run-id>                      # ~/.hagerstrand/exports/<run-id>-series.arrow
  hagerstrand export <run-id> --kind frames -o frames.arrow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			kindName, _ := cmd.Flags().GetString("kind")
			output, _ := cmd.Flags().GetString("output")
			root, _ := cmd.Flags().GetString("root")
			id := args[0]

			kind, err := export.ParseKind(kindName)
			if err != nil {
				return err
			}

			outPath, err := exportPath(output, root, id, kind)
			if err != nil {
				return err
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

			res, err := s.LoadResult(cmd.Context(), id)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
				return fmt.Errorf("failed to create export directory: %w", err)
			}
			if err := export.WriteFile(outPath, kind, res); err != nil {
				return fmt.Errorf("failed to export run: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"run_id": id,
					"kind":   string(kind),
					"path":   outPath,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s of run %s to %s\n", kind, id, outPath)
			return nil
		},
	}

	cmd.Flags().String("kind", string(export.KindSeries), "What to export: series or frames")
	cmd.Flags().StringP("output", "o", "", "Output file (default ~/.hagerstrand/exports/<run-id>-<kind>.arrow)")

	return cmd
}

// exportPath picks the output file. Relative paths are taken from root.
func exportPath(output, root, id string, kind export.Kind) (string, error) {
	if output == "" {
		return pathutil.DefaultExportPath(id, string(kind))
	}
	if !filepath.IsAbs(output) {
		output = filepath.Join(root, output)
	}
	return filepath.Abs(output)
}
