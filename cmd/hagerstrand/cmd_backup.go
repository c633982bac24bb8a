package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvandessel/hagerstrand/internal/backup"
	"github.com/spf13/cobra"
)

func newRunsBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up every saved run to one archive",
		Long: `Write all saved runs, with their series and frames, to a checksummed
archive. Without --output the archive goes to the backup directory
(~/.hagerstrand/backups unless backup.dir is set) and older archives there
are rotated according to backup.keep_last and backup.max_age.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			maxAge, err := backup.ParseDuration(cfg.Backup.MaxAge)
			if err != nil {
				return fmt.Errorf("invalid backup.max_age: %w", err)
			}

			now := time.Now()
			rotateDir := ""
			if output == "" {
				rotateDir, err = cfg.ResolveBackupDir()
				if err != nil {
					return err
				}
				output = backup.GenerateBackupPath(rotateDir, now)
			}

			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			a, err := backup.Backup(cmd.Context(), s, output)
			if err != nil {
				return err
			}

			var rotated []string
			if rotateDir != "" {
				policy := backup.Policy{KeepLast: cfg.Backup.KeepLast, MaxAge: maxAge}
				if rotated, err = backup.Rotate(rotateDir, policy, now); err != nil {
					return fmt.Errorf("backup written but rotation failed: %w", err)
				}
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"path":    output,
					"runs":    len(a.Runs),
					"rotated": len(rotated),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up %d runs to %s\n", len(a.Runs), output)
			for _, p := range rotated {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed old backup %s\n", filepath.Base(p))
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Archive path (default: timestamped file in the backup directory)")

	return cmd
}

func newRunsRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Restore saved runs from a backup archive",
		Long: `Import the runs of a backup archive, keeping their IDs and creation times.

--mode merge (default) skips runs that already exist. --mode replace deletes
every saved run first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeName, _ := cmd.Flags().GetString("mode")

			mode, err := backup.ParseRestoreMode(modeName)
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

			result, err := backup.Restore(cmd.Context(), s, args[0], mode)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d runs (%d skipped, %d deleted)\n",
				result.RunsRestored, result.RunsSkipped, result.RunsDeleted)
			return nil
		},
	}

	cmd.Flags().String("mode", string(backup.RestoreMerge), "merge or replace")

	return cmd
}
