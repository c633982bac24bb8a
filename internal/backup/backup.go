// Package backup writes the run catalog to a single checksummed archive and
// restores it, with retention for a directory of rotating backups.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/store"
)

// Archive is the decoded payload of a backup file.
type Archive struct {
	CreatedAt time.Time `json:"created_at"`
	Runs      []Record  `json:"runs"`
}

// Record is one run with everything needed to rebuild its result.
type Record struct {
	Run    store.Run `json:"run"`
	Series []int     `json:"series"`
	Frames []int32   `json:"frames"`
}

// Result rebuilds the run's result from the record.
func (r Record) Result() (*diffusion.Result, error) {
	return diffusion.Restore(r.Run.Config, r.Run.Mode, r.Series, r.Frames, r.Run.Stats)
}

// Backup reads every run from the store and writes it to outputPath.
func Backup(ctx context.Context, s store.RunStore, outputPath string) (*Archive, error) {
	runs, err := s.ListRuns(ctx, store.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	a := &Archive{
		CreatedAt: time.Now().UTC(),
		Runs:      make([]Record, 0, len(runs)),
	}
	for _, run := range runs {
		res, err := s.LoadResult(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", run.ID, err)
		}
		a.Runs = append(a.Runs, Record{
			Run:    run,
			Series: res.TimeSeries(),
			Frames: res.Frames(),
		})
	}

	if err := Write(outputPath, a); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}
	return a, nil
}

// RestoreMode controls how restore handles existing data.
type RestoreMode string

const (
	// RestoreMerge skips runs that already exist (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace deletes every run in the store before restoring.
	RestoreReplace RestoreMode = "replace"
)

// ParseRestoreMode maps a mode name to a RestoreMode. Empty means merge.
func ParseRestoreMode(s string) (RestoreMode, error) {
	switch RestoreMode(s) {
	case "", RestoreMerge:
		return RestoreMerge, nil
	case RestoreReplace:
		return RestoreReplace, nil
	default:
		return "", fmt.Errorf("invalid restore mode: %q (valid: merge, replace)", s)
	}
}

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	RunsRestored int `json:"runs_restored"`
	RunsSkipped  int `json:"runs_skipped"`
	RunsDeleted  int `json:"runs_deleted"`
}

// Restore imports the runs of a backup file into the store, keeping their
// IDs and creation times.
func Restore(ctx context.Context, s store.RunStore, inputPath string, mode RestoreMode) (*RestoreResult, error) {
	a, err := Read(inputPath)
	if err != nil {
		return nil, err
	}

	// Rebuild everything before touching the store.
	results := make([]*diffusion.Result, len(a.Runs))
	for i, rec := range a.Runs {
		if results[i], err = rec.Result(); err != nil {
			return nil, fmt.Errorf("invalid run %s in backup: %w", rec.Run.ID, err)
		}
	}

	result := &RestoreResult{}

	if mode == RestoreReplace {
		existing, err := s.ListRuns(ctx, store.ListFilter{})
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		for _, run := range existing {
			if err := s.DeleteRun(ctx, run.ID); err != nil {
				return nil, fmt.Errorf("failed to delete run %s: %w", run.ID, err)
			}
			result.RunsDeleted++
		}
	}

	for i, rec := range a.Runs {
		err := s.ImportRun(ctx, rec.Run, results[i])
		if errors.Is(err, store.ErrRunExists) {
			result.RunsSkipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to restore run %s: %w", rec.Run.ID, err)
		}
		result.RunsRestored++
	}

	return result, nil
}

// GenerateBackupPath creates a timestamped backup filename in the given directory.
func GenerateBackupPath(dir string, now time.Time) string {
	return filepath.Join(dir, filePrefix+now.Format(fileTimeLayout)+fileExt)
}
