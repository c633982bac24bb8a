// Package store defines the RunStore interface for persisting completed
// diffusion runs, with in-memory and SQLite implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/sanitize"
)

var (
	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunExists is returned when importing a run whose ID is taken.
	ErrRunExists = errors.New("run already exists")
)

// Run is the catalog entry of a persisted run.
type Run struct {
	ID        string           `json:"id"`
	Label     string           `json:"label,omitempty"`
	Mode      diffusion.Mode   `json:"mode"`
	Config    diffusion.Config `json:"config"`
	Total     int              `json:"total"` // adopters at the end of the run
	Stats     diffusion.Stats  `json:"stats"`
	CreatedAt time.Time        `json:"created_at"`
}

// ListFilter narrows ListRuns. Zero values match everything.
type ListFilter struct {
	Mode  diffusion.Mode
	Limit int
}

// RunStore persists completed runs. Stores never hold a reference to the
// caller's Result; they copy through its accessors.
type RunStore interface {
	// SaveRun stores a completed run and returns its catalog entry.
	SaveRun(ctx context.Context, label string, res *diffusion.Result) (Run, error)

	// ImportRun stores a run under its existing ID and creation time, as
	// read back from a backup.
	ImportRun(ctx context.Context, run Run, res *diffusion.Result) error

	// GetRun returns the catalog entry for id, or nil if not found.
	GetRun(ctx context.Context, id string) (*Run, error)

	// LoadResult rebuilds the full result of a run.
	LoadResult(ctx context.Context, id string) (*diffusion.Result, error)

	// ListRuns returns catalog entries, newest first.
	ListRuns(ctx context.Context, filter ListFilter) ([]Run, error)

	// DeleteRun removes a run and its recorded data.
	DeleteRun(ctx context.Context, id string) error

	Close() error
}

// newRun builds the catalog entry for a result.
func newRun(id, label string, res *diffusion.Result, now time.Time) Run {
	return Run{
		ID:        id,
		Label:     sanitize.Label(label),
		Mode:      res.Mode(),
		Config:    res.Config(),
		Total:     res.Total(),
		Stats:     res.Stats(),
		CreatedAt: now.UTC(),
	}
}

// importedRun checks an imported entry against its result and normalizes it.
func importedRun(run Run, res *diffusion.Result) (Run, error) {
	if res == nil {
		return Run{}, fmt.Errorf("result is required")
	}
	if run.ID == "" {
		return Run{}, fmt.Errorf("run id is required")
	}
	if run.Mode != res.Mode() || run.Config != res.Config() {
		return Run{}, fmt.Errorf("run %s does not match its result", run.ID)
	}
	run.Label = sanitize.Label(run.Label)
	run.Total = res.Total()
	run.Stats = res.Stats()
	run.CreatedAt = run.CreatedAt.UTC()
	return run, nil
}
