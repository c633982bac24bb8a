package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/hagerstrand/internal/diffusion"
)

type memoryEntry struct {
	run    Run
	series []int
	frames []int32
}

// InMemoryRunStore implements RunStore for testing and one-shot sessions.
type InMemoryRunStore struct {
	mu      sync.RWMutex
	runs    map[string]memoryEntry
	nowFunc func() time.Time
}

// NewInMemoryRunStore creates a new in-memory store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs:    make(map[string]memoryEntry),
		nowFunc: time.Now,
	}
}

// SaveRun stores a copy of the result.
func (s *InMemoryRunStore) SaveRun(ctx context.Context, label string, res *diffusion.Result) (Run, error) {
	if res == nil {
		return Run{}, fmt.Errorf("result is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run := newRun(uuid.NewString(), label, res, s.nowFunc())
	s.runs[run.ID] = memoryEntry{
		run:    run,
		series: res.TimeSeries(),
		frames: res.Frames(),
	}
	return run, nil
}

// ImportRun stores a copy of the result under run.ID.
func (s *InMemoryRunStore) ImportRun(ctx context.Context, run Run, res *diffusion.Result) error {
	run, err := importedRun(run, res)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
	}
	s.runs[run.ID] = memoryEntry{
		run:    run,
		series: res.TimeSeries(),
		frames: res.Frames(),
	}
	return nil
}

// GetRun returns the catalog entry for id. Returns nil if not found.
func (s *InMemoryRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	run := entry.run
	return &run, nil
}

// LoadResult rebuilds the result of a stored run.
func (s *InMemoryRunStore) LoadResult(ctx context.Context, id string) (*diffusion.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return diffusion.Restore(entry.run.Config, entry.run.Mode, entry.series, entry.frames, entry.run.Stats)
}

// ListRuns returns catalog entries, newest first.
func (s *InMemoryRunStore) ListRuns(ctx context.Context, filter ListFilter) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]Run, 0, len(s.runs))
	for _, entry := range s.runs {
		if filter.Mode != "" && entry.run.Mode != filter.Mode {
			continue
		}
		runs = append(runs, entry.run)
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

// DeleteRun removes a run.
func (s *InMemoryRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	delete(s.runs, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryRunStore) Close() error {
	return nil
}
