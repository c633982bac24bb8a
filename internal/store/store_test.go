package store

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/grid"
)

// testResult runs a small simulation for persistence tests.
func testResult(t *testing.T, mode diffusion.Mode, randSeed uint64) *diffusion.Result {
	t.Helper()
	cfg := diffusion.DefaultConfig()
	cfg.Rows = 8
	cfg.Cols = 12
	cfg.Capacity = 3
	cfg.MaxIter = 6
	cfg.Seed = grid.Coord{Row: 4, Col: 6}
	cfg.RandSeed = randSeed
	e, err := diffusion.New(cfg, mode)
	if err != nil {
		t.Fatalf("diffusion.New() error = %v", err)
	}
	return e.Run()
}

// storeFactories lists every RunStore implementation. Each factory also
// returns a hook to control the store's clock.
func storeFactories() map[string]func(t *testing.T) (RunStore, func(func() time.Time)) {
	return map[string]func(t *testing.T) (RunStore, func(func() time.Time)){
		"memory": func(t *testing.T) (RunStore, func(func() time.Time)) {
			s := NewInMemoryRunStore()
			return s, func(fn func() time.Time) { s.nowFunc = fn }
		},
		"sqlite": func(t *testing.T) (RunStore, func(func() time.Time)) {
			s, err := NewSQLiteRunStore(filepath.Join(t.TempDir(), "runs.db"))
			if err != nil {
				t.Fatalf("NewSQLiteRunStore() error = %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s, func(fn func() time.Time) { s.nowFunc = fn }
		},
	}
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestRunStore_SaveAndLoad(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s, _ := factory(t)
			ctx := context.Background()
			res := testResult(t, diffusion.ModeSpatial, 7)

			run, err := s.SaveRun(ctx, "first", res)
			if err != nil {
				t.Fatalf("SaveRun() error = %v", err)
			}
			if run.ID == "" {
				t.Fatal("SaveRun() returned empty ID")
			}
			if run.Total != res.Total() {
				t.Errorf("run.Total = %d, want %d", run.Total, res.Total())
			}

			got, err := s.GetRun(ctx, run.ID)
			if err != nil {
				t.Fatalf("GetRun() error = %v", err)
			}
			if got == nil {
				t.Fatal("GetRun() returned nil")
			}
			if got.Label != "first" || got.Mode != diffusion.ModeSpatial {
				t.Errorf("GetRun() = %+v", got)
			}
			if got.Config != res.Config() {
				t.Errorf("GetRun().Config = %+v, want %+v", got.Config, res.Config())
			}
			if got.Stats != res.Stats() {
				t.Errorf("GetRun().Stats = %+v, want %+v", got.Stats, res.Stats())
			}

			loaded, err := s.LoadResult(ctx, run.ID)
			if err != nil {
				t.Fatalf("LoadResult() error = %v", err)
			}
			if !slices.Equal(loaded.TimeSeries(), res.TimeSeries()) {
				t.Errorf("TimeSeries = %v, want %v", loaded.TimeSeries(), res.TimeSeries())
			}
			if !slices.Equal(loaded.Cumulative(), res.Cumulative()) {
				t.Errorf("Cumulative = %v, want %v", loaded.Cumulative(), res.Cumulative())
			}
			if !slices.Equal(loaded.Frames(), res.Frames()) {
				t.Error("Frames differ after round trip")
			}
			if loaded.Mode() != res.Mode() {
				t.Errorf("Mode = %s, want %s", loaded.Mode(), res.Mode())
			}
		})
	}
}

func TestRunStore_SaveNil(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s, _ := factory(t)
			if _, err := s.SaveRun(context.Background(), "", nil); err == nil {
				t.Error("SaveRun(nil) expected error")
			}
		})
	}
}

func TestRunStore_NotFound(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s, _ := factory(t)
			ctx := context.Background()

			got, err := s.GetRun(ctx, "missing")
			if err != nil {
				t.Fatalf("GetRun() error = %v", err)
			}
			if got != nil {
				t.Errorf("GetRun() = %+v, want nil", got)
			}

			if _, err := s.LoadResult(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("LoadResult() error = %v, want ErrRunNotFound", err)
			}
			if err := s.DeleteRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("DeleteRun() error = %v, want ErrRunNotFound", err)
			}
		})
	}
}

func TestRunStore_ListRuns(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s, setClock := factory(t)
			setClock(stepClock())
			ctx := context.Background()

			a, _ := s.SaveRun(ctx, "a", testResult(t, diffusion.ModeSpatial, 1))
			b, _ := s.SaveRun(ctx, "b", testResult(t, diffusion.ModeRandom, 2))
			c, _ := s.SaveRun(ctx, "c", testResult(t, diffusion.ModeSpatial, 3))

			tests := []struct {
				name   string
				filter ListFilter
				want   []string
			}{
				{"all newest first", ListFilter{}, []string{c.ID, b.ID, a.ID}},
				{"spatial only", ListFilter{Mode: diffusion.ModeSpatial}, []string{c.ID, a.ID}},
				{"random only", ListFilter{Mode: diffusion.ModeRandom}, []string{b.ID}},
				{"limit", ListFilter{Limit: 2}, []string{c.ID, b.ID}},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					runs, err := s.ListRuns(ctx, tt.filter)
					if err != nil {
						t.Fatalf("ListRuns() error = %v", err)
					}
					var ids []string
					for _, r := range runs {
						ids = append(ids, r.ID)
					}
					if !slices.Equal(ids, tt.want) {
						t.Errorf("ListRuns() = %v, want %v", ids, tt.want)
					}
				})
			}
		})
	}
}

func TestRunStore_DeleteRun(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s, _ := factory(t)
			ctx := context.Background()

			run, err := s.SaveRun(ctx, "", testResult(t, diffusion.ModeRandom, 5))
			if err != nil {
				t.Fatalf("SaveRun() error = %v", err)
			}
			if err := s.DeleteRun(ctx, run.ID); err != nil {
				t.Fatalf("DeleteRun() error = %v", err)
			}
			if got, _ := s.GetRun(ctx, run.ID); got != nil {
				t.Error("run still present after delete")
			}
			if _, err := s.LoadResult(ctx, run.ID); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("LoadResult() after delete error = %v", err)
			}
			runs, _ := s.ListRuns(ctx, ListFilter{})
			if len(runs) != 0 {
				t.Errorf("ListRuns() after delete = %d runs, want 0", len(runs))
			}
		})
	}
}

func TestInMemoryRunStore_IsolatedFromCaller(t *testing.T) {
	s := NewInMemoryRunStore()
	ctx := context.Background()
	res := testResult(t, diffusion.ModeSpatial, 9)
	run, _ := s.SaveRun(ctx, "", res)

	loaded, _ := s.LoadResult(ctx, run.ID)
	frames := loaded.Frames()
	frames[0] = 999

	again, _ := s.LoadResult(ctx, run.ID)
	if again.Frames()[0] == 999 {
		t.Error("stored frames were mutated through a loaded result")
	}
}

func TestRunStore_SanitizesLabel(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s, _ := factory(t)
			ctx := context.Background()

			run, err := s.SaveRun(ctx, "<b>pilot</b>\nrun", testResult(t, diffusion.ModeSpatial, 3))
			if err != nil {
				t.Fatalf("SaveRun() error = %v", err)
			}
			got, err := s.GetRun(ctx, run.ID)
			if err != nil || got == nil {
				t.Fatalf("GetRun() = %v, %v", got, err)
			}
			if got.Label != "pilot run" {
				t.Errorf("Label = %q, want %q", got.Label, "pilot run")
			}
		})
	}
}

func TestRunStore_ImportRun(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s, _ := factory(t)
			ctx := context.Background()
			res := testResult(t, diffusion.ModeRandom, 11)
			created := time.Date(2023, 5, 6, 7, 8, 9, 10, time.UTC)

			run := Run{
				ID:        "imported-1",
				Label:     "from backup",
				Mode:      res.Mode(),
				Config:    res.Config(),
				CreatedAt: created,
			}
			if err := s.ImportRun(ctx, run, res); err != nil {
				t.Fatalf("ImportRun() error = %v", err)
			}

			got, err := s.GetRun(ctx, "imported-1")
			if err != nil || got == nil {
				t.Fatalf("GetRun() = %v, %v", got, err)
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
			}
			if got.Total != res.Total() || got.Stats != res.Stats() {
				t.Errorf("imported totals = %d/%+v, want %d/%+v", got.Total, got.Stats, res.Total(), res.Stats())
			}

			loaded, err := s.LoadResult(ctx, "imported-1")
			if err != nil {
				t.Fatalf("LoadResult() error = %v", err)
			}
			if !slices.Equal(loaded.Frames(), res.Frames()) {
				t.Error("Frames differ after import")
			}

			if err := s.ImportRun(ctx, run, res); !errors.Is(err, ErrRunExists) {
				t.Errorf("second ImportRun() error = %v, want ErrRunExists", err)
			}

			mismatched := run
			mismatched.ID = "imported-2"
			mismatched.Mode = diffusion.ModeSpatial
			if err := s.ImportRun(ctx, mismatched, res); err == nil {
				t.Error("ImportRun() with mismatched mode expected error")
			}

			noID := run
			noID.ID = ""
			if err := s.ImportRun(ctx, noID, res); err == nil {
				t.Error("ImportRun() without id expected error")
			}
		})
	}
}
