package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/export"
	"github.com/nvandessel/hagerstrand/internal/ratelimit"
	"github.com/nvandessel/hagerstrand/internal/store"
)

func ptr[T any](v T) *T { return &v }

func TestHandleSimulate_Defaults(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleSimulate(ctx, &sdk.CallToolRequest{}, SimulateInput{})
	if err != nil {
		t.Fatalf("handleSimulate: %v", err)
	}
	if out.Mode != diffusion.ModeSpatial {
		t.Errorf("Mode = %s, want spatial", out.Mode)
	}
	if out.Config.Rows != 12 || out.Config.Cols != 16 {
		t.Errorf("Config = %+v, want the server defaults", out.Config)
	}
	if len(out.Series) != 6 || len(out.Cumulative) != 6 {
		t.Errorf("series lengths = %d/%d, want 6", len(out.Series), len(out.Cumulative))
	}
	if out.Total != out.Cumulative[len(out.Cumulative)-1] {
		t.Errorf("Total = %d, last cumulative = %d", out.Total, out.Cumulative[len(out.Cumulative)-1])
	}
	if out.RunID != "" {
		t.Errorf("RunID = %q for an unsaved run", out.RunID)
	}
}

func TestHandleSimulate_Overrides(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	in := SimulateInput{
		Mode:       "random",
		Rows:       8,
		Cols:       10,
		Capacity:   2,
		KernelSize: 3,
		SelfWeight: ptr(0.0),
		MaxIter:    4,
		SeedRow:    ptr(0),
		SeedCol:    ptr(9),
		RandSeed:   ptr(uint64(99)),
		Fallback:   "clamp",
	}
	_, out, err := s.handleSimulate(ctx, &sdk.CallToolRequest{}, in)
	if err != nil {
		t.Fatalf("handleSimulate: %v", err)
	}
	cfg := out.Config
	if cfg.Rows != 8 || cfg.Cols != 10 || cfg.Capacity != 2 || cfg.KernelSize != 3 ||
		cfg.SelfWeight != 0 || cfg.MaxIter != 4 || cfg.Seed.Row != 0 || cfg.Seed.Col != 9 ||
		cfg.RandSeed != 99 || cfg.Fallback != diffusion.FallbackClamp {
		t.Errorf("Config = %+v, overrides not applied", cfg)
	}
	if out.Mode != diffusion.ModeRandom {
		t.Errorf("Mode = %s, want random", out.Mode)
	}

	// Same seed, same result.
	_, again, err := s.handleSimulate(ctx, &sdk.CallToolRequest{}, in)
	if err != nil {
		t.Fatalf("handleSimulate (repeat): %v", err)
	}
	if !slices.Equal(out.Series, again.Series) {
		t.Errorf("repeated run differs: %v vs %v", out.Series, again.Series)
	}
}

func TestHandleSimulate_InvalidParameters(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      SimulateInput
		wantErr error
	}{
		{"even kernel", SimulateInput{KernelSize: 4}, diffusion.ErrEvenKernel},
		{"seed outside", SimulateInput{SeedRow: ptr(12)}, diffusion.ErrSeedOutOfGrid},
		{"p0 above one", SimulateInput{SelfWeight: ptr(1.5)}, diffusion.ErrInvalidSelfWeight},
		{"unknown fallback", SimulateInput{Fallback: "wrap"}, diffusion.ErrInvalidFallback},
		{"unknown mode", SimulateInput{Mode: "gravity"}, nil},
		{"too many replicates", SimulateInput{Replicates: maxReplicates + 1}, nil},
		{"save with replicates", SimulateInput{Replicates: 2, Save: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.handleSimulate(ctx, &sdk.CallToolRequest{}, tt.in)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHandleSimulate_Replicates(t *testing.T) {
	s := newTestServer(t)
	_, out, err := s.handleSimulate(context.Background(), &sdk.CallToolRequest{}, SimulateInput{Replicates: 4})
	if err != nil {
		t.Fatalf("handleSimulate: %v", err)
	}
	if out.Replicates != 4 {
		t.Errorf("Replicates = %d, want 4", out.Replicates)
	}
	if len(out.Mean) != 6 || len(out.StdDev) != 6 {
		t.Errorf("aggregate lengths = %d/%d, want 6", len(out.Mean), len(out.StdDev))
	}
	if out.Series != nil {
		t.Error("batch output should not carry a single series")
	}
}

func TestHandleSimulate_RateLimited(t *testing.T) {
	s := newTestServer(t)
	s.toolLimiters[ratelimit.ToolSimulate] = ratelimit.NewLimiter(0, 1)
	ctx := context.Background()

	if _, _, err := s.handleSimulate(ctx, &sdk.CallToolRequest{}, SimulateInput{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, _, err := s.handleSimulate(ctx, &sdk.CallToolRequest{}, SimulateInput{})
	if err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Errorf("second call error = %v, want rate limit", err)
	}
}

func TestHandleKernel(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleKernel(ctx, &sdk.CallToolRequest{}, KernelInput{})
	if err != nil {
		t.Fatalf("handleKernel: %v", err)
	}
	if out.Size != 5 || len(out.Matrix) != 5 || len(out.CDF) != 25 {
		t.Errorf("default kernel: size=%d rows=%d cdf=%d", out.Size, len(out.Matrix), len(out.CDF))
	}
	if last := out.CDF[len(out.CDF)-1]; last < 1-1e-9 || last > 1+1e-9 {
		t.Errorf("CDF ends at %v, want 1", last)
	}

	_, out, err = s.handleKernel(ctx, &sdk.CallToolRequest{}, KernelInput{Size: 3, SelfWeight: ptr(0.5)})
	if err != nil {
		t.Fatalf("handleKernel(3, 0.5): %v", err)
	}
	if out.SelfWeight != 0.5 || len(out.Matrix) != 3 {
		t.Errorf("kernel = %+v", out)
	}

	if _, _, err := s.handleKernel(ctx, &sdk.CallToolRequest{}, KernelInput{Size: 6}); err == nil {
		t.Error("even kernel size should fail")
	}
}

// saveRun runs and saves a simulation through the tool, returning its ID.
func saveRun(t *testing.T, s *Server, in SimulateInput) string {
	t.Helper()
	in.Save = true
	_, out, err := s.handleSimulate(context.Background(), &sdk.CallToolRequest{}, in)
	if err != nil {
		t.Fatalf("handleSimulate(save): %v", err)
	}
	if out.RunID == "" {
		t.Fatal("saved run has no ID")
	}
	return out.RunID
}

func TestHandleRuns(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	spatialID := saveRun(t, s, SimulateInput{Label: "a"})
	randomID := saveRun(t, s, SimulateInput{Mode: "random", Label: "b"})

	_, list, err := s.handleRuns(ctx, &sdk.CallToolRequest{}, RunsInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Count != 2 {
		t.Errorf("list count = %d, want 2", list.Count)
	}

	_, list, err = s.handleRuns(ctx, &sdk.CallToolRequest{}, RunsInput{Action: "list", Mode: "random"})
	if err != nil {
		t.Fatalf("list random: %v", err)
	}
	if list.Count != 1 || list.Runs[0].ID != randomID {
		t.Errorf("list random = %+v", list.Runs)
	}

	_, show, err := s.handleRuns(ctx, &sdk.CallToolRequest{}, RunsInput{Action: "show", RunID: spatialID})
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if show.Run == nil || show.Run.ID != spatialID || show.Run.Label != "a" || len(show.Run.Series) != 6 {
		t.Errorf("show = %+v", show.Run)
	}

	if _, _, err := s.handleRuns(ctx, &sdk.CallToolRequest{}, RunsInput{Action: "delete", RunID: spatialID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, _, err = s.handleRuns(ctx, &sdk.CallToolRequest{}, RunsInput{Action: "show", RunID: spatialID})
	if !errors.Is(err, store.ErrRunNotFound) {
		t.Errorf("show after delete error = %v, want ErrRunNotFound", err)
	}

	for _, in := range []RunsInput{
		{Action: "show"},
		{Action: "delete"},
		{Action: "purge"},
		{Mode: "gravity"},
	} {
		if _, _, err := s.handleRuns(ctx, &sdk.CallToolRequest{}, in); err == nil {
			t.Errorf("handleRuns(%+v) expected error", in)
		}
	}
}

func TestHandleExport_DefaultPath(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := saveRun(t, s, SimulateInput{})

	_, out, err := s.handleExport(ctx, &sdk.CallToolRequest{}, ExportInput{RunID: id})
	if err != nil {
		t.Fatalf("handleExport: %v", err)
	}
	if out.Kind != "frames" || out.SizeBytes == 0 {
		t.Errorf("export = %+v", out)
	}

	res, err := export.ReadResultFile(out.Path)
	if err != nil {
		t.Fatalf("ReadResultFile: %v", err)
	}
	stored, _ := s.store.LoadResult(ctx, id)
	if !slices.Equal(res.Frames(), stored.Frames()) {
		t.Error("exported frames differ from stored run")
	}
}

func TestHandleExport_PathValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := saveRun(t, s, SimulateInput{})

	if err := os.MkdirAll(s.root, 0700); err != nil {
		t.Fatal(err)
	}
	inside := filepath.Join(s.root, "out", "series.arrow")
	_, out, err := s.handleExport(ctx, &sdk.CallToolRequest{}, ExportInput{RunID: id, Kind: "series", OutputPath: inside})
	if err != nil {
		t.Fatalf("export inside root: %v", err)
	}
	f, err := os.Open(out.Path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	series, err := export.ReadSeries(f)
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	if len(series.NewAdopted) != 6 {
		t.Errorf("series length = %d, want 6", len(series.NewAdopted))
	}

	outside := filepath.Join(t.TempDir(), "escape.arrow")
	_, _, err = s.handleExport(ctx, &sdk.CallToolRequest{}, ExportInput{RunID: id, OutputPath: outside})
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Errorf("export outside allowed dirs error = %v", err)
	}
}

func TestHandleExport_Errors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if _, _, err := s.handleExport(ctx, &sdk.CallToolRequest{}, ExportInput{}); err == nil {
		t.Error("missing run_id should fail")
	}
	if _, _, err := s.handleExport(ctx, &sdk.CallToolRequest{}, ExportInput{RunID: "missing"}); !errors.Is(err, store.ErrRunNotFound) {
		t.Errorf("unknown run error = %v, want ErrRunNotFound", err)
	}
	id := saveRun(t, s, SimulateInput{})
	if _, _, err := s.handleExport(ctx, &sdk.CallToolRequest{}, ExportInput{RunID: id, Kind: "png"}); !errors.Is(err, export.ErrUnknownKind) {
		t.Errorf("bad kind error = %v, want ErrUnknownKind", err)
	}
}
