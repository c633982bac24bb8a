package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/grid"
)

func TestDefault(t *testing.T) {
	config := Default()

	sim := config.Simulation
	if sim.Rows != 100 || sim.Cols != 100 {
		t.Errorf("expected 100x100 grid, got %dx%d", sim.Rows, sim.Cols)
	}
	if sim.KernelSize != 5 {
		t.Errorf("expected KernelSize 5, got %d", sim.KernelSize)
	}
	if sim.Capacity != 20 {
		t.Errorf("expected Capacity 20, got %d", sim.Capacity)
	}
	if sim.SelfWeight != 0.3 {
		t.Errorf("expected SelfWeight 0.3, got %f", sim.SelfWeight)
	}
	if sim.SeedRow != 50 || sim.SeedCol != 50 {
		t.Errorf("expected seed (50,50), got (%d,%d)", sim.SeedRow, sim.SeedCol)
	}
	if sim.Fallback != "skip" {
		t.Errorf("expected Fallback 'skip', got '%s'", sim.Fallback)
	}

	if config.Storage.SaveRuns {
		t.Error("expected SaveRuns to be false by default")
	}
	if config.Batch.Replicates != 10 {
		t.Errorf("expected Replicates 10, got %d", config.Batch.Replicates)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
simulation:
  rows: 50
  cols: 40
  kernel_size: 9
  self_weight: 0.25
  max_iter: 18
  seed_row: 20
  seed_col: 21
  fallback: clamp

storage:
  save_runs: true

batch:
  replicates: 32
  parallelism: 4
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	sim := config.Simulation
	if sim.Rows != 50 || sim.Cols != 40 {
		t.Errorf("expected 50x40 grid, got %dx%d", sim.Rows, sim.Cols)
	}
	if sim.KernelSize != 9 {
		t.Errorf("expected KernelSize 9, got %d", sim.KernelSize)
	}
	if sim.SelfWeight != 0.25 {
		t.Errorf("expected SelfWeight 0.25, got %f", sim.SelfWeight)
	}
	if sim.MaxIter != 18 {
		t.Errorf("expected MaxIter 18, got %d", sim.MaxIter)
	}
	if sim.Fallback != "clamp" {
		t.Errorf("expected Fallback 'clamp', got '%s'", sim.Fallback)
	}
	// Keys missing from the file keep their defaults.
	if sim.Capacity != 20 {
		t.Errorf("expected default Capacity 20, got %d", sim.Capacity)
	}
	if !config.Storage.SaveRuns {
		t.Error("expected SaveRuns to be true")
	}
	if config.Batch.Replicates != 32 || config.Batch.Parallelism != 4 {
		t.Errorf("unexpected batch config: %+v", config.Batch)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
storage:
  db_path: ${TEST_RUNS_DIR}/runs.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("TEST_RUNS_DIR", "/data/sims")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Storage.DBPath != "/data/sims/runs.db" {
		t.Errorf("expected DBPath '/data/sims/runs.db', got '%s'", config.Storage.DBPath)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HAGERSTRAND_ROWS", "12")
	t.Setenv("HAGERSTRAND_COLS", "13")
	t.Setenv("HAGERSTRAND_SELF_WEIGHT", "0.7")
	t.Setenv("HAGERSTRAND_RAND_SEED", "99")
	t.Setenv("HAGERSTRAND_FALLBACK", "clamp")
	t.Setenv("HAGERSTRAND_SAVE_RUNS", "1")
	t.Setenv("HAGERSTRAND_DB_PATH", "/tmp/x.db")
	t.Setenv("HAGERSTRAND_REPLICATES", "3")

	config := Default()
	applyEnvOverrides(config)

	sim := config.Simulation
	if sim.Rows != 12 || sim.Cols != 13 {
		t.Errorf("expected 12x13, got %dx%d", sim.Rows, sim.Cols)
	}
	if sim.SelfWeight != 0.7 {
		t.Errorf("expected SelfWeight 0.7, got %f", sim.SelfWeight)
	}
	if sim.RandSeed != 99 {
		t.Errorf("expected RandSeed 99, got %d", sim.RandSeed)
	}
	if sim.Fallback != "clamp" {
		t.Errorf("expected Fallback 'clamp', got '%s'", sim.Fallback)
	}
	if !config.Storage.SaveRuns {
		t.Error("expected SaveRuns to be true")
	}
	if config.Storage.DBPath != "/tmp/x.db" {
		t.Errorf("expected DBPath '/tmp/x.db', got '%s'", config.Storage.DBPath)
	}
	if config.Batch.Replicates != 3 {
		t.Errorf("expected Replicates 3, got %d", config.Batch.Replicates)
	}
}

func TestEnvOverrides_IgnoresMalformed(t *testing.T) {
	t.Setenv("HAGERSTRAND_ROWS", "many")
	t.Setenv("HAGERSTRAND_SELF_WEIGHT", "high")

	config := Default()
	applyEnvOverrides(config)

	if config.Simulation.Rows != 100 {
		t.Errorf("expected Rows to stay 100, got %d", config.Simulation.Rows)
	}
	if config.Simulation.SelfWeight != 0.3 {
		t.Errorf("expected SelfWeight to stay 0.3, got %f", config.Simulation.SelfWeight)
	}
}

func TestEnvOverrides_LogLevel(t *testing.T) {
	t.Setenv("HAGERSTRAND_LOG_LEVEL", "debug")

	config := Default()
	applyEnvOverrides(config)

	if config.Logging.Level != "debug" {
		t.Errorf("expected Logging.Level 'debug', got '%s'", config.Logging.Level)
	}
}

func TestValidate_Valid(t *testing.T) {
	config := Default()
	if err := config.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidate_Simulation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SimulationConfig)
		wantErr error
	}{
		{"even kernel", func(s *SimulationConfig) { s.KernelSize = 4 }, diffusion.ErrEvenKernel},
		{"seed on row edge", func(s *SimulationConfig) { s.SeedRow = s.Rows }, diffusion.ErrSeedOutOfGrid},
		{"seed on col edge", func(s *SimulationConfig) { s.SeedCol = s.Cols }, diffusion.ErrSeedOutOfGrid},
		{"bad fallback", func(s *SimulationConfig) { s.Fallback = "bounce" }, diffusion.ErrInvalidFallback},
		{"bad self weight", func(s *SimulationConfig) { s.SelfWeight = -0.2 }, diffusion.ErrInvalidSelfWeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(&config.Simulation)
			if err := config.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Batch(t *testing.T) {
	config := Default()
	config.Batch.Replicates = 0
	if err := config.Validate(); err == nil {
		t.Error("expected validation error for zero replicates")
	}

	config = Default()
	config.Batch.Parallelism = -1
	if err := config.Validate(); err == nil {
		t.Error("expected validation error for negative parallelism")
	}
}

func TestToDiffusion(t *testing.T) {
	sim := Default().Simulation
	sim.SeedRow, sim.SeedCol = 3, 4
	sim.Fallback = "clamp"

	cfg := sim.ToDiffusion()
	if cfg.Seed != (grid.Coord{Row: 3, Col: 4}) {
		t.Errorf("Seed = %v, want (3,4)", cfg.Seed)
	}
	if cfg.Fallback != diffusion.FallbackClamp {
		t.Errorf("Fallback = %q, want clamp", cfg.Fallback)
	}
	if cfg.Rows != sim.Rows || cfg.KernelSize != sim.KernelSize || cfg.MaxRetries != sim.MaxRetries {
		t.Errorf("conversion lost fields: %+v", cfg)
	}
}

func TestResolvePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	config := Default()
	db, err := config.ResolveDBPath()
	if err != nil {
		t.Fatalf("ResolveDBPath: %v", err)
	}
	if want := filepath.Join(home, DirName, "runs.db"); db != want {
		t.Errorf("ResolveDBPath() = %q, want %q", db, want)
	}

	config.Storage.DBPath = "/elsewhere/runs.db"
	if db, _ := config.ResolveDBPath(); db != "/elsewhere/runs.db" {
		t.Errorf("ResolveDBPath() = %q, want override", db)
	}

	dir, err := config.ResolveTraceDir()
	if err != nil {
		t.Fatalf("ResolveTraceDir: %v", err)
	}
	if want := filepath.Join(home, DirName); dir != want {
		t.Errorf("ResolveTraceDir() = %q, want %q", dir, want)
	}
}

func TestLoad_ReadsHomeConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.MkdirAll(filepath.Join(home, DirName), 0700); err != nil {
		t.Fatal(err)
	}
	content := "simulation:\n  max_iter: 7\n"
	if err := os.WriteFile(filepath.Join(home, DirName, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	config, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Simulation.MaxIter != 7 {
		t.Errorf("expected MaxIter 7, got %d", config.Simulation.MaxIter)
	}
}

func TestLoadFromFile_LoggingConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: trace
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Logging.Level != "trace" {
		t.Errorf("expected Logging.Level 'trace', got '%s'", config.Logging.Level)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	config := Default()
	config.Logging.Level = "verbose"
	if err := config.Validate(); err == nil {
		t.Error("expected validation error for invalid log level")
	}
}

func TestValidate_ValidLogLevels(t *testing.T) {
	validLevels := []string{"", "info", "debug", "trace"}

	for _, level := range validLevels {
		t.Run(level, func(t *testing.T) {
			config := Default()
			config.Logging.Level = level
			if err := config.Validate(); err != nil {
				t.Errorf("expected log level '%s' to be valid, got error: %v", level, err)
			}
		})
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidYAML := `
simulation:
  rows: [invalid yaml
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestBackupConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	config := Default()
	if config.Backup.KeepLast != 10 {
		t.Errorf("default KeepLast = %d, want 10", config.Backup.KeepLast)
	}
	dir, err := config.ResolveBackupDir()
	if err != nil {
		t.Fatalf("ResolveBackupDir: %v", err)
	}
	if want := filepath.Join(home, DirName, "backups"); dir != want {
		t.Errorf("ResolveBackupDir() = %q, want %q", dir, want)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "backup:\n  dir: ${HOME}/bk\n  keep_last: 3\n  max_age: 30d\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	config, err = LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if config.Backup.Dir != filepath.Join(home, "bk") || config.Backup.KeepLast != 3 || config.Backup.MaxAge != "30d" {
		t.Errorf("Backup = %+v", config.Backup)
	}

	config.Backup.KeepLast = -1
	if err := config.Validate(); err == nil {
		t.Error("expected error for negative keep_last")
	}
}
