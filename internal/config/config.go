// Package config provides unified configuration loading for hagerstrand.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/grid"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user configuration and data directory under HOME.
const DirName = ".hagerstrand"

// Config contains all hagerstrand configuration settings.
type Config struct {
	// Simulation contains the default run parameters.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Storage configures the run catalog.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Batch configures replicate runs.
	Batch BatchConfig `json:"batch" yaml:"batch"`

	// Backup configures catalog backups and their rotation.
	Backup BackupConfig `json:"backup" yaml:"backup"`

	// Logging contains settings for operational and trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig holds the default diffusion parameters.
type SimulationConfig struct {
	Rows       int     `json:"rows" yaml:"rows"`
	Cols       int     `json:"cols" yaml:"cols"`
	Capacity   int     `json:"capacity" yaml:"capacity"`
	KernelSize int     `json:"kernel_size" yaml:"kernel_size"`
	SelfWeight float64 `json:"self_weight" yaml:"self_weight"`
	MaxIter    int     `json:"max_iter" yaml:"max_iter"`
	SeedRow    int     `json:"seed_row" yaml:"seed_row"`
	SeedCol    int     `json:"seed_col" yaml:"seed_col"`
	RandSeed   uint64  `json:"rand_seed" yaml:"rand_seed"`

	// MaxRetries bounds out-of-grid redraws per contact.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Fallback is "skip" or "clamp".
	Fallback string `json:"fallback" yaml:"fallback"`
}

// StorageConfig configures where completed runs are persisted.
type StorageConfig struct {
	// DBPath is the SQLite database path. Empty means ~/.hagerstrand/runs.db.
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`

	// SaveRuns persists every CLI run to the catalog.
	SaveRuns bool `json:"save_runs" yaml:"save_runs"`
}

// BatchConfig configures replicate batches.
type BatchConfig struct {
	Replicates int `json:"replicates" yaml:"replicates"`

	// Parallelism caps concurrently running replicates. 0 means GOMAXPROCS.
	Parallelism int `json:"parallelism" yaml:"parallelism"`
}

// BackupConfig configures `hagerstrand runs backup`.
type BackupConfig struct {
	// Dir holds rotating backups. Empty means ~/.hagerstrand/backups.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// KeepLast is the number of newest backups kept on rotation. 0 disables the rule.
	KeepLast int `json:"keep_last" yaml:"keep_last"`

	// MaxAge keeps younger backups on rotation, e.g. "30d" or "2w". Empty disables the rule.
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables iteration tracing to ~/.hagerstrand/trace.jsonl.
	Level string `json:"level" yaml:"level"`

	// TraceDir overrides the directory of trace.jsonl.
	TraceDir string `json:"trace_dir,omitempty" yaml:"trace_dir,omitempty"`
}

// Default returns a Config with the reference model's defaults.
func Default() *Config {
	d := diffusion.DefaultConfig()
	return &Config{
		Simulation: SimulationConfig{
			Rows:       d.Rows,
			Cols:       d.Cols,
			Capacity:   d.Capacity,
			KernelSize: d.KernelSize,
			SelfWeight: d.SelfWeight,
			MaxIter:    d.MaxIter,
			SeedRow:    d.Seed.Row,
			SeedCol:    d.Seed.Col,
			RandSeed:   d.RandSeed,
			MaxRetries: d.MaxRetries,
			Fallback:   string(d.Fallback),
		},
		Storage: StorageConfig{
			SaveRuns: false,
		},
		Batch: BatchConfig{
			Replicates:  10,
			Parallelism: 0,
		},
		Backup: BackupConfig{
			KeepLast: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns ~/.hagerstrand.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.hagerstrand/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	if dir, err := Dir(); err == nil {
		configPath := filepath.Join(dir, "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys absent
// from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Storage.DBPath = expandEnvVars(config.Storage.DBPath)
	config.Logging.TraceDir = expandEnvVars(config.Logging.TraceDir)
	config.Backup.Dir = expandEnvVars(config.Backup.Dir)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Simulation.ToDiffusion().Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}

	if c.Batch.Replicates < 1 {
		return fmt.Errorf("replicates must be at least 1, got %d", c.Batch.Replicates)
	}
	if c.Batch.Parallelism < 0 {
		return fmt.Errorf("parallelism must be non-negative, got %d", c.Batch.Parallelism)
	}

	if c.Backup.KeepLast < 0 {
		return fmt.Errorf("backup keep_last must be non-negative, got %d", c.Backup.KeepLast)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// ToDiffusion converts the simulation section to an engine config.
func (s SimulationConfig) ToDiffusion() diffusion.Config {
	return diffusion.Config{
		Rows:       s.Rows,
		Cols:       s.Cols,
		Capacity:   s.Capacity,
		KernelSize: s.KernelSize,
		SelfWeight: s.SelfWeight,
		MaxIter:    s.MaxIter,
		Seed:       grid.Coord{Row: s.SeedRow, Col: s.SeedCol},
		RandSeed:   s.RandSeed,
		MaxRetries: s.MaxRetries,
		Fallback:   diffusion.Fallback(s.Fallback),
	}
}

// ResolveDBPath returns the configured database path or the default one.
func (c *Config) ResolveDBPath() (string, error) {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runs.db"), nil
}

// ResolveBackupDir returns the configured backup directory or ~/.hagerstrand/backups.
func (c *Config) ResolveBackupDir() (string, error) {
	if c.Backup.Dir != "" {
		return c.Backup.Dir, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "backups"), nil
}

// ResolveTraceDir returns the configured trace directory or ~/.hagerstrand.
func (c *Config) ResolveTraceDir() (string, error) {
	if c.Logging.TraceDir != "" {
		return c.Logging.TraceDir, nil
	}
	return Dir()
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	sim := &config.Simulation
	setInt("HAGERSTRAND_ROWS", &sim.Rows)
	setInt("HAGERSTRAND_COLS", &sim.Cols)
	setInt("HAGERSTRAND_CAPACITY", &sim.Capacity)
	setInt("HAGERSTRAND_KERNEL_SIZE", &sim.KernelSize)
	setInt("HAGERSTRAND_MAX_ITER", &sim.MaxIter)
	setInt("HAGERSTRAND_SEED_ROW", &sim.SeedRow)
	setInt("HAGERSTRAND_SEED_COL", &sim.SeedCol)
	setInt("HAGERSTRAND_MAX_RETRIES", &sim.MaxRetries)

	if v := os.Getenv("HAGERSTRAND_SELF_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			sim.SelfWeight = f
		}
	}

	if v := os.Getenv("HAGERSTRAND_RAND_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			sim.RandSeed = n
		}
	}

	if v := os.Getenv("HAGERSTRAND_FALLBACK"); v != "" {
		sim.Fallback = v
	}

	if v := os.Getenv("HAGERSTRAND_DB_PATH"); v != "" {
		config.Storage.DBPath = v
	}

	if v := os.Getenv("HAGERSTRAND_SAVE_RUNS"); v != "" {
		config.Storage.SaveRuns = v == "true" || v == "1"
	}

	setInt("HAGERSTRAND_REPLICATES", &config.Batch.Replicates)
	setInt("HAGERSTRAND_PARALLELISM", &config.Batch.Parallelism)

	if v := os.Getenv("HAGERSTRAND_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
