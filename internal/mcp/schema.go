package mcp

import (
	"time"

	"github.com/nvandessel/hagerstrand/internal/diffusion"
)

// SimulateInput defines the input for the hagerstrand_simulate tool.
// Zero values fall back to the server's configured defaults.
type SimulateInput struct {
	Mode       string   `json:"mode,omitempty" jsonschema:"Propagation mode: 'spatial' (kernel-biased, default) or 'random' (uniform baseline)"`
	Rows       int      `json:"rows,omitempty" jsonschema:"Number of grid rows (N)"`
	Cols       int      `json:"cols,omitempty" jsonschema:"Number of grid columns (M)"`
	Capacity   int      `json:"capacity,omitempty" jsonschema:"Individuals per cell (pob)"`
	KernelSize int      `json:"kernel_size,omitempty" jsonschema:"Odd side length of the mean information field"`
	SelfWeight *float64 `json:"self_weight,omitempty" jsonschema:"Probability mass on the kernel center (p0) in [0,1]"`
	MaxIter    int      `json:"max_iter,omitempty" jsonschema:"Number of iterations to run"`
	SeedRow    *int     `json:"seed_row,omitempty" jsonschema:"Row of the initial adopter"`
	SeedCol    *int     `json:"seed_col,omitempty" jsonschema:"Column of the initial adopter"`
	RandSeed   *uint64  `json:"rand_seed,omitempty" jsonschema:"Seed of the random generator; equal seeds reproduce runs"`
	Fallback   string   `json:"fallback,omitempty" jsonschema:"Out-of-grid policy after bounded retries: 'skip' or 'clamp'"`
	Replicates int      `json:"replicates,omitempty" jsonschema:"Run this many replicates with consecutive seeds and return aggregated statistics (default: 1)"`
	Save       bool     `json:"save,omitempty" jsonschema:"Persist the run to the catalog (single runs only)"`
	Label      string   `json:"label,omitempty" jsonschema:"Optional label stored with a saved run"`
}

// SimulateOutput defines the output for the hagerstrand_simulate tool.
type SimulateOutput struct {
	RunID      string           `json:"run_id,omitempty" jsonschema:"Catalog ID when the run was saved"`
	Mode       diffusion.Mode   `json:"mode" jsonschema:"Propagation mode used"`
	Config     diffusion.Config `json:"config" jsonschema:"Effective run configuration"`
	Total      int              `json:"total" jsonschema:"Adopters at the end of the run"`
	Series     []int            `json:"series,omitempty" jsonschema:"New adopters per iteration"`
	Cumulative []int            `json:"cumulative,omitempty" jsonschema:"Total adopters after each iteration"`
	Stats      diffusion.Stats  `json:"stats" jsonschema:"Contact outcome counts"`
	Replicates int              `json:"replicates" jsonschema:"Number of replicates run"`
	Mean       []float64        `json:"mean,omitempty" jsonschema:"Mean new adopters per iteration across replicates"`
	StdDev     []float64        `json:"stddev,omitempty" jsonschema:"Standard deviation of new adopters per iteration"`
	Message    string           `json:"message" jsonschema:"Human-readable summary"`
}

// KernelInput defines the input for the hagerstrand_kernel tool.
type KernelInput struct {
	Size       int      `json:"size,omitempty" jsonschema:"Odd kernel side length (default: configured kernel size)"`
	SelfWeight *float64 `json:"self_weight,omitempty" jsonschema:"Probability mass on the center cell (default: configured p0)"`
}

// KernelOutput defines the output for the hagerstrand_kernel tool.
type KernelOutput struct {
	Size       int         `json:"size" jsonschema:"Kernel side length"`
	SelfWeight float64     `json:"self_weight" jsonschema:"Center probability"`
	Matrix     [][]float64 `json:"matrix" jsonschema:"Normalized contact probabilities by row and column offset"`
	CDF        []float64   `json:"cdf" jsonschema:"Cumulative distribution over the flattened kernel"`
}

// RunsInput defines the input for the hagerstrand_runs tool.
type RunsInput struct {
	Action string `json:"action,omitempty" jsonschema:"One of 'list' (default), 'show' or 'delete'"`
	RunID  string `json:"run_id,omitempty" jsonschema:"Run ID for show and delete"`
	Mode   string `json:"mode,omitempty" jsonschema:"Only list runs of this mode"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of runs to list (default: 20)"`
}

// RunsOutput defines the output for the hagerstrand_runs tool.
type RunsOutput struct {
	Runs    []RunSummary `json:"runs,omitempty" jsonschema:"Listed runs, newest first"`
	Run     *RunDetail   `json:"run,omitempty" jsonschema:"Details of the requested run"`
	Count   int          `json:"count" jsonschema:"Number of runs returned"`
	Message string       `json:"message" jsonschema:"Human-readable result message"`
}

// RunSummary provides a list view of a stored run.
type RunSummary struct {
	ID        string         `json:"id"`
	Label     string         `json:"label,omitempty"`
	Mode      diffusion.Mode `json:"mode"`
	Rows      int            `json:"rows"`
	Cols      int            `json:"cols"`
	MaxIter   int            `json:"max_iter"`
	Total     int            `json:"total"`
	CreatedAt time.Time      `json:"created_at"`
}

// RunDetail is the full view of a stored run.
type RunDetail struct {
	RunSummary
	Config     diffusion.Config `json:"config"`
	Stats      diffusion.Stats  `json:"stats"`
	Series     []int            `json:"series"`
	Cumulative []int            `json:"cumulative"`
}

// ExportInput defines the input for the hagerstrand_export tool.
type ExportInput struct {
	RunID      string `json:"run_id" jsonschema:"ID of the saved run to export"`
	Kind       string `json:"kind,omitempty" jsonschema:"Table to export: 'frames' (default) or 'series'"`
	OutputPath string `json:"output_path,omitempty" jsonschema:"Destination file; must be under ~/.hagerstrand/exports or the server root"`
}

// ExportOutput defines the output for the hagerstrand_export tool.
type ExportOutput struct {
	Path      string `json:"path" jsonschema:"Path of the written Arrow IPC file"`
	Kind      string `json:"kind" jsonschema:"Exported table"`
	SizeBytes int64  `json:"size_bytes" jsonschema:"File size in bytes"`
	Message   string `json:"message" jsonschema:"Human-readable result message"`
}
