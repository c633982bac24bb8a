package export

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/nvandessel/hagerstrand/internal/diffusion"
)

// Series is the decoded content of a series table.
type Series struct {
	Config     diffusion.Config
	Mode       diffusion.Mode
	NewAdopted []int
	Cumulative []int
}

// ReadSeries decodes a series table written by WriteSeries.
func ReadSeries(r ipc.ReadAtSeeker) (*Series, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("opening arrow reader: %w", err)
	}
	defer fr.Close()

	out := &Series{}
	if err := decodeMetadata(fr.Schema().Metadata(), &out.Config, &out.Mode, nil); err != nil {
		return nil, err
	}

	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("reading batch %d: %w", i, err)
		}
		fresh, ok1 := rec.Column(1).(*array.Int64)
		total, ok2 := rec.Column(2).(*array.Int64)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("batch %d: unexpected column types", i)
		}
		for j := 0; j < int(rec.NumRows()); j++ {
			out.NewAdopted = append(out.NewAdopted, int(fresh.Value(j)))
			out.Cumulative = append(out.Cumulative, int(total.Value(j)))
		}
	}
	return out, nil
}

// ReadResult rebuilds a run from a frames table written by WriteFrames.
func ReadResult(r ipc.ReadAtSeeker) (*diffusion.Result, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("opening arrow reader: %w", err)
	}
	defer fr.Close()

	var (
		cfg   diffusion.Config
		mode  diffusion.Mode
		stats diffusion.Stats
	)
	if err := decodeMetadata(fr.Schema().Metadata(), &cfg, &mode, &stats); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("exported config: %w", err)
	}

	cells := cfg.Rows * cfg.Cols
	frames := make([]int32, cfg.MaxIter*cells)
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("reading batch %d: %w", i, err)
		}
		iters, ok0 := rec.Column(0).(*array.Int32)
		rows, ok1 := rec.Column(1).(*array.Int32)
		cols, ok2 := rec.Column(2).(*array.Int32)
		counts, ok3 := rec.Column(3).(*array.Int32)
		if !ok0 || !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("batch %d: unexpected column types", i)
		}
		for j := 0; j < int(rec.NumRows()); j++ {
			t, row, col := int(iters.Value(j)), int(rows.Value(j)), int(cols.Value(j))
			if t < 0 || t >= cfg.MaxIter || row < 0 || row >= cfg.Rows || col < 0 || col >= cfg.Cols {
				return nil, fmt.Errorf("batch %d row %d: cell (%d,%d,%d) outside run shape", i, j, t, row, col)
			}
			frames[t*cells+row*cfg.Cols+col] = counts.Value(j)
		}
	}

	// The seed is adopted before iteration 0, so the first frame holds one
	// adopter more than iteration 0 converted.
	series := make([]int, cfg.MaxIter)
	prev := 1
	for t := range series {
		total := 0
		for _, v := range frames[t*cells : (t+1)*cells] {
			total += int(v)
		}
		series[t] = total - prev
		prev = total
	}

	return diffusion.Restore(cfg, mode, series, frames, stats)
}

// ReadResultFile opens path and decodes a frames table.
func ReadResultFile(path string) (*diffusion.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening export file: %w", err)
	}
	defer f.Close()
	return ReadResult(f)
}

func decodeMetadata(md arrow.Metadata, cfg *diffusion.Config, mode *diffusion.Mode, stats *diffusion.Stats) error {
	idx := md.FindKey(MetaConfig)
	if idx < 0 {
		return fmt.Errorf("export metadata missing %s", MetaConfig)
	}
	if err := json.Unmarshal([]byte(md.Values()[idx]), cfg); err != nil {
		return fmt.Errorf("decoding exported config: %w", err)
	}

	idx = md.FindKey(MetaMode)
	if idx < 0 {
		return fmt.Errorf("export metadata missing %s", MetaMode)
	}
	m, err := diffusion.ParseMode(md.Values()[idx])
	if err != nil {
		return err
	}
	*mode = m

	if stats != nil {
		if idx = md.FindKey(MetaStats); idx >= 0 {
			if err := json.Unmarshal([]byte(md.Values()[idx]), stats); err != nil {
				return fmt.Errorf("decoding exported stats: %w", err)
			}
		}
	}
	return nil
}
