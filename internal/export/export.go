// Package export writes finished runs as Arrow IPC files for external
// renderers and notebooks.
//
// Two tables are produced. The series table has one row per iteration with
// columns (iteration, new_adopted, cumulative). The frames table holds one
// record batch per iteration with a row for every non-empty cell:
// (iteration, row, col, adopted). Both carry the run configuration and mode
// in their schema metadata so a frames file alone is enough to rebuild the
// run.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/nvandessel/hagerstrand/internal/diffusion"
)

// Kind selects which table to export.
type Kind string

const (
	KindSeries Kind = "series"
	KindFrames Kind = "frames"
)

// Metadata keys stored on every exported schema.
const (
	MetaConfig = "hagerstrand.config"
	MetaMode   = "hagerstrand.mode"
	MetaStats  = "hagerstrand.stats"
)

// ErrUnknownKind is returned for a Kind other than series or frames.
var ErrUnknownKind = errors.New("unknown export kind")

// ParseKind converts a user-supplied string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSeries, KindFrames:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q (want series or frames)", ErrUnknownKind, s)
}

// metadata encodes the run identity carried by both tables.
func metadata(res *diffusion.Result) (arrow.Metadata, error) {
	cfg, err := json.Marshal(res.Config())
	if err != nil {
		return arrow.Metadata{}, fmt.Errorf("encoding config: %w", err)
	}
	stats, err := json.Marshal(res.Stats())
	if err != nil {
		return arrow.Metadata{}, fmt.Errorf("encoding stats: %w", err)
	}
	return arrow.NewMetadata(
		[]string{MetaConfig, MetaMode, MetaStats},
		[]string{string(cfg), string(res.Mode()), string(stats)},
	), nil
}

// SeriesSchema returns the schema of the series table.
func SeriesSchema(md *arrow.Metadata) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "iteration", Type: arrow.PrimitiveTypes.Int32},
		{Name: "new_adopted", Type: arrow.PrimitiveTypes.Int64},
		{Name: "cumulative", Type: arrow.PrimitiveTypes.Int64},
	}, md)
}

// FramesSchema returns the schema of the frames table.
func FramesSchema(md *arrow.Metadata) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "iteration", Type: arrow.PrimitiveTypes.Int32},
		{Name: "row", Type: arrow.PrimitiveTypes.Int32},
		{Name: "col", Type: arrow.PrimitiveTypes.Int32},
		{Name: "adopted", Type: arrow.PrimitiveTypes.Int32},
	}, md)
}

// Write exports one table of res to w in the Arrow IPC file format.
func Write(w io.WriteSeeker, kind Kind, res *diffusion.Result) error {
	switch kind {
	case KindSeries:
		return WriteSeries(w, res)
	case KindFrames:
		return WriteFrames(w, res)
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// WriteFile creates path and exports one table of res into it.
func WriteFile(path string, kind Kind, res *diffusion.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := Write(f, kind, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteSeries writes the per-iteration series as a single record batch.
func WriteSeries(w io.WriteSeeker, res *diffusion.Result) error {
	md, err := metadata(res)
	if err != nil {
		return err
	}
	mem := memory.NewGoAllocator()
	schema := SeriesSchema(&md)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	series := res.TimeSeries()
	cumulative := res.Cumulative()
	iters := b.Field(0).(*array.Int32Builder)
	fresh := b.Field(1).(*array.Int64Builder)
	total := b.Field(2).(*array.Int64Builder)
	for t := range series {
		iters.Append(int32(t))
		fresh.Append(int64(series[t]))
		total.Append(int64(cumulative[t]))
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("opening arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing series batch: %w", err)
	}
	return fw.Close()
}

// WriteFrames writes one record batch per iteration holding the non-empty
// cells of that frame.
func WriteFrames(w io.WriteSeeker, res *diffusion.Result) error {
	md, err := metadata(res)
	if err != nil {
		return err
	}
	mem := memory.NewGoAllocator()
	schema := FramesSchema(&md)

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("opening arrow writer: %w", err)
	}

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	cols := res.Config().Cols
	for t := 0; t < res.Iterations(); t++ {
		iters := b.Field(0).(*array.Int32Builder)
		rows := b.Field(1).(*array.Int32Builder)
		cs := b.Field(2).(*array.Int32Builder)
		counts := b.Field(3).(*array.Int32Builder)
		for i, v := range res.Frame(t) {
			if v == 0 {
				continue
			}
			iters.Append(int32(t))
			rows.Append(int32(i / cols))
			cs.Append(int32(i % cols))
			counts.Append(v)
		}

		rec := b.NewRecord()
		err := fw.Write(rec)
		rec.Release()
		if err != nil {
			fw.Close()
			return fmt.Errorf("writing frame %d: %w", t, err)
		}
	}
	return fw.Close()
}
