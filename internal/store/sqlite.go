package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/hagerstrand/internal/diffusion"
	_ "modernc.org/sqlite" // SQLite driver
)

// timeLayout is a fixed-width UTC timestamp so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRunStore implements RunStore using SQLite for persistence.
type SQLiteRunStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	dbPath  string
	nowFunc func() time.Time
}

// NewSQLiteRunStore opens (or creates) the run catalog at dbPath.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{
		db:      db,
		dbPath:  dbPath,
		nowFunc: time.Now,
	}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string { return s.dbPath }

// SaveRun stores the run metadata, its time series and every frame in one
// transaction.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, label string, res *diffusion.Result) (Run, error) {
	if res == nil {
		return Run{}, fmt.Errorf("result is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run := newRun(uuid.NewString(), label, res, s.nowFunc())
	if err := s.insertRun(ctx, run, res); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ImportRun stores a run under its existing ID and creation time.
func (s *SQLiteRunStore) ImportRun(ctx context.Context, run Run, res *diffusion.Result) error {
	run, err := importedRun(run, res)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, run.ID).Scan(&n); err != nil {
		return fmt.Errorf("failed to check run %s: %w", run.ID, err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
	}
	return s.insertRun(ctx, run, res)
}

// insertRun writes the run row, its series and frames in one transaction.
// The caller holds s.mu.
func (s *SQLiteRunStore) insertRun(ctx context.Context, run Run, res *diffusion.Result) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, label, mode, config, rows, cols, max_iter, total, stats, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Label, string(run.Mode), string(configJSON),
		run.Config.Rows, run.Config.Cols, run.Config.MaxIter, run.Total,
		string(statsJSON), run.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	seriesStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_series (run_id, iteration, new_adopted, cumulative) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare series insert: %w", err)
	}
	defer seriesStmt.Close()

	frameStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_frames (run_id, iteration, counts) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare frame insert: %w", err)
	}
	defer frameStmt.Close()

	series := res.TimeSeries()
	cumulative := res.Cumulative()
	for t := range series {
		if _, err := seriesStmt.ExecContext(ctx, run.ID, t, series[t], cumulative[t]); err != nil {
			return fmt.Errorf("failed to insert series row %d: %w", t, err)
		}
		if _, err := frameStmt.ExecContext(ctx, run.ID, t, encodeFrame(res.Frame(t))); err != nil {
			return fmt.Errorf("failed to insert frame %d: %w", t, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun returns the catalog entry for id. Returns nil if not found.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, mode, config, total, stats, created_at
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &run, nil
}

// LoadResult rebuilds the full result of a stored run.
func (s *SQLiteRunStore) LoadResult(ctx context.Context, id string) (*diffusion.Result, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := run.Config
	series := make([]int, 0, cfg.MaxIter)
	rows, err := s.db.QueryContext(ctx,
		`SELECT new_adopted FROM run_series WHERE run_id = ? ORDER BY iteration`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan series row: %w", err)
		}
		series = append(series, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read series: %w", err)
	}

	cells := cfg.Rows * cfg.Cols
	frames := make([]int32, 0, cfg.MaxIter*cells)
	frameRows, err := s.db.QueryContext(ctx,
		`SELECT counts FROM run_frames WHERE run_id = ? ORDER BY iteration`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer frameRows.Close()
	for frameRows.Next() {
		var blob []byte
		if err := frameRows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frame, err := decodeFrame(blob, cells)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame...)
	}
	if err := frameRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}

	return diffusion.Restore(cfg, run.Mode, series, frames, run.Stats)
}

// ListRuns returns catalog entries, newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter ListFilter) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, label, mode, config, total, stats, created_at FROM runs`
	var args []interface{}
	if filter.Mode != "" {
		query += ` WHERE mode = ?`
		args = append(args, string(filter.Mode))
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run; series and frames cascade.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run                  Run
		label                sql.NullString
		mode, cfgJSON, stats string
		createdAt            string
	)
	if err := row.Scan(&run.ID, &label, &mode, &cfgJSON, &run.Total, &stats, &createdAt); err != nil {
		return Run{}, err
	}
	run.Label = label.String
	run.Mode = diffusion.Mode(mode)
	if err := json.Unmarshal([]byte(cfgJSON), &run.Config); err != nil {
		return Run{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &run.Stats); err != nil {
		return Run{}, fmt.Errorf("decoding stats: %w", err)
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("decoding created_at: %w", err)
	}
	run.CreatedAt = t
	return run, nil
}

// encodeFrame packs counts as little-endian uint32 values.
func encodeFrame(counts []int32) []byte {
	buf := make([]byte, 0, 4*len(counts))
	for _, v := range counts {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
	}
	return buf
}

// decodeFrame unpacks a blob written by encodeFrame.
func decodeFrame(blob []byte, cells int) ([]int32, error) {
	if len(blob) != 4*cells {
		return nil, fmt.Errorf("frame blob has %d bytes, want %d", len(blob), 4*cells)
	}
	out := make([]int32, cells)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return out, nil
}
