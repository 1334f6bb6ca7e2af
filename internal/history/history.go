// Package history keeps a journal of past runs in SQLite.
//
// The journal is write-only from the engine's point of view: runs never read it
// back, so every run still starts with an empty processed set.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/v0xg/playlistfill/internal/engine"
)

//go:embed sql/schema.sql
var schema string

// ErrRunNotFound is returned when a run id is unknown
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one journaled run
type RunRecord struct {
	ID         string
	Target     string
	URL        string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt *time.Time
	Success    *bool
	Processed  int
	ErrorCount int
	Message    string
}

// Finished reports whether the run produced a result
func (r RunRecord) Finished() bool {
	return r.FinishedAt != nil
}

// ItemRecord is one settled item of a run
type ItemRecord struct {
	Seq      int
	Identity string
	Outcome  string
	At       time.Time
}

// Store is the run journal
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and writes serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Start records the beginning of a run and returns an observer that journals it
func (s *Store) Start(ctx context.Context, target, url string, dryRun bool, log zerolog.Logger) (*Recorder, error) {
	id := uuid.New().String()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, target, url, dry_run, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, target, url, dryRun, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	return &Recorder{
		store: s,
		runID: id,
		log:   log.With().Str("component", "history").Str("run_id", id).Logger(),
	}, nil
}

// Runs returns the most recent runs, newest first
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target, url, dry_run, started_at, finished_at, success, processed, error_count, message
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns a single run by id
func (s *Store) Run(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target, url, dry_run, started_at, finished_at, success, processed, error_count, message
		FROM runs
		WHERE id = ?
	`, id)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// Items returns the settled items of a run in claim order
func (s *Store) Items(ctx context.Context, runID string) ([]ItemRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, identity, outcome, at FROM run_items WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run items: %w", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		var it ItemRecord
		if err := rows.Scan(&it.Seq, &it.Identity, &it.Outcome, &it.At); err != nil {
			return nil, fmt.Errorf("failed to scan run item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		r        RunRecord
		finished sql.NullTime
		success  sql.NullBool
	)
	err := row.Scan(&r.ID, &r.Target, &r.URL, &r.DryRun, &r.StartedAt, &finished, &success, &r.Processed, &r.ErrorCount, &r.Message)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, err
		}
		return RunRecord{}, fmt.Errorf("failed to scan run: %w", err)
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if success.Valid {
		b := success.Bool
		r.Success = &b
	}
	return r, nil
}

// Recorder journals one run. It implements engine.Observer; write failures
// are logged and never interrupt the run.
type Recorder struct {
	store *Store
	runID string
	log   zerolog.Logger

	processed int
	errors    int
}

var _ engine.Observer = (*Recorder)(nil)

// RunID returns the journal id of the run
func (r *Recorder) RunID() string {
	return r.runID
}

// ItemSettled stores the item outcome
func (r *Recorder) ItemSettled(ctx context.Context, rep engine.ItemReport) {
	if rep.Outcome.Failed() {
		r.errors++
	} else {
		r.processed++
	}

	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO run_items (run_id, seq, identity, outcome, at) VALUES (?, ?, ?, ?, ?)`,
		r.runID, rep.Seq, rep.Identity, rep.Outcome.String(), rep.At.UTC(),
	)
	if err != nil {
		r.log.Warn().Err(err).Int("seq", rep.Seq).Msg("failed to journal item")
	}
}

// RunFinished stores the run result
func (r *Recorder) RunFinished(ctx context.Context, res engine.Result) {
	r.finish(ctx, res)
}

// Fail marks a run that ended with cause instead of a result as failed. The
// counts are those of the items settled so far.
func (r *Recorder) Fail(ctx context.Context, cause error) {
	r.finish(ctx, engine.Result{
		Success:    false,
		Processed:  r.processed,
		ErrorCount: r.errors,
		Message:    cause.Error(),
	})
}

func (r *Recorder) finish(ctx context.Context, res engine.Result) {
	_, err := r.store.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, success = ?, processed = ?, error_count = ?, message = ?
		WHERE id = ?
	`, time.Now().UTC(), res.Success, res.Processed, res.ErrorCount, res.Message, r.runID)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to journal run result")
	}
}
