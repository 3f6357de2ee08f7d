// Package store persists runs and their progress events in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"go-workflow/internal/model"
)

// ErrNotFound is returned for unknown run ids.
var ErrNotFound = errors.New("run not found")

// Store is a SQLite-backed run history. It implements the executor's
// Recorder so progress events land next to the run they belong to.
type Store struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// Open opens (and if needed creates) the database at dbPath.
func Open(dbPath string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	// Create tables if not exists
	runTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		pipeline TEXT NOT NULL,
		status TEXT NOT NULL,
		params TEXT,
		report TEXT,
		error_message TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		finished_at DATETIME
	);
	`
	eventTable := `
	CREATE TABLE IF NOT EXISTS run_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		job TEXT,
		instance TEXT,
		stage TEXT,
		status TEXT,
		message TEXT,
		details TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, id);
	`
	if _, err := s.db.Exec(runTable); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	if _, err := s.db.Exec(eventTable); err != nil {
		return fmt.Errorf("create run_events table: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// CreateRun stores a new pending run.
func (s *Store) CreateRun(ctx context.Context, id, pipeline string, params *model.Map) (*model.RunRecord, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, pipeline, status, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, pipeline, string(model.RunPending), string(paramsJSON), now, now)
	if err != nil {
		return nil, err
	}
	return &model.RunRecord{ID: id, Pipeline: pipeline, Status: model.RunPending, Params: params, CreatedAt: now}, nil
}

// UpdateRunStatus updates run status
func (s *Store) UpdateRunStatus(ctx context.Context, id string, status model.RunStatus) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, string(status), now, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// FinishRun stores the final report, or the error that kept the run from
// producing one.
func (s *Store) FinishRun(ctx context.Context, id string, report *model.ExecutionReport, runErr error) error {
	status := model.RunFailed
	var reportJSON, errMsg sql.NullString
	if report != nil {
		status = report.Status
		b, err := json.Marshal(report)
		if err != nil {
			return err
		}
		reportJSON = sql.NullString{String: string(b), Valid: true}
	}
	if runErr != nil {
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, report = ?, error_message = ?, updated_at = ?, finished_at = ? WHERE id = ?`,
		string(status), reportJSON, errMsg, now, now, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// GetRun fetches a run with its report.
func (s *Store) GetRun(ctx context.Context, id string) (*model.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pipeline, status, params, report, error_message, created_at, finished_at FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row.Scan, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListRuns returns runs newest first, optionally for one pipeline. Reports
// are left out.
func (s *Store) ListRuns(ctx context.Context, pipeline string, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline, status, params, NULL, error_message, created_at, finished_at FROM runs
		 WHERE (? = '' OR pipeline = ?) ORDER BY created_at DESC LIMIT ?`, pipeline, pipeline, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows.Scan, false)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRun(scan func(...any) error, withReport bool) (*model.RunRecord, error) {
	var (
		rec                      model.RunRecord
		status                   string
		params, report, errorMsg sql.NullString
		finished                 sql.NullTime
	)
	if err := scan(&rec.ID, &rec.Pipeline, &status, &params, &report, &errorMsg, &rec.CreatedAt, &finished); err != nil {
		return nil, err
	}
	rec.Status = model.RunStatus(status)
	rec.Error = errorMsg.String
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	if params.Valid && params.String != "" && params.String != "null" {
		rec.Params = model.NewMap()
		if err := json.Unmarshal([]byte(params.String), rec.Params); err != nil {
			return nil, fmt.Errorf("decode params of run %s: %w", rec.ID, err)
		}
	}
	if withReport && report.Valid {
		rec.Report = &model.ExecutionReport{}
		if err := json.Unmarshal([]byte(report.String), rec.Report); err != nil {
			return nil, fmt.Errorf("decode report of run %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

// Record stores a progress event. Failures are logged; progress tracking
// never fails a run.
func (s *Store) Record(ctx context.Context, ev model.RunEvent) {
	var details sql.NullString
	if len(ev.Details) > 0 {
		if b, err := json.Marshal(ev.Details); err == nil {
			details = sql.NullString{String: string(b), Valid: true}
		}
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	// detached from ctx so the final events of a cancelled run are kept
	_, err := s.db.ExecContext(context.WithoutCancel(ctx),
		`INSERT INTO run_events (run_id, type, job, instance, stage, status, message, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, string(ev.Type), ev.Job, ev.Instance, ev.Stage, ev.Status, ev.Message, details, ts.UTC())
	if err != nil {
		s.log.WithError(err).WithField("run_id", ev.RunID).Warn("could not save run event")
	}
	if ev.Type == model.EventRunStarted {
		if err := s.UpdateRunStatus(context.WithoutCancel(ctx), ev.RunID, model.RunRunning); err != nil && !errors.Is(err, ErrNotFound) {
			s.log.WithError(err).WithField("run_id", ev.RunID).Warn("could not mark run running")
		}
	}
}

// Events returns a run's events with id greater than after, oldest first.
func (s *Store) Events(ctx context.Context, runID string, after int64) ([]model.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, type, job, instance, stage, status, message, details, created_at
		 FROM run_events WHERE run_id = ? AND id > ? ORDER BY id`, runID, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunEvent
	for rows.Next() {
		var (
			ev                                     model.RunEvent
			typ                                    string
			job, instance, stage, status, msg, det sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.RunID, &typ, &job, &instance, &stage, &status, &msg, &det, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Type = model.EventType(typ)
		ev.Job, ev.Instance, ev.Stage = job.String, instance.String, stage.String
		ev.Status, ev.Message = status.String, msg.String
		if det.Valid {
			if err := json.Unmarshal([]byte(det.String), &ev.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
