// Package jobs is the Job Runtime: it runs the five pipeline shapes as
// isolated, cancellable OS-process subprocesses with durable status, log
// streams, and a results database. Grounded on
// planner/services/job_queue.go's JobQueue (schema, WAL pragmas,
// claim/complete/fail/reset-stuck operation set) and
// original_source/pipeline/api/app.py's pipeline_status/pipeline_logs
// tables and subprocess supervision.
package jobs

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/clinicalpipe/annotator/internal/apperr"
	"github.com/clinicalpipe/annotator/internal/model"
)

// Store is the durable status + log database, WAL-enabled per spec.md §6.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if absent) the status database at path.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.Unavailable, "failed to create status db directory", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "failed to open status database", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS pipeline_status (
		job_id     TEXT PRIMARY KEY,
		stage      TEXT NOT NULL,
		step       TEXT NOT NULL,
		progress   INTEGER NOT NULL DEFAULT 0,
		result     TEXT,
		started_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS pipeline_logs (
		job_id    TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		level     TEXT NOT NULL,
		message   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pipeline_logs_job ON pipeline_logs(job_id, timestamp);
	`)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to initialize status schema", err)
	}
	return nil
}

// Register inserts the initial Queued/0 row for a new job (spec.md §4.H).
func (s *Store) Register(jobID string, stage model.JobStage) error {
	_, err := s.db.Exec(
		`INSERT INTO pipeline_status (job_id, stage, step, progress, result, started_at) VALUES (?, ?, ?, 0, NULL, ?)`,
		jobID, string(stage), string(model.StepQueued), time.Now().UTC(),
	)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to register job", err)
	}
	return nil
}

// UpdateStatus performs the single atomic transition the spec requires for
// every checkpoint/complete/fail/cancel.
func (s *Store) UpdateStatus(jobID, step string, progress int, result string) error {
	_, err := s.db.Exec(
		`UPDATE pipeline_status SET step = ?, progress = ?, result = ? WHERE job_id = ?`,
		step, progress, nullableString(result), jobID,
	)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to update job status", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Get fetches one job's durable status row.
func (s *Store) Get(jobID string) (*model.Job, error) {
	row := s.db.QueryRow(
		`SELECT job_id, stage, step, progress, result, started_at FROM pipeline_status WHERE job_id = ?`, jobID,
	)
	var job model.Job
	var stage string
	var result sql.NullString
	if err := row.Scan(&job.JobID, &stage, &job.Step, &job.Progress, &result, &job.StartedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, "job not found: "+jobID)
		}
		return nil, apperr.Wrap(apperr.Unavailable, "failed to read job status", err)
	}
	job.Stage = model.JobStage(stage)
	job.Result = result.String
	return &job, nil
}

// RecentTasks returns the most recently started jobs, newest first,
// matching /recent_tasks in spec.md §6.
func (s *Store) RecentTasks(limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(
		`SELECT job_id, stage, step, progress, result, started_at FROM pipeline_status ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "failed to list recent jobs", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		var job model.Job
		var stage string
		var result sql.NullString
		if err := rows.Scan(&job.JobID, &stage, &job.Step, &job.Progress, &result, &job.StartedAt); err != nil {
			return nil, apperr.Wrap(apperr.Unavailable, "failed to scan recent job row", err)
		}
		job.Stage = model.JobStage(stage)
		job.Result = result.String
		out = append(out, job)
	}
	return out, nil
}

// AppendLog writes one line to a job's append-only log stream.
func (s *Store) AppendLog(jobID, level, message string) error {
	_, err := s.db.Exec(
		`INSERT INTO pipeline_logs (job_id, timestamp, level, message) VALUES (?, ?, ?, ?)`,
		jobID, time.Now().UTC(), level, message,
	)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to append job log", err)
	}
	return nil
}

// Logs returns a job's log stream in timestamp order.
func (s *Store) Logs(jobID string) ([]model.LogEntry, error) {
	rows, err := s.db.Query(
		`SELECT job_id, timestamp, level, message FROM pipeline_logs WHERE job_id = ? ORDER BY timestamp`, jobID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "failed to read job logs", err)
	}
	defer rows.Close()

	var out []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		if err := rows.Scan(&e.JobID, &e.Timestamp, &e.Level, &e.Message); err != nil {
			return nil, apperr.Wrap(apperr.Unavailable, "failed to scan job log", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ResetStuckJobs flips jobs that have sat non-terminal past timeout back to
// Failed — the reaper the design notes call for so a job whose process
// died without updating status is never reported as eternally running.
// Ported in spirit from planner/services/job_queue.go's ResetStuckJobs.
func (s *Store) ResetStuckJobs(timeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-timeout).UTC()
	res, err := s.db.Exec(
		`UPDATE pipeline_status SET step = ?, progress = 100, result = ?
		 WHERE step NOT IN (?, ?, ?) AND started_at < ?`,
		string(model.StepFailed), "job process no longer running after restart",
		string(model.StepCompleted), string(model.StepFailed), string(model.StepCancelled),
		cutoff,
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.Unavailable, "failed to reset stuck jobs", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MarkGoneIfOrphaned fails a non-terminal job whose supervising process is
// not (or no longer) tracked in memory — the "in-flight jobs do not
// survive a restart" rule from spec.md §3.
func (s *Store) MarkGoneIfOrphaned(jobID string, running bool) error {
	job, err := s.Get(jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() || running {
		return nil
	}
	return s.UpdateStatus(jobID, string(model.StepFailed), 100, fmt.Sprintf("job %s: process not found after restart", jobID))
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
