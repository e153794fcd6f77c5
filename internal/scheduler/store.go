// Package scheduler fires agent tasks on cron, interval, and one-shot
// schedules. Job definitions live in SQLite; each fire runs in a fresh
// session on the events lane and leaves exactly one execution record.
package scheduler

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Schedule types for a Job.
const (
	ScheduleCron     = "cron"
	ScheduleInterval = "interval"
	ScheduleDate     = "date"
)

// Job is a persisted schedule definition for unattended automation.
type Job struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Task            string    `json:"task"`
	ScheduleType    string    `json:"schedule_type"`
	CronExpr        string    `json:"cron,omitempty"`
	Timezone        string    `json:"timezone,omitempty"`
	IntervalSeconds int       `json:"interval_seconds,omitempty"`
	RunAt           time.Time `json:"run_at,omitempty"`
	Paused          bool      `json:"paused"`
	CreatedAt       time.Time `json:"created_at"`
}

// Execution is one completed unattended run of a Job. Success and Error are
// mutually exclusive.
type Execution struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Task       string    `json:"task"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Store persists jobs and their execution history.
type Store struct {
	db *sql.DB
}

// NewStore creates a job store around an open database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a job, assigning an ID if none is set.
func (s *Store) CreateJob(job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	var runAt sql.NullInt64
	if !job.RunAt.IsZero() {
		runAt = sql.NullInt64{Int64: job.RunAt.Unix(), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO jobs (id, name, task, schedule_type, cron_expr, timezone, interval_seconds, run_at, paused, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.Task, job.ScheduleType,
		nullString(job.CronExpr), nullString(job.Timezone),
		nullInt(job.IntervalSeconds), runAt,
		boolToInt(job.Paused), job.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob returns a job by id, or nil when it does not exist.
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(`
		SELECT id, name, task, schedule_type, cron_expr, timezone, interval_seconds, run_at, paused, created_at
		FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns all jobs ordered by creation time.
func (s *Store) ListJobs() ([]Job, error) {
	rows, err := s.db.Query(`
		SELECT id, name, task, schedule_type, cron_expr, timezone, interval_seconds, run_at, paused, created_at
		FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a job definition. Execution history is kept.
func (s *Store) DeleteJob(id string) error {
	_, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// SetPaused toggles a job's paused flag.
func (s *Store) SetPaused(id string, paused bool) error {
	res, err := s.db.Exec(`UPDATE jobs SET paused = ? WHERE id = ?`, boolToInt(paused), id)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job not found: %s", id)
	}
	return nil
}

// RecordExecution appends one execution record. Each record gets its own
// UUID so two executions finishing in the same second never collide.
func (s *Store) RecordExecution(ex *Execution) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO executions (id, job_id, task, started_at, finished_at, success, output, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.JobID, ex.Task,
		ex.StartedAt.Unix(), ex.FinishedAt.Unix(),
		boolToInt(ex.Success),
		nullString(ex.Output), nullString(ex.Error),
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// ListExecutions returns the most recent executions for a job, newest first.
func (s *Store) ListExecutions(jobID string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, job_id, task, started_at, finished_at, success, output, error
		FROM executions WHERE job_id = ?
		ORDER BY started_at DESC, id LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []Execution
	for rows.Next() {
		var ex Execution
		var started, finished int64
		var success int
		var output, errText sql.NullString
		if err := rows.Scan(&ex.ID, &ex.JobID, &ex.Task, &started, &finished, &success, &output, &errText); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		ex.StartedAt = time.Unix(started, 0)
		ex.FinishedAt = time.Unix(finished, 0)
		ex.Success = success != 0
		ex.Output = output.String
		ex.Error = errText.String
		execs = append(execs, ex)
	}
	return execs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var cronExpr, timezone sql.NullString
	var interval, runAt sql.NullInt64
	var paused int
	var createdAt int64

	err := row.Scan(&job.ID, &job.Name, &job.Task, &job.ScheduleType,
		&cronExpr, &timezone, &interval, &runAt, &paused, &createdAt)
	if err != nil {
		return nil, err
	}

	job.CronExpr = cronExpr.String
	job.Timezone = timezone.String
	job.IntervalSeconds = int(interval.Int64)
	if runAt.Valid {
		job.RunAt = time.Unix(runAt.Int64, 0)
	}
	job.Paused = paused != 0
	job.CreatedAt = time.Unix(createdAt, 0)
	return &job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
