package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wayfarerhq/wayfarer/internal/executor"
	"github.com/wayfarerhq/wayfarer/internal/logging"
)

// TaskFunc runs one scheduled task to completion and returns its output.
// Each invocation gets a fresh session; implementations must not share
// conversation state with the interactive session.
type TaskFunc func(ctx context.Context, job Job) (string, error)

// Engine loads jobs and fires them on their schedules. Timer callbacks only
// hand work to the events lane and return; an execution that runs for an
// hour delays nothing else.
type Engine struct {
	store *Store
	exec  *executor.Executor
	run   TaskFunc

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewEngine creates an engine. run is invoked for every fire.
func NewEngine(store *Store, exec *executor.Executor, run TaskFunc) *Engine {
	return &Engine{
		store:   store,
		exec:    exec,
		run:     run,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads all jobs and begins firing. A job with a bad definition is
// logged and skipped; the rest still run. Paused jobs register no timer.
func (e *Engine) Start() error {
	jobs, err := e.store.ListJobs()
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}

	scheduled := 0
	for _, job := range jobs {
		if job.Paused {
			continue
		}
		if err := e.schedule(job); err != nil {
			logging.Warnf("scheduler: skipping job %s (%s): %v", job.ID, job.Name, err)
			continue
		}
		scheduled++
	}

	e.cron.Start()
	logging.Infof("scheduler: started with %d of %d jobs", scheduled, len(jobs))
	return nil
}

// Stop halts the timers. In-flight executions keep running on the events
// lane until the executor itself is stopped.
func (e *Engine) Stop() {
	e.cron.Stop()
}

// Validate checks a job definition without persisting it.
func Validate(job Job) error {
	_, err := buildSchedule(job)
	return err
}

// AddJob persists a new job and, unless paused, schedules it immediately.
func (e *Engine) AddJob(job *Job) error {
	if _, err := buildSchedule(*job); err != nil {
		return err
	}
	if err := e.store.CreateJob(job); err != nil {
		return err
	}
	if job.Paused {
		return nil
	}
	return e.schedule(*job)
}

// RemoveJob unschedules and deletes a job.
func (e *Engine) RemoveJob(id string) error {
	e.unschedule(id)
	return e.store.DeleteJob(id)
}

// PauseJob unschedules a job but keeps its definition.
func (e *Engine) PauseJob(id string) error {
	if err := e.store.SetPaused(id, true); err != nil {
		return err
	}
	e.unschedule(id)
	return nil
}

// ResumeJob re-schedules a paused job.
func (e *Engine) ResumeJob(id string) error {
	job, err := e.store.GetJob(id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", id)
	}
	if err := e.store.SetPaused(id, false); err != nil {
		return err
	}
	return e.schedule(*job)
}

// NextRun reports when a scheduled job will next fire. The zero time means
// the job is not scheduled (paused, spent, or unknown).
func (e *Engine) NextRun(id string) time.Time {
	e.mu.Lock()
	entryID, ok := e.entries[id]
	e.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return e.cron.Entry(entryID).Next
}

func (e *Engine) schedule(job Job) error {
	sched, err := buildSchedule(job)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if old, exists := e.entries[job.ID]; exists {
		e.cron.Remove(old)
	}
	e.entries[job.ID] = e.cron.Schedule(sched, cron.FuncJob(func() {
		e.fire(job)
	}))
	return nil
}

func (e *Engine) unschedule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entryID, ok := e.entries[id]; ok {
		e.cron.Remove(entryID)
		delete(e.entries, id)
	}
}

// fire hands one run to the events lane. It must return immediately so the
// cron goroutine stays free to fire other jobs on time.
func (e *Engine) fire(job Job) {
	logging.Infof("scheduler: firing job %s (%s)", job.ID, job.Name)

	err := e.exec.SubmitAsync(executor.LaneEvents, func(ctx context.Context) (string, error) {
		return e.run(ctx, job)
	}, func(o executor.Outcome) {
		e.record(job, o)
	})
	if err != nil {
		logging.Errorf("scheduler: submit job %s: %v", job.ID, err)
	}
}

// record writes the single execution artifact for a completed fire.
func (e *Engine) record(job Job, o executor.Outcome) {
	ex := &Execution{
		JobID:      job.ID,
		Task:       job.Task,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
	}
	if o.Err != nil {
		ex.Error = o.Err.Error()
	} else {
		ex.Success = true
		ex.Output = o.Output
	}

	if err := e.store.RecordExecution(ex); err != nil {
		logging.Errorf("scheduler: record execution for job %s: %v", job.ID, err)
	}
}

// buildSchedule turns a job definition into a cron schedule.
func buildSchedule(job Job) (cron.Schedule, error) {
	switch job.ScheduleType {
	case ScheduleCron:
		if len(strings.Fields(job.CronExpr)) != 5 {
			return nil, fmt.Errorf("cron expression must have 5 fields: %q", job.CronExpr)
		}
		expr := job.CronExpr
		if job.Timezone != "" {
			expr = "CRON_TZ=" + job.Timezone + " " + expr
		}
		return cron.ParseStandard(expr)

	case ScheduleInterval:
		if job.IntervalSeconds <= 0 {
			return nil, fmt.Errorf("interval must be positive, got %d", job.IntervalSeconds)
		}
		return cron.Every(time.Duration(job.IntervalSeconds) * time.Second), nil

	case ScheduleDate:
		if job.RunAt.IsZero() {
			return nil, fmt.Errorf("date job has no run_at instant")
		}
		return &onceSchedule{at: job.RunAt}, nil

	default:
		return nil, fmt.Errorf("unknown schedule type %q", job.ScheduleType)
	}
}

// onceSchedule fires exactly once at a fixed instant, then never again.
// Returning the zero time tells the cron runner to drop the entry.
type onceSchedule struct {
	at time.Time
}

func (s *onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}
