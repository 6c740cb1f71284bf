package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunState is the lifecycle of an asynchronous run.
type RunState string

const (
	RunStateRunning  RunState = "running"
	RunStateFinished RunState = "finished"
	RunStateFailed   RunState = "failed"
)

// ErrRunNotFound is returned when polling an unknown or expired run ID.
var ErrRunNotFound = errors.New("run not found")

// Run is a handle on one asynchronous scrape run.
type Run struct {
	ID          uuid.UUID  `json:"id"`
	State       RunState   `json:"state"`
	Site        string     `json:"site,omitempty"`
	Force       bool       `json:"force"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *RunResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Runner launches scrape runs in the background and keeps their handles
// around for polling. Finished runs are retained for retention and then
// dropped on the next Start.
type Runner struct {
	orch      *Orchestrator
	logger    *slog.Logger
	retention time.Duration

	mu   sync.Mutex
	runs map[uuid.UUID]*Run
}

func NewRunner(orch *Orchestrator, logger *slog.Logger) *Runner {
	return &Runner{
		orch:      orch,
		logger:    logger.With("component", "runner"),
		retention: time.Hour,
		runs:      make(map[uuid.UUID]*Run),
	}
}

// Start launches a run in the background and returns its handle immediately.
// The run detaches from the caller's context: an HTTP client disconnecting
// must not abort a crawl already underway.
func (r *Runner) Start(siteName string, force bool) *Run {
	run := &Run{
		ID:        uuid.New(),
		State:     RunStateRunning,
		Site:      siteName,
		Force:     force,
		StartedAt: time.Now(),
	}

	r.mu.Lock()
	r.evictLocked()
	r.runs[run.ID] = run
	r.mu.Unlock()

	go func() {
		result, err := r.orch.Run(context.Background(), siteName, force)
		completed := time.Now()

		r.mu.Lock()
		defer r.mu.Unlock()
		run.CompletedAt = &completed
		if err != nil {
			run.State = RunStateFailed
			run.Error = err.Error()
			r.logger.Error("background run failed", "run_id", run.ID, "error", err)
			return
		}
		run.State = RunStateFinished
		run.Result = result
	}()

	return run
}

// Get returns a copy of the run handle for polling.
func (r *Runner) Get(id uuid.UUID) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

// evictLocked drops finished runs older than the retention window. Caller
// holds the mutex.
func (r *Runner) evictLocked() {
	cutoff := time.Now().Add(-r.retention)
	for id, run := range r.runs {
		if run.State != RunStateRunning && run.CompletedAt != nil && run.CompletedAt.Before(cutoff) {
			delete(r.runs, id)
		}
	}
}
