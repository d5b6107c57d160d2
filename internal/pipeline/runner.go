package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/workhuntr/internal/cache"
	"github.com/kiranshivaraju/workhuntr/internal/metrics"
	"github.com/kiranshivaraju/workhuntr/internal/quota"
	"github.com/kiranshivaraju/workhuntr/internal/store"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

const runStatusTTL = 30 * time.Minute

// RunStore persists run records.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.RunUpdateOption) error
}

// Runner wraps the Coordinator with run records so callers can trigger a run
// and poll for its outcome.
type Runner struct {
	coord      *Coordinator
	gate       QuotaGate
	runs       RunStore
	cache      cache.Cache
	metrics    *metrics.Metrics
	runTimeout time.Duration

	// base parents background runs; Cancel ends them.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a Runner. c and m may be nil.
func NewRunner(coord *Coordinator, gate QuotaGate, runs RunStore, c cache.Cache, m *metrics.Metrics, runTimeout time.Duration) *Runner {
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		coord:      coord,
		gate:       gate,
		runs:       runs,
		cache:      c,
		metrics:    m,
		runTimeout: runTimeout,
		base:       base,
		cancel:     cancel,
	}
}

// TriggerDiscovery authorizes the user, reserves one search from the weekly
// quota and starts discovery in the background. It returns the pending run
// immediately. A spent quota returns quota.ErrQuotaExceeded and no run.
func (r *Runner) TriggerDiscovery(ctx context.Context, userID uuid.UUID) (*models.Run, error) {
	d, err := r.reserve(ctx, userID)
	if err != nil {
		return nil, err
	}

	run, err := r.newRun(ctx, userID, models.RunTypeDiscovery)
	if err != nil {
		return nil, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.executeDiscovery(r.base, run.ID, userID, d)
	}()

	return run, nil
}

// RunDiscovery is TriggerDiscovery that waits for the run to finish. Used by
// the scheduler sweep and the CLI. Cancelling ctx stops the run, which is then
// returned with status failed.
func (r *Runner) RunDiscovery(ctx context.Context, userID uuid.UUID) (*models.Run, error) {
	d, err := r.reserve(ctx, userID)
	if err != nil {
		return nil, err
	}
	run, err := r.newRun(ctx, userID, models.RunTypeDiscovery)
	if err != nil {
		return nil, err
	}
	r.executeDiscovery(ctx, run.ID, userID, d)
	return r.runs.GetRun(context.WithoutCancel(ctx), run.ID)
}

// RunScoring scores synchronously under a scoring run record.
func (r *Runner) RunScoring(ctx context.Context, userID uuid.UUID) (ScoringResult, error) {
	run, err := r.newRun(ctx, userID, models.RunTypeScoring)
	if err != nil {
		return ScoringResult{}, err
	}
	r.setStatus(ctx, run.ID, models.RunStatusRunning)

	start := time.Now()
	res, err := r.coord.RunScoring(ctx, userID)
	if err != nil {
		r.fail(ctx, run.ID, models.RunTypeScoring, start, err.Error())
		return res, err
	}
	r.complete(ctx, run.ID, models.RunTypeScoring, start, res)
	return res, nil
}

// Status returns a run's status, from the cache when possible.
func (r *Runner) Status(ctx context.Context, runID uuid.UUID) (string, error) {
	if r.cache != nil {
		if status, found, err := r.cache.GetRunStatus(ctx, runID); err == nil && found {
			return status, nil
		}
	}
	run, err := r.runs.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	return run.Status, nil
}

// Wait blocks until every background run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Cancel stops every background run started by TriggerDiscovery. Runs that
// are cut short are recorded as failed. Runs triggered afterwards fail at once.
func (r *Runner) Cancel() {
	r.cancel()
}

func (r *Runner) reserve(ctx context.Context, userID uuid.UUID) (quota.Decision, error) {
	d, err := r.gate.Authorize(ctx, userID)
	if err != nil {
		return d, fmt.Errorf("authorizing discovery: %w", err)
	}
	if err := r.gate.ReserveSearch(ctx, userID, d); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			r.metrics.QuotaRejected("quota_exceeded")
		}
		return d, err
	}
	return d, nil
}

func (r *Runner) newRun(ctx context.Context, userID uuid.UUID, runType string) (*models.Run, error) {
	now := time.Now().UTC()
	run := &models.Run{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      runType,
		Status:    models.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	r.cacheStatus(ctx, run.ID, models.RunStatusPending)
	return run, nil
}

// executeDiscovery runs discovery under ctx, bounded by the run timeout. Run
// record writes ignore ctx cancellation so a stopped run is still recorded.
// It recovers from panics and always leaves the run completed or failed.
func (r *Runner) executeDiscovery(ctx context.Context, runID, userID uuid.UUID, d quota.Decision) {
	recordCtx := context.WithoutCancel(ctx)
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in discovery run", "error", rec, "run_id", runID)
			r.fail(recordCtx, runID, models.RunTypeDiscovery, start, fmt.Sprintf("panic: %v", rec))
		}
	}()

	r.setStatus(recordCtx, runID, models.RunStatusRunning)

	runCtx := ctx
	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	res, err := r.coord.Discover(runCtx, userID, d)
	if err != nil {
		slog.Error("discovery run failed", "run_id", runID, "user_id", userID, "error", err)
		r.fail(recordCtx, runID, models.RunTypeDiscovery, start, err.Error())
		return
	}
	r.complete(recordCtx, runID, models.RunTypeDiscovery, start, res)
}

func (r *Runner) setStatus(ctx context.Context, runID uuid.UUID, status string) {
	if err := r.runs.UpdateRunStatus(ctx, runID, status); err != nil {
		slog.Warn("failed to update run status", "run_id", runID, "status", status, "error", err)
	}
	r.cacheStatus(ctx, runID, status)
}

func (r *Runner) complete(ctx context.Context, runID uuid.UUID, runType string, start time.Time, stats any) {
	if err := r.runs.UpdateRunStatus(ctx, runID, models.RunStatusCompleted, store.WithStats(stats)); err != nil {
		slog.Warn("failed to complete run", "run_id", runID, "error", err)
	}
	r.cacheStatus(ctx, runID, models.RunStatusCompleted)
	r.metrics.RunFinished(runType, models.RunStatusCompleted, time.Since(start))
}

func (r *Runner) fail(ctx context.Context, runID uuid.UUID, runType string, start time.Time, msg string) {
	if err := r.runs.UpdateRunStatus(ctx, runID, models.RunStatusFailed, store.WithErrorMessage(msg)); err != nil {
		slog.Warn("failed to mark run failed", "run_id", runID, "error", err)
	}
	r.cacheStatus(ctx, runID, models.RunStatusFailed)
	r.metrics.RunFinished(runType, models.RunStatusFailed, time.Since(start))
}

func (r *Runner) cacheStatus(ctx context.Context, runID uuid.UUID, status string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetRunStatus(ctx, runID, status, runStatusTTL); err != nil {
		slog.Warn("failed to cache run status", "run_id", runID, "error", err)
	}
}
