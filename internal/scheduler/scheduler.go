// Package scheduler periodically runs discovery for every user who has
// auto-discovery turned on.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/workhuntr/internal/pipeline"
	"github.com/kiranshivaraju/workhuntr/internal/quota"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// UserLister returns the users opted into auto-discovery.
type UserLister interface {
	ListAutoDiscoveryUsers(ctx context.Context) ([]uuid.UUID, error)
}

// DiscoveryRunner runs one discovery to completion. Implemented by
// *pipeline.Runner.
type DiscoveryRunner interface {
	RunDiscovery(ctx context.Context, userID uuid.UUID) (*models.Run, error)
}

// BacklogEnricher retries salary extraction for a user's stored jobs.
// Implemented by *pipeline.Coordinator.
type BacklogEnricher interface {
	EnrichBacklog(ctx context.Context, userID uuid.UUID) (pipeline.BacklogResult, error)
}

// SweepResult counts the outcomes of one sweep.
type SweepResult struct {
	Users     int
	Completed int
	Failed    int
	OverQuota int
	// SalariesFound counts salaries filled in by the backlog pass.
	SalariesFound int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithBacklog runs a salary backlog pass for each user after their discovery
// run, whatever its outcome.
func WithBacklog(b BacklogEnricher) Option {
	return func(s *Scheduler) { s.backlog = b }
}

// Scheduler wraps robfig/cron and runs the sweep on a fixed interval.
type Scheduler struct {
	cron        *cron.Cron
	users       UserLister
	runner      DiscoveryRunner
	backlog     BacklogEnricher
	spec        string
	concurrency int
	sweeps      atomic.Int64
}

// New creates a Scheduler that sweeps every interval with at most
// concurrency discovery runs in flight.
func New(users UserLister, runner DiscoveryRunner, interval time.Duration, concurrency int, opts ...Option) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	s := &Scheduler{
		// Overlapping sweeps would double-charge weekly quotas.
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		users:       users,
		runner:      runner,
		spec:        fmt.Sprintf("@every %s", interval),
		concurrency: concurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the sweep and starts the scheduler. One sweep also runs
// immediately so new deployments do not wait a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	job := cron.FuncJob(func() { s.Sweep(ctx) })
	if _, err := s.cron.AddJob(s.spec, job); err != nil {
		return fmt.Errorf("cron.AddJob: %w", err)
	}

	s.cron.Start()
	slog.Info("scheduler started", "spec", s.spec, "concurrency", s.concurrency)

	go s.Sweep(ctx)
	return nil
}

// Stop halts the cron and waits for a running sweep to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// Sweeps reports how many sweeps have started.
func (s *Scheduler) Sweeps() int64 {
	return s.sweeps.Load()
}

// Sweep runs discovery for every auto-discovery user. Per-user failures are
// logged and counted; they never stop the sweep.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	s.sweeps.Add(1)
	var res SweepResult

	users, err := s.users.ListAutoDiscoveryUsers(ctx)
	if err != nil {
		slog.Error("sweep: listing auto-discovery users failed", "error", err)
		return res
	}
	res.Users = len(users)
	if len(users) == 0 {
		slog.Info("sweep: no auto-discovery users")
		return res
	}

	slog.Info("sweep started", "users", len(users))
	var completed, failed, overQuota, salaries atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, userID := range users {
		g.Go(func() error {
			run, err := s.runner.RunDiscovery(gctx, userID)
			switch {
			case errors.Is(err, quota.ErrQuotaExceeded):
				overQuota.Add(1)
				slog.Info("sweep: user over weekly quota", "user_id", userID)
			case err != nil:
				failed.Add(1)
				slog.Warn("sweep: discovery failed to start", "user_id", userID, "error", err)
			case run.Status != models.RunStatusCompleted:
				failed.Add(1)
				slog.Warn("sweep: discovery run failed", "user_id", userID, "run_id", run.ID, "status", run.Status)
			default:
				completed.Add(1)
			}
			salaries.Add(int64(s.enrichBacklog(gctx, userID)))
			return nil
		})
	}
	_ = g.Wait()

	res.Completed = int(completed.Load())
	res.Failed = int(failed.Load())
	res.OverQuota = int(overQuota.Load())
	res.SalariesFound = int(salaries.Load())
	slog.Info("sweep complete", "users", res.Users, "completed", res.Completed, "failed", res.Failed,
		"over_quota", res.OverQuota, "salaries_found", res.SalariesFound)
	return res
}

func (s *Scheduler) enrichBacklog(ctx context.Context, userID uuid.UUID) int {
	if s.backlog == nil || ctx.Err() != nil {
		return 0
	}
	res, err := s.backlog.EnrichBacklog(ctx, userID)
	if err != nil {
		slog.Warn("sweep: salary backlog pass failed", "user_id", userID, "error", err)
	}
	return res.Enriched
}
