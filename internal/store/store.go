package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/workhuntr/internal/quota"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid run status transition")

// JobStore persists discovered jobs. It is the only state the pipeline writes.
type JobStore interface {
	UpsertDiscoveredJob(ctx context.Context, p UpsertParams) (UpsertResult, error)
	FilterSalaryCandidates(ctx context.Context, userID uuid.UUID, urls []string, maxAttempts int) ([]string, error)
	ListSalaryCandidates(ctx context.Context, userID uuid.UUID, maxAttempts, limit int) ([]*models.DiscoveredJob, error)
	ApplySalary(ctx context.Context, jobID uuid.UUID, salary models.Salary) (bool, error)
	MarkSalaryAttempted(ctx context.Context, jobIDs []uuid.UUID) error
	ListUnscoredJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*models.DiscoveredJob, error)
	CountUnscoredJobs(ctx context.Context, userID uuid.UUID) (int, error)
	SetMatchScore(ctx context.Context, jobID uuid.UUID, score int, source string) (bool, error)
	ListDiscoveredJobs(ctx context.Context, filter JobFilter) ([]*models.DiscoveredJob, int, error)
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	JobStore

	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	GetPreferences(ctx context.Context, userID uuid.UUID) (*models.UserPreferences, error)
	GetSubscription(ctx context.Context, userID uuid.UUID) (quota.Subscription, error)
	GetResumeText(ctx context.Context, userID uuid.UUID) (string, error)
	ListAutoDiscoveryUsers(ctx context.Context) ([]uuid.UUID, error)

	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status string, opts ...RunUpdateOption) error
}

// UpsertParams is one classified job to insert or refresh. ProposedID is used
// only when the row is new.
type UpsertParams struct {
	ProposedID      uuid.UUID
	UserID          uuid.UUID
	Job             models.ClassifiedJob
	DiscoveredAt    time.Time
	Salary          *models.Salary
	SalaryAttempted bool
}

// UpsertResult reports the row's id and whether the upsert created it.
type UpsertResult struct {
	ID       uuid.UUID
	Inserted bool
}

type JobFilter struct {
	UserID     uuid.UUID
	ATSType    string
	OnlyScored bool
	Page       int
	Limit      int
}

type runUpdateParams struct {
	ErrorMessage *string
	Stats        json.RawMessage
}

type RunUpdateOption func(*runUpdateParams)

func WithErrorMessage(msg string) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.ErrorMessage = &msg
	}
}

// WithStats records the run's result counters.
func WithStats(stats any) RunUpdateOption {
	return func(p *runUpdateParams) {
		if b, err := json.Marshal(stats); err == nil {
			p.Stats = b
		}
	}
}

var validTransitions = map[string][]string{
	models.RunStatusPending: {models.RunStatusRunning, models.RunStatusFailed},
	models.RunStatusRunning: {models.RunStatusCompleted, models.RunStatusFailed},
}

func canTransition(from, to string) bool {
	for _, a := range validTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

func normalizePage(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// attemptIncrement is the salary_attempts delta for an upsert.
func (p UpsertParams) attemptIncrement() int {
	if p.SalaryAttempted {
		return 1
	}
	return 0
}

func (p UpsertParams) salaryColumns() (lo, hi *int, currency *string) {
	if p.Salary == nil || p.Salary.IsEmpty() {
		return nil, nil, nil
	}
	c := p.Salary.Currency
	if c == "" {
		c = "USD"
	}
	return p.Salary.Min, p.Salary.Max, &c
}
