// Package pipeline coordinates a discovery run: quota check, query building,
// rate-limited search, classification, salary enrichment, persistence and
// optional match scoring.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/workhuntr/internal/classify"
	"github.com/kiranshivaraju/workhuntr/internal/config"
	"github.com/kiranshivaraju/workhuntr/internal/match"
	"github.com/kiranshivaraju/workhuntr/internal/metrics"
	"github.com/kiranshivaraju/workhuntr/internal/quota"
	"github.com/kiranshivaraju/workhuntr/internal/search"
	"github.com/kiranshivaraju/workhuntr/internal/store"
	"github.com/kiranshivaraju/workhuntr/pkg/jobquery"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

const importSource = "import"

// Run states, logged as the coordinator moves through a run.
const (
	StateQuotaChecked    = "quota_checked"
	StateQueriesBuilt    = "queries_built"
	StateSearching       = "searching"
	StateClassified      = "classified"
	StateEnriching       = "enriching"
	StatePersisted       = "persisted"
	StateScoringEligible = "scoring_eligible"
	StateScored          = "scored"
	StateSkipped         = "skipped"
	StateDone            = "done"
)

// PreferencesReader reads a user's search preferences.
type PreferencesReader interface {
	GetPreferences(ctx context.Context, userID uuid.UUID) (*models.UserPreferences, error)
}

// ResumeReader returns the user's resume text, or "" when there is none.
type ResumeReader interface {
	GetResumeText(ctx context.Context, userID uuid.UUID) (string, error)
}

// QuotaGate is implemented by *quota.Gate.
type QuotaGate interface {
	Authorize(ctx context.Context, userID uuid.UUID) (quota.Decision, error)
	RequireScoring(ctx context.Context, userID uuid.UUID) (quota.Decision, error)
	ReserveSearch(ctx context.Context, userID uuid.UUID, d quota.Decision) error
}

// Limiter paces calls to the search provider.
type Limiter interface {
	Wait(ctx context.Context) error
}

type SalaryExtractor interface {
	ExtractSalaries(ctx context.Context, jobs []models.ClassifiedJob, batchLimit int) map[string]models.Salary
}

type JobScorer interface {
	ScoreJobs(ctx context.Context, jobs []models.DiscoveredJob, resumeText string, targetRoles []string) []match.Score
}

// NewSearchLimiter allows one search call per interval.
func NewSearchLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Deps are the coordinator's collaborators. Scorer may be nil, in which case
// discovery never continues into scoring.
type Deps struct {
	Preferences  PreferencesReader
	Resumes      ResumeReader
	Gate         QuotaGate
	Search       search.Client
	Limiter      Limiter
	Deduplicator classify.Deduplicator
	Enricher     SalaryExtractor
	Scorer       JobScorer
	Jobs         store.JobStore
	Metrics      *metrics.Metrics
}

type Options struct {
	SearchTimeout     time.Duration
	EnrichBatchSize   int
	EnrichMaxAttempts int
	ScoreBatchSize    int
	// ScoreAfterDiscovery continues a discovery run into scoring when the
	// tier allows it and a resume is on file.
	ScoreAfterDiscovery bool
	// Queries, when set, replace the queries built from preferences.
	Queries []string
	// TargetATS restricts discovery to one ATS board. Ignored when Queries is set.
	TargetATS string
}

// OptionsFromConfig maps the pipeline and search settings onto Options.
func OptionsFromConfig(p config.PipelineConfig, s config.SearchConfig, scoreAfterDiscovery bool) Options {
	return Options{
		SearchTimeout:       s.Timeout,
		EnrichBatchSize:     p.EnrichBatchSize,
		EnrichMaxAttempts:   p.EnrichMaxAttempts,
		ScoreBatchSize:      p.ScoreBatchSize,
		ScoreAfterDiscovery: scoreAfterDiscovery,
	}
}

// DiscoveryResult summarizes one discovery run.
type DiscoveryResult struct {
	QueriesRun    int  `json:"queries_run"`
	TotalResults  int  `json:"total_results"`
	RelevantJobs  int  `json:"relevant_jobs"`
	Inserted      int  `json:"inserted"`
	Skipped       int  `json:"skipped"`
	WithSalary    int  `json:"with_salary"`
	Errors        int  `json:"errors"`
	Scored        int  `json:"scored,omitempty"`
	QuotaExceeded bool `json:"quota_exceeded,omitempty"`
}

// ScoringResult summarizes one scoring pass. Total is the user's unscored
// job count when the pass began; a pass scores at most one batch of them.
type ScoringResult struct {
	Scored          int  `json:"scored"`
	Total           int  `json:"total"`
	RequiresUpgrade bool `json:"requires_upgrade,omitempty"`
	NoResume        bool `json:"no_resume,omitempty"`
	Fallback        bool `json:"fallback,omitempty"`
}

// Coordinator runs discovery and scoring for one user at a time. It holds no
// per-run state, so one Coordinator serves concurrent runs for different users.
type Coordinator struct {
	deps    Deps
	opts    Options
	builder jobquery.QueryBuilder
	now     func() time.Time
}

func NewCoordinator(deps Deps, opts Options) *Coordinator {
	if deps.Limiter == nil {
		deps.Limiter = NewSearchLimiter(0)
	}
	if opts.EnrichBatchSize <= 0 {
		opts.EnrichBatchSize = 20
	}
	if opts.EnrichMaxAttempts <= 0 {
		opts.EnrichMaxAttempts = 3
	}
	if opts.ScoreBatchSize <= 0 {
		opts.ScoreBatchSize = 25
	}
	return &Coordinator{deps: deps, opts: opts, now: time.Now}
}

// RunDiscovery checks the user's quota and runs discovery. A spent weekly
// quota is reported as QuotaExceeded with a nil error.
func (c *Coordinator) RunDiscovery(ctx context.Context, userID uuid.UUID) (DiscoveryResult, error) {
	d, err := c.deps.Gate.Authorize(ctx, userID)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("authorizing discovery: %w", err)
	}
	if err := c.deps.Gate.ReserveSearch(ctx, userID, d); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			c.deps.Metrics.QuotaRejected("quota_exceeded")
			slog.Info("discovery refused", "user_id", userID, "tier", d.Tier, "reason", err)
			return DiscoveryResult{QuotaExceeded: true}, nil
		}
		return DiscoveryResult{}, fmt.Errorf("reserving search quota: %w", err)
	}
	return c.Discover(ctx, userID, d)
}

// Discover runs discovery under an already-authorized decision. The only
// errors it returns are fatal: a missing search credential, a store failure
// or ctx cancellation. Every other failure is logged and the run continues.
func (c *Coordinator) Discover(ctx context.Context, userID uuid.UUID, d quota.Decision) (DiscoveryResult, error) {
	var res DiscoveryResult
	log := slog.With("user_id", userID, "tier", d.Tier)
	log.Info("discovery state", "state", StateQuotaChecked)

	prefs, err := c.preferences(ctx, userID)
	if err != nil {
		return res, err
	}

	queries, err := c.queries(*prefs)
	if err != nil {
		return res, err
	}
	log.Info("discovery state", "state", StateQueriesBuilt, "queries", len(queries))

	var hits []models.RawSearchHit
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("discovery cancelled: %w", err)
		}
		log.Debug("discovery state", "state", StateSearching, "i", i+1, "n", len(queries), "query", q.Text)

		page, err := c.searchQuery(ctx, q.Text, d.Limits.ResultsPerSearch)
		res.QueriesRun++
		hits = append(hits, page...)
		if err == nil {
			continue
		}
		if search.IsFatal(err) {
			return res, fmt.Errorf("searching: %w", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("discovery cancelled: %w", ctxErr)
		}
		res.Errors++
		c.deps.Metrics.Degraded("search")
		log.Warn("search query degraded", "query", q.Text, "error", err)
	}
	res.TotalResults = len(hits)

	if err := c.persistHits(ctx, log, userID, hits, &res); err != nil {
		return res, err
	}

	if c.opts.ScoreAfterDiscovery && c.deps.Scorer != nil && d.Allowed {
		log.Info("discovery state", "state", StateScoringEligible)
		sr, err := c.score(ctx, userID, prefs.TargetRoles)
		if err != nil {
			return res, err
		}
		res.Scored = sr.Scored
	} else {
		log.Info("discovery state", "state", StateSkipped)
	}

	log.Info("discovery state", "state", StateDone,
		"queries_run", res.QueriesRun, "total_results", res.TotalResults, "errors", res.Errors)
	return res, nil
}

// Import classifies, enriches and stores hits gathered outside the pipeline,
// such as a previously exported result file. It uses no search quota and
// does not score.
func (c *Coordinator) Import(ctx context.Context, userID uuid.UUID, hits []models.RawSearchHit) (DiscoveryResult, error) {
	res := DiscoveryResult{TotalResults: len(hits)}
	log := slog.With("user_id", userID, "source", importSource)

	hits = slices.Clone(hits)
	for i := range hits {
		if hits[i].Source == "" {
			hits[i].Source = importSource
		}
	}
	if err := c.persistHits(ctx, log, userID, hits, &res); err != nil {
		return res, err
	}
	log.Info("import done", "total_results", res.TotalResults, "inserted", res.Inserted, "skipped", res.Skipped)
	return res, nil
}

// RunScoring scores the user's unscored jobs. Tiers without AI scoring get
// RequiresUpgrade with a nil error.
func (c *Coordinator) RunScoring(ctx context.Context, userID uuid.UUID) (ScoringResult, error) {
	d, err := c.deps.Gate.RequireScoring(ctx, userID)
	if errors.Is(err, quota.ErrRequiresUpgrade) {
		c.deps.Metrics.QuotaRejected("requires_upgrade")
		slog.Info("scoring refused", "user_id", userID, "tier", d.Tier, "reason", d.Reason)
		return ScoringResult{RequiresUpgrade: true}, nil
	}
	if err != nil {
		return ScoringResult{}, fmt.Errorf("authorizing scoring: %w", err)
	}
	if c.deps.Scorer == nil {
		return ScoringResult{}, errors.New("scoring is not configured")
	}

	prefs, err := c.preferences(ctx, userID)
	if err != nil {
		return ScoringResult{}, err
	}
	return c.score(ctx, userID, prefs.TargetRoles)
}

func (c *Coordinator) score(ctx context.Context, userID uuid.UUID, roles []string) (ScoringResult, error) {
	var res ScoringResult
	log := slog.With("user_id", userID)

	resume, err := c.deps.Resumes.GetResumeText(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("reading resume: %w", err)
	}
	if resume == "" {
		res.NoResume = true
		log.Info("scoring state", "state", StateSkipped, "reason", "no resume")
		return res, nil
	}

	res.Total, err = c.deps.Jobs.CountUnscoredJobs(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("counting unscored jobs: %w", err)
	}
	jobs, err := c.deps.Jobs.ListUnscoredJobs(ctx, userID, c.opts.ScoreBatchSize)
	if err != nil {
		return res, fmt.Errorf("listing unscored jobs: %w", err)
	}
	if len(jobs) == 0 {
		log.Info("scoring state", "state", StateSkipped, "reason", "nothing to score")
		return res, nil
	}

	if len(roles) == 0 {
		roles = jobquery.DefaultRoles
	}
	batch := make([]models.DiscoveredJob, len(jobs))
	for i, j := range jobs {
		batch[i] = *j
	}

	for _, s := range c.deps.Scorer.ScoreJobs(ctx, batch, resume, roles) {
		if s.Source == models.MatchSourceHeuristic {
			res.Fallback = true
		}
		ok, err := c.deps.Jobs.SetMatchScore(ctx, s.JobID, s.Score, s.Source)
		if err != nil {
			return res, fmt.Errorf("saving match score: %w", err)
		}
		if ok {
			res.Scored++
		}
	}

	log.Info("scoring state", "state", StateScored, "scored", res.Scored, "total", res.Total, "fallback", res.Fallback)
	return res, nil
}

// queries picks the run's queries: operator overrides, a single ATS board, or
// the queries built from preferences.
func (c *Coordinator) queries(prefs models.UserPreferences) ([]jobquery.SearchQuery, error) {
	if qs := jobquery.CustomQueries(c.opts.Queries); len(qs) > 0 {
		return qs, nil
	}
	if c.opts.TargetATS != "" {
		qs, err := c.builder.ATSQueries(c.opts.TargetATS, prefs)
		if err != nil {
			return nil, fmt.Errorf("building queries: %w", err)
		}
		return qs, nil
	}
	return c.builder.BuildQueries(prefs), nil
}

// persistHits classifies hits, enriches the salary candidates among them and
// upserts the relevant jobs, filling the classification and persistence
// counters of res.
func (c *Coordinator) persistHits(ctx context.Context, log *slog.Logger, userID uuid.UUID, hits []models.RawSearchHit, res *DiscoveryResult) error {
	jobs := c.deps.Deduplicator.Dedupe(hits)
	res.RelevantJobs = len(jobs)
	log.Info("discovery state", "state", StateClassified, "hits", len(hits), "relevant", len(jobs))

	salaries, attempted := c.enrich(ctx, userID, jobs)
	log.Info("discovery state", "state", StateEnriching, "attempted", len(attempted), "extracted", len(salaries))

	discoveredAt := c.now().UTC()
	for _, j := range jobs {
		p := store.UpsertParams{
			ProposedID:      uuid.New(),
			UserID:          userID,
			Job:             j,
			DiscoveredAt:    discoveredAt,
			SalaryAttempted: attempted[j.URL],
		}
		if s, ok := salaries[j.URL]; ok {
			p.Salary = &s
		}

		r, err := c.deps.Jobs.UpsertDiscoveredJob(ctx, p)
		if err != nil {
			return fmt.Errorf("persisting %s: %w", j.URL, err)
		}
		if r.Inserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
		if p.Salary != nil {
			res.WithSalary++
		}
	}
	c.deps.Metrics.Persisted(res.Inserted, res.Skipped)
	log.Info("discovery state", "state", StatePersisted, "inserted", res.Inserted, "skipped", res.Skipped, "with_salary", res.WithSalary)
	return nil
}

// preferences treats a missing profile as empty preferences, which build the
// default remote queries.
func (c *Coordinator) preferences(ctx context.Context, userID uuid.UUID) (*models.UserPreferences, error) {
	prefs, err := c.deps.Preferences.GetPreferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("no preferences on file, using defaults", "user_id", userID)
		return &models.UserPreferences{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading preferences: %w", err)
	}
	return prefs, nil
}

// searchQuery pages one logical query until maxResults hits or a short page.
// Each page waits on the limiter and runs under its own timeout. On error the
// hits gathered so far are returned with it.
func (c *Coordinator) searchQuery(ctx context.Context, query string, maxResults int) ([]models.RawSearchHit, error) {
	client := c.deps.Search
	pageSize := client.PageSize()
	if maxResults <= 0 {
		maxResults = pageSize
	}

	var hits []models.RawSearchHit
	for len(hits) < maxResults {
		if err := c.deps.Limiter.Wait(ctx); err != nil {
			return hits, fmt.Errorf("waiting for search slot: %w", err)
		}

		count := min(pageSize, maxResults-len(hits))
		page, err := c.searchPage(ctx, search.Request{Query: query, Offset: len(hits), Count: count})
		if err != nil {
			outcome := "degraded"
			if search.IsFatal(err) {
				outcome = "fatal"
			}
			c.deps.Metrics.SearchQuery(client.Name(), outcome, 0)
			return hits, err
		}
		c.deps.Metrics.SearchQuery(client.Name(), "ok", len(page))

		hits = append(hits, page...)
		if len(page) < count {
			break
		}
	}
	return hits, nil
}

func (c *Coordinator) searchPage(ctx context.Context, req search.Request) ([]models.RawSearchHit, error) {
	if c.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SearchTimeout)
		defer cancel()
	}
	return c.deps.Search.Search(ctx, req)
}

// enrich extracts salaries for the classified jobs that still lack one. It
// returns the salaries found and the set of URLs that were sent to the model.
func (c *Coordinator) enrich(ctx context.Context, userID uuid.UUID, jobs []models.ClassifiedJob) (map[string]models.Salary, map[string]bool) {
	attempted := make(map[string]bool)
	if c.deps.Enricher == nil || len(jobs) == 0 {
		return map[string]models.Salary{}, attempted
	}

	urls := make([]string, len(jobs))
	for i, j := range jobs {
		urls[i] = j.URL
	}
	need, err := c.deps.Jobs.FilterSalaryCandidates(ctx, userID, urls, c.opts.EnrichMaxAttempts)
	if err != nil {
		c.deps.Metrics.Degraded("enrich")
		slog.Warn("salary candidate lookup failed, skipping enrichment", "user_id", userID, "error", err)
		return map[string]models.Salary{}, attempted
	}

	wanted := make(map[string]bool, len(need))
	for _, u := range need {
		wanted[u] = true
	}
	var batch []models.ClassifiedJob
	for _, j := range jobs {
		if wanted[j.URL] && len(batch) < c.opts.EnrichBatchSize {
			batch = append(batch, j)
			attempted[j.URL] = true
		}
	}
	if len(batch) == 0 {
		return map[string]models.Salary{}, attempted
	}

	return c.deps.Enricher.ExtractSalaries(ctx, batch, c.opts.EnrichBatchSize), attempted
}
