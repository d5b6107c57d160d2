package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/workhuntr/internal/match"
	"github.com/kiranshivaraju/workhuntr/internal/quota"
	"github.com/kiranshivaraju/workhuntr/internal/search"
	"github.com/kiranshivaraju/workhuntr/internal/store"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// --- preferences / resumes ---

type mockPrefs struct {
	prefs *models.UserPreferences
	err   error
}

func (m *mockPrefs) GetPreferences(_ context.Context, _ uuid.UUID) (*models.UserPreferences, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.prefs == nil {
		return nil, store.ErrNotFound
	}
	p := *m.prefs
	return &p, nil
}

type mockResumes struct {
	text string
	err  error
}

func (m *mockResumes) GetResumeText(_ context.Context, _ uuid.UUID) (string, error) {
	return m.text, m.err
}

// --- quota ---

type mockGate struct {
	decision   quota.Decision
	authErr    error
	reserveErr error

	mu       sync.Mutex
	reserved int
}

func (m *mockGate) Authorize(_ context.Context, _ uuid.UUID) (quota.Decision, error) {
	return m.decision, m.authErr
}

func (m *mockGate) RequireScoring(_ context.Context, _ uuid.UUID) (quota.Decision, error) {
	if m.authErr != nil {
		return m.decision, m.authErr
	}
	if !m.decision.Allowed {
		return m.decision, quota.ErrRequiresUpgrade
	}
	return m.decision, nil
}

func (m *mockGate) ReserveSearch(_ context.Context, _ uuid.UUID, _ quota.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved++
	return m.reserveErr
}

func freeTier() quota.Decision {
	return quota.Decision{Tier: quota.TierFree, Allowed: false, Limits: quota.Tiers[quota.TierFree]}
}

func proTier() quota.Decision {
	return quota.Decision{Tier: quota.TierPro, Allowed: true, Limits: quota.Tiers[quota.TierPro]}
}

// --- search ---

type mockSearch struct {
	pageSize int
	respond  func(req search.Request) ([]models.RawSearchHit, error)

	mu    sync.Mutex
	calls []search.Request
}

func (m *mockSearch) Name() string { return "mock" }

func (m *mockSearch) PageSize() int {
	if m.pageSize == 0 {
		return 10
	}
	return m.pageSize
}

func (m *mockSearch) Search(_ context.Context, req search.Request) ([]models.RawSearchHit, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.respond == nil {
		return []models.RawSearchHit{}, nil
	}
	return m.respond(req)
}

func (m *mockSearch) Calls() []search.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]search.Request(nil), m.calls...)
}

type countingLimiter struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	l.waits++
	l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	return ctx.Err()
}

// --- enrichment / scoring ---

type mockEnricher struct {
	salaries map[string]models.Salary

	mu    sync.Mutex
	calls [][]models.ClassifiedJob
}

func (m *mockEnricher) ExtractSalaries(_ context.Context, jobs []models.ClassifiedJob, _ int) map[string]models.Salary {
	m.mu.Lock()
	m.calls = append(m.calls, jobs)
	m.mu.Unlock()

	out := make(map[string]models.Salary)
	for _, j := range jobs {
		if s, ok := m.salaries[j.URL]; ok {
			out[j.URL] = s
		}
	}
	return out
}

type mockScorer struct {
	score  int
	source string
}

func (m *mockScorer) ScoreJobs(_ context.Context, jobs []models.DiscoveredJob, _ string, _ []string) []match.Score {
	out := make([]match.Score, len(jobs))
	for i, j := range jobs {
		out[i] = match.Score{JobID: j.ID, Score: m.score, Source: m.source}
	}
	return out
}

// --- helpers ---

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ghHit(n int, title string) models.RawSearchHit {
	return models.RawSearchHit{
		Title:   title,
		URL:     fmt.Sprintf("https://boards.greenhouse.io/acme/jobs/%d", n),
		Snippet: "Remote role",
		Source:  "mock",
	}
}

func remotePrefs(role string) *models.UserPreferences {
	return &models.UserPreferences{TargetRoles: []string{role}, WorkTypes: models.WorkTypes{models.WorkTypeRemote}}
}

type testEnv struct {
	prefs    *mockPrefs
	resumes  *mockResumes
	gate     *mockGate
	search   *mockSearch
	limiter  *countingLimiter
	enricher *mockEnricher
	scorer   *mockScorer
	store    *store.SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	return &testEnv{
		prefs:    &mockPrefs{prefs: remotePrefs("Product Manager")},
		resumes:  &mockResumes{},
		gate:     &mockGate{decision: freeTier()},
		search:   &mockSearch{},
		limiter:  &countingLimiter{},
		enricher: &mockEnricher{},
		scorer:   &mockScorer{score: 77, source: models.MatchSourceAI},
		store:    newTestStore(t),
	}
}

func (e *testEnv) coordinator(opts Options) *Coordinator {
	return NewCoordinator(Deps{
		Preferences: e.prefs,
		Resumes:     e.resumes,
		Gate:        e.gate,
		Search:      e.search,
		Limiter:     e.limiter,
		Enricher:    e.enricher,
		Scorer:      e.scorer,
		Jobs:        e.store,
	}, opts)
}
