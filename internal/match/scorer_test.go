package match

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/workhuntr/internal/ai"
	"github.com/kiranshivaraju/workhuntr/internal/ai/mock"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

var roles = []string{"Product Manager", "Operations Manager"}

func job(title string) models.DiscoveredJob {
	return models.DiscoveredJob{ID: uuid.New(), Title: title, CompanySlug: "acme", Snippet: "Remote"}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{-10, 0},
		{0, 0},
		{49.5, 50},
		{87.2, 87},
		{100, 100},
		{150, 100},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, Clamp(tt.in))
		})
	}
}

func TestScoreJobs_AIScoresClampedAndRounded(t *testing.T) {
	a, b := job("Senior Product Manager"), job("Barista")
	p := mock.NewTextProvider(fmt.Sprintf("```json\n[{\"id\": %q, \"score\": 112}, {\"id\": %q, \"score\": 33.6}]\n```", a.ID, b.ID))
	s := NewScorer(p, 0, Heuristic{Seed: "t"}, 0, nil)

	got := s.ScoreJobs(context.Background(), []models.DiscoveredJob{a, b}, "resume", roles)

	require.Len(t, got, 2)
	assert.Equal(t, Score{JobID: a.ID, Score: 100, Source: models.MatchSourceAI}, got[0])
	assert.Equal(t, Score{JobID: b.ID, Score: 34, Source: models.MatchSourceAI}, got[1])
}

func TestScoreJobs_FallbackOnProviderError(t *testing.T) {
	jobs := []models.DiscoveredJob{job("Product Manager II"), job("Line Cook")}
	s := NewScorer(mock.NewTimeoutProvider(), 0, Heuristic{Seed: "t"}, 0, nil)

	got := s.ScoreJobs(context.Background(), jobs, "resume", roles)

	require.Len(t, got, 2)
	for _, sc := range got {
		assert.Equal(t, models.MatchSourceHeuristic, sc.Source)
	}
	assert.GreaterOrEqual(t, got[0].Score, 70)
	assert.LessOrEqual(t, got[0].Score, 89)
	assert.GreaterOrEqual(t, got[1].Score, 40)
	assert.LessOrEqual(t, got[1].Score, 64)
}

func TestScoreJobs_FallbackOnGarbage(t *testing.T) {
	jobs := []models.DiscoveredJob{job("Operations Manager")}
	s := NewScorer(mock.NewTextProvider("The candidate looks great!"), 0, Heuristic{Seed: "t"}, 0, nil)

	got := s.ScoreJobs(context.Background(), jobs, "resume", roles)

	require.Len(t, got, 1)
	assert.Equal(t, models.MatchSourceHeuristic, got[0].Source)
}

func TestScoreJobs_MissingIDsFilledByHeuristic(t *testing.T) {
	a, b := job("Product Manager"), job("Data Entry")
	p := mock.NewTextProvider(fmt.Sprintf(`[{"id": %q, "score": 91}, {"id": "not-a-uuid", "score": 10}, {"id": %q, "score": 5}]`, a.ID, uuid.New()))
	s := NewScorer(p, 0, Heuristic{Seed: "t"}, 0, nil)

	got := s.ScoreJobs(context.Background(), []models.DiscoveredJob{a, b}, "resume", roles)

	require.Len(t, got, 2)
	assert.Equal(t, models.MatchSourceAI, got[0].Source)
	assert.Equal(t, 91, got[0].Score)
	assert.Equal(t, models.MatchSourceHeuristic, got[1].Source)
}

func TestScoreJobs_EntriesWithoutScoreUseHeuristic(t *testing.T) {
	a, b, c := job("Product Manager"), job("Senior Product Manager"), job("Operations Manager")
	p := mock.NewTextProvider(fmt.Sprintf(`[{"id": %q}, {"id": %q, "score": null}, {"id": %q, "score": 0}]`, a.ID, b.ID, c.ID))
	s := NewScorer(p, 0, Heuristic{Seed: "t"}, 0, nil)

	got := s.ScoreJobs(context.Background(), []models.DiscoveredJob{a, b, c}, "resume", roles)

	require.Len(t, got, 3)
	for _, sc := range got[:2] {
		assert.Equal(t, models.MatchSourceHeuristic, sc.Source)
		assert.GreaterOrEqual(t, sc.Score, 70)
		assert.LessOrEqual(t, sc.Score, 89)
	}
	assert.Equal(t, Score{JobID: c.ID, Score: 0, Source: models.MatchSourceAI}, got[2])
}

func TestScoreJobs_NilProviderUsesHeuristic(t *testing.T) {
	s := NewScorer(nil, 0, Heuristic{}, 0, nil)
	got := s.ScoreJobs(context.Background(), []models.DiscoveredJob{job("x")}, "", nil)

	require.Len(t, got, 1)
	assert.Equal(t, models.MatchSourceHeuristic, got[0].Source)
}

func TestScoreJobs_Empty(t *testing.T) {
	p := mock.NewMockProvider()
	got := NewScorer(p, 0, Heuristic{}, 0, nil).ScoreJobs(context.Background(), nil, "resume", roles)

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, p.Requests())
}

func TestScoreJobs_PromptTruncatesResume(t *testing.T) {
	p := mock.NewMockProvider()
	s := NewScorer(p, 0, Heuristic{}, 100, nil)
	resume := strings.Repeat("r", 500)

	s.ScoreJobs(context.Background(), []models.DiscoveredJob{job("PM")}, resume, roles)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, strings.Repeat("r", 100))
	assert.NotContains(t, reqs[0].Prompt, strings.Repeat("r", 101))
	assert.Contains(t, reqs[0].Prompt, "Product Manager, Operations Manager")
}

func TestScoreJobs_TimeoutFallsBack(t *testing.T) {
	p := &mock.MockProvider{
		Name_: "slow",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (models.CompletionResponse, error) {
			<-ctx.Done()
			return models.CompletionResponse{}, ai.ErrInferenceTimeout
		},
	}
	s := NewScorer(p, 1, Heuristic{}, 0, nil)

	got := s.ScoreJobs(context.Background(), []models.DiscoveredJob{job("PM")}, "resume", roles)
	require.Len(t, got, 1)
	assert.Equal(t, models.MatchSourceHeuristic, got[0].Source)
}
