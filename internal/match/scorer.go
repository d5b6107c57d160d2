// Package match scores discovered jobs against a user's resume and target roles.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/workhuntr/internal/ai"
	"github.com/kiranshivaraju/workhuntr/internal/metrics"
	"github.com/kiranshivaraju/workhuntr/pkg/llmjson"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// DefaultResumeBytes bounds the resume excerpt sent to the model.
const DefaultResumeBytes = 4000

const (
	snippetBytes = 400
	maxTokens    = 2048
)

const systemPrompt = `You are a recruiter rating how well job postings fit a candidate. Respond with a JSON array only.`

// Score is one job's 0-100 match score and where it came from.
type Score struct {
	JobID  uuid.UUID
	Score  int
	Source string
}

// Scorer produces exactly one score per job: from the model when it answers
// usably, otherwise from the Heuristic.
type Scorer struct {
	provider    models.AIProvider
	timeout     time.Duration
	heuristic   Heuristic
	resumeBytes int
	metrics     *metrics.Metrics
}

// NewScorer creates a Scorer. m may be nil.
func NewScorer(p models.AIProvider, timeout time.Duration, h Heuristic, resumeBytes int, m *metrics.Metrics) *Scorer {
	if resumeBytes <= 0 {
		resumeBytes = DefaultResumeBytes
	}
	return &Scorer{provider: p, timeout: timeout, heuristic: h, resumeBytes: resumeBytes, metrics: m}
}

// scoreEntry is one element of the model's answer. Score is nil when the
// model left it out or sent null; those jobs fall back to the heuristic.
type scoreEntry struct {
	ID    string   `json:"id"`
	Score *float64 `json:"score"`
}

// ScoreJobs scores every job in one batched model call. Jobs the model fails
// to score, for any reason, get a heuristic score instead.
func (s *Scorer) ScoreJobs(ctx context.Context, jobs []models.DiscoveredJob, resumeText string, targetRoles []string) []Score {
	if len(jobs) == 0 {
		return []Score{}
	}

	aiScores := s.askModel(ctx, jobs, resumeText, targetRoles)

	out := make([]Score, 0, len(jobs))
	fallbacks := 0
	for _, j := range jobs {
		if v, ok := aiScores[j.ID]; ok {
			out = append(out, Score{JobID: j.ID, Score: v, Source: models.MatchSourceAI})
			continue
		}
		fallbacks++
		out = append(out, Score{
			JobID:  j.ID,
			Score:  s.heuristic.Score(j.ID, j.Title, targetRoles),
			Source: models.MatchSourceHeuristic,
		})
	}

	if fallbacks > 0 {
		s.metrics.Fallback("scoring")
		slog.Info("heuristic scores used", "jobs", fallbacks, "total", len(jobs))
	}
	return out
}

// askModel returns clamped scores keyed by job id. Any failure yields an empty map.
func (s *Scorer) askModel(ctx context.Context, jobs []models.DiscoveredJob, resumeText string, targetRoles []string) map[uuid.UUID]int {
	scores := make(map[uuid.UUID]int)
	if s.provider == nil {
		return scores
	}

	resp, err := ai.Complete(ctx, s.provider, s.timeout, models.CompletionRequest{
		System:      systemPrompt,
		Prompt:      s.buildPrompt(jobs, resumeText, targetRoles),
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		slog.Warn("ai scoring failed, using heuristic", "jobs", len(jobs), "error", err)
		s.metrics.Degraded("scoring")
		return scores
	}

	entries, err := llmjson.DecodeArray[scoreEntry](resp.Text)
	if err != nil {
		slog.Warn("ai scoring returned unparsable output, using heuristic", "jobs", len(jobs), "error", err)
		s.metrics.Degraded("scoring")
		return scores
	}

	known := make(map[uuid.UUID]bool, len(jobs))
	for _, j := range jobs {
		known[j.ID] = true
	}
	for _, e := range entries {
		id, err := uuid.Parse(strings.TrimSpace(e.ID))
		if err != nil || !known[id] || e.Score == nil {
			continue
		}
		scores[id] = Clamp(*e.Score)
	}
	return scores
}

// Clamp rounds v to the nearest integer within [0, 100].
func Clamp(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	r := math.Round(v)
	switch {
	case r < 0:
		return 0
	case r > 100:
		return 100
	default:
		return int(r)
	}
}

func (s *Scorer) buildPrompt(jobs []models.DiscoveredJob, resumeText string, targetRoles []string) string {
	var b strings.Builder
	b.WriteString("Rate each job from 0 to 100 for how well it fits the candidate below.\n\n")
	if len(targetRoles) > 0 {
		fmt.Fprintf(&b, "Target roles: %s\n\n", strings.Join(targetRoles, ", "))
	}
	b.WriteString("Resume excerpt:\n")
	b.WriteString(ai.TruncateString(resumeText, s.resumeBytes))
	b.WriteString("\n\nJobs:\n")
	for _, j := range jobs {
		fmt.Fprintf(&b, "- id: %s\n  title: %s\n  company: %s\n  snippet: %s\n",
			j.ID, j.Title, j.CompanySlug, ai.TruncateString(j.Snippet, snippetBytes))
	}
	b.WriteString("\nReturn a JSON array with one object per job: ")
	b.WriteString(`[{"id": "<job id>", "score": 0}]`)
	return b.String()
}
