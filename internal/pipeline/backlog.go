package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// BacklogResult summarizes one salary backlog pass.
type BacklogResult struct {
	Candidates int `json:"candidates"`
	Enriched   int `json:"enriched"`
}

// EnrichBacklog retries salary extraction for stored jobs that still have no
// salary and attempts left, newest first, one batch per call. Every candidate
// uses one attempt whether or not a salary is found, so a job stops being
// retried after EnrichMaxAttempts passes.
func (c *Coordinator) EnrichBacklog(ctx context.Context, userID uuid.UUID) (BacklogResult, error) {
	var res BacklogResult
	if c.deps.Enricher == nil {
		return res, nil
	}

	jobs, err := c.deps.Jobs.ListSalaryCandidates(ctx, userID, c.opts.EnrichMaxAttempts, c.opts.EnrichBatchSize)
	if err != nil {
		return res, fmt.Errorf("listing salary candidates: %w", err)
	}
	res.Candidates = len(jobs)
	if len(jobs) == 0 {
		return res, nil
	}

	batch := make([]models.ClassifiedJob, len(jobs))
	for i, j := range jobs {
		batch[i] = models.ClassifiedJob{
			URL:         j.URL,
			Title:       j.Title,
			Snippet:     j.Snippet,
			Source:      j.Source,
			ATSType:     j.ATSType,
			CompanySlug: j.CompanySlug,
		}
	}
	salaries := c.deps.Enricher.ExtractSalaries(ctx, batch, c.opts.EnrichBatchSize)

	var missed []uuid.UUID
	for _, j := range jobs {
		s, ok := salaries[j.URL]
		if !ok || s.IsEmpty() {
			missed = append(missed, j.ID)
			continue
		}
		// ApplySalary counts the attempt itself. A false result means another
		// run filled the salary first.
		applied, err := c.deps.Jobs.ApplySalary(ctx, j.ID, s)
		if err != nil {
			return res, fmt.Errorf("applying salary: %w", err)
		}
		if applied {
			res.Enriched++
		}
	}
	if err := c.deps.Jobs.MarkSalaryAttempted(ctx, missed); err != nil {
		return res, fmt.Errorf("recording salary attempts: %w", err)
	}

	slog.Info("salary backlog pass", "user_id", userID, "candidates", res.Candidates, "enriched", res.Enriched)
	return res, nil
}
