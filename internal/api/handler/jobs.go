package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/workhuntr/internal/api/response"
	"github.com/kiranshivaraju/workhuntr/internal/store"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// JobLister pages through a user's discovered jobs.
type JobLister interface {
	ListDiscoveredJobs(ctx context.Context, filter store.JobFilter) ([]*models.DiscoveredJob, int, error)
}

// NewListJobsHandler returns an http.HandlerFunc for
// GET /api/v1/users/{userID}/jobs. Query parameters: page, limit,
// ats_type, scored=true. Scored jobs come first, best match first.
func NewListJobsHandler(jobs JobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := uuidParam(w, r, "userID")
		if !ok {
			return
		}

		q := r.URL.Query()
		page := intQuery(r, "page", 1)
		limit := min(intQuery(r, "limit", defaultPageLimit), maxPageLimit)
		onlyScored, _ := strconv.ParseBool(q.Get("scored"))

		list, total, err := jobs.ListDiscoveredJobs(r.Context(), store.JobFilter{
			UserID:     userID,
			ATSType:    q.Get("ats_type"),
			OnlyScored: onlyScored,
			Page:       page,
			Limit:      limit,
		})
		if err != nil {
			slog.Error("failed to list jobs", "user_id", userID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list jobs", nil)
			return
		}

		response.Collection(w, list, response.Paginate(page, limit, total))
	}
}
