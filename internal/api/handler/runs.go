package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/workhuntr/internal/api/response"
	"github.com/kiranshivaraju/workhuntr/internal/pipeline"
	"github.com/kiranshivaraju/workhuntr/internal/quota"
	"github.com/kiranshivaraju/workhuntr/internal/store"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// PipelineRunner starts and tracks pipeline runs. Implemented by *pipeline.Runner.
type PipelineRunner interface {
	TriggerDiscovery(ctx context.Context, userID uuid.UUID) (*models.Run, error)
	RunScoring(ctx context.Context, userID uuid.UUID) (pipeline.ScoringResult, error)
	Status(ctx context.Context, runID uuid.UUID) (string, error)
}

// RunReader loads run records.
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
}

type runAccepted struct {
	RunID  uuid.UUID `json:"run_id"`
	Type   string    `json:"type"`
	Status string    `json:"status"`
}

// NewDiscoveryHandler returns an http.HandlerFunc for
// POST /api/v1/users/{userID}/discovery. The run executes in the background;
// clients poll GET /api/v1/runs/{runID}.
func NewDiscoveryHandler(runner PipelineRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := uuidParam(w, r, "userID")
		if !ok {
			return
		}

		run, err := runner.TriggerDiscovery(r.Context(), userID)
		if err != nil {
			switch {
			case errors.Is(err, quota.ErrQuotaExceeded):
				response.Error(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED",
					"Weekly search quota exceeded", nil)
			default:
				slog.Error("failed to start discovery", "user_id", userID, "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to start discovery", nil)
			}
			return
		}

		w.Header().Set("Location", "/api/v1/runs/"+run.ID.String())
		response.Accepted(w, runAccepted{RunID: run.ID, Type: run.Type, Status: run.Status})
	}
}

// NewScoringHandler returns an http.HandlerFunc for
// POST /api/v1/users/{userID}/scoring. Scoring runs synchronously.
func NewScoringHandler(runner PipelineRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := uuidParam(w, r, "userID")
		if !ok {
			return
		}

		res, err := runner.RunScoring(r.Context(), userID)
		if err != nil {
			slog.Error("scoring failed", "user_id", userID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Scoring failed", nil)
			return
		}
		if res.RequiresUpgrade {
			response.Error(w, http.StatusPaymentRequired, "REQUIRES_UPGRADE",
				"AI match scoring requires a paid plan", nil)
			return
		}

		response.JSON(w, res)
	}
}

// NewGetRunHandler returns an http.HandlerFunc for GET /api/v1/runs/{runID}.
func NewGetRunHandler(runs RunReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, ok := uuidParam(w, r, "runID")
		if !ok {
			return
		}

		run, err := runs.GetRun(r.Context(), runID)
		if err != nil {
			writeRunError(w, runID, err)
			return
		}
		response.JSON(w, run)
	}
}

// NewRunStatusHandler returns an http.HandlerFunc for
// GET /api/v1/runs/{runID}/status. The status is served from the cache while
// the run is fresh.
func NewRunStatusHandler(runner PipelineRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, ok := uuidParam(w, r, "runID")
		if !ok {
			return
		}

		status, err := runner.Status(r.Context(), runID)
		if err != nil {
			writeRunError(w, runID, err)
			return
		}
		response.JSON(w, map[string]any{"run_id": runID, "status": status})
	}
}

func writeRunError(w http.ResponseWriter, runID uuid.UUID, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "RUN_NOT_FOUND", "Run not found", nil)
		return
	}
	slog.Error("failed to load run", "run_id", runID, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"Failed to load run", nil)
}
