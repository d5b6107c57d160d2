package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

const (
	RunTypeDiscovery = "discovery"
	RunTypeScoring   = "scoring"
)

// Run tracks an asynchronous pipeline run. The API returns a run id on
// POST /api/v1/users/{userID}/discovery; the client polls GET /api/v1/runs/{runID}
// until status is completed or failed.
type Run struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	UserID       uuid.UUID       `db:"user_id"       json:"user_id"`
	Type         string          `db:"type"          json:"type"`
	Status       string          `db:"status"        json:"status"`
	Stats        json.RawMessage `db:"stats"         json:"stats,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time      `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"    json:"updated_at"`
}
