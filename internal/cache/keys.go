package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RunStatusKey(runID uuid.UUID) string {
	return fmt.Sprintf("run:%s", runID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// SearchQuotaKey counts a user's discovery runs in one ISO week, e.g. "2026-W42".
func SearchQuotaKey(userID uuid.UUID, isoWeek string) string {
	return fmt.Sprintf("quota:search:%s:%s", userID, isoWeek)
}

func SearchResultKey(provider, queryHash string) string {
	return fmt.Sprintf("search:%s:%s", provider, queryHash)
}
