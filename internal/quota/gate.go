// Package quota resolves a user's subscription tier and enforces its limits.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/workhuntr/internal/cache"
)

var (
	// ErrRequiresUpgrade means the user's tier does not include AI scoring.
	ErrRequiresUpgrade = errors.New("feature requires a paid tier")
	// ErrQuotaExceeded means the user has used this week's discovery runs.
	ErrQuotaExceeded = errors.New("weekly search quota exceeded")
)

const (
	TierFree    = "free"
	TierPro     = "pro"
	TierPremium = "premium"
)

// Limits are the per-tier usage limits.
type Limits struct {
	SearchesPerWeek  int  `json:"searches_per_week"`
	ResultsPerSearch int  `json:"results_per_search"`
	AIScoring        bool `json:"ai_scoring"`
}

// Tiers maps each tier to its limits.
var Tiers = map[string]Limits{
	TierFree:    {SearchesPerWeek: 3, ResultsPerSearch: 10, AIScoring: false},
	TierPro:     {SearchesPerWeek: 25, ResultsPerSearch: 20, AIScoring: true},
	TierPremium: {SearchesPerWeek: 100, ResultsPerSearch: 30, AIScoring: true},
}

// Subscription is the billing collaborator's view of a user's plan.
type Subscription struct {
	Tier   string
	Status string
}

// TierReader reads subscriptions from the billing store. A user with no
// subscription returns a zero Subscription and no error.
type TierReader interface {
	GetSubscription(ctx context.Context, userID uuid.UUID) (Subscription, error)
}

// Decision is the outcome of Authorize.
// Allowed=false only blocks AI scoring; basic discovery is open to every tier.
type Decision struct {
	Tier    string `json:"tier"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Limits  Limits `json:"limits"`
}

// Gate authorizes pipeline runs against the user's tier.
type Gate struct {
	tiers TierReader
	cache cache.Cache
	now   func() time.Time
}

// NewGate creates a Gate. c may be nil, in which case weekly search quotas
// are not enforced.
func NewGate(tiers TierReader, c cache.Cache) *Gate {
	return &Gate{tiers: tiers, cache: c, now: time.Now}
}

// Authorize resolves the user's effective tier. Inactive subscriptions and
// unknown tiers resolve to free.
func (g *Gate) Authorize(ctx context.Context, userID uuid.UUID) (Decision, error) {
	sub, err := g.tiers.GetSubscription(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("reading subscription: %w", err)
	}

	tier := effectiveTier(sub)
	limits := Tiers[tier]
	d := Decision{Tier: tier, Allowed: limits.AIScoring, Limits: limits}
	if !d.Allowed {
		d.Reason = fmt.Sprintf("AI scoring is not included in the %s tier", tier)
	}
	return d, nil
}

// RequireScoring returns ErrRequiresUpgrade unless the user's tier includes AI scoring.
func (g *Gate) RequireScoring(ctx context.Context, userID uuid.UUID) (Decision, error) {
	d, err := g.Authorize(ctx, userID)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, ErrRequiresUpgrade
	}
	return d, nil
}

// ReserveSearch counts one discovery run against the user's weekly quota.
// Cache failures allow the run (fail open).
func (g *Gate) ReserveSearch(ctx context.Context, userID uuid.UUID, d Decision) error {
	if g.cache == nil || d.Limits.SearchesPerWeek <= 0 {
		return nil
	}

	now := g.now().UTC()
	year, week := now.ISOWeek()
	key := cache.SearchQuotaKey(userID, fmt.Sprintf("%d-W%02d", year, week))

	count, err := g.cache.IncrWithExpiry(ctx, key, untilNextWeek(now))
	if err != nil {
		slog.Warn("search quota counter unavailable", "user_id", userID, "error", err)
		return nil
	}
	if count > int64(d.Limits.SearchesPerWeek) {
		return fmt.Errorf("%w: %d of %d used", ErrQuotaExceeded, count-1, d.Limits.SearchesPerWeek)
	}
	return nil
}

func effectiveTier(sub Subscription) string {
	switch sub.Status {
	case "active", "trialing":
	default:
		return TierFree
	}
	if _, ok := Tiers[sub.Tier]; !ok {
		return TierFree
	}
	return sub.Tier
}

// untilNextWeek returns the time left until the next ISO week starts (Monday 00:00 UTC).
func untilNextWeek(now time.Time) time.Duration {
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysSinceMonday)
	return monday.AddDate(0, 0, 7).Sub(now)
}
