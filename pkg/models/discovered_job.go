package models

import (
	"time"

	"github.com/google/uuid"
)

// ATS types recognized by the URL classifier. CareersPage is the generic
// fallback for company career sites that match no known ATS.
const (
	ATSGreenhouse      = "greenhouse"
	ATSLever           = "lever"
	ATSWorkable        = "workable"
	ATSAshby           = "ashby"
	ATSBambooHR        = "bamboohr"
	ATSJobvite         = "jobvite"
	ATSSmartRecruiters = "smartrecruiters"
	ATSWellfound       = "wellfound"
	ATSCareersPage     = "careers_page"
)

const (
	MatchSourceAI        = "ai"
	MatchSourceHeuristic = "heuristic"
)

// RawSearchHit is one organic result returned by a search provider.
type RawSearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// ClassifiedJob is a search hit that matched a known ATS signature or
// careers-page pattern.
type ClassifiedJob struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Source      string `json:"source"`
	ATSType     string `json:"ats_type"`
	CompanySlug string `json:"company_slug"`
}

// Salary is an annual compensation range extracted from a posting.
type Salary struct {
	Min      *int   `json:"min,omitempty"`
	Max      *int   `json:"max,omitempty"`
	Currency string `json:"currency"`
}

// IsEmpty reports whether neither bound is known.
func (s Salary) IsEmpty() bool {
	return s.Min == nil && s.Max == nil
}

// DiscoveredJob is a persisted job posting, unique per (UserID, URL).
type DiscoveredJob struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	UserID         uuid.UUID `db:"user_id"         json:"user_id"`
	URL            string    `db:"url"             json:"url"`
	Title          string    `db:"title"           json:"title"`
	Snippet        string    `db:"snippet"         json:"snippet"`
	CompanySlug    string    `db:"company_slug"    json:"company_slug"`
	ATSType        string    `db:"ats_type"        json:"ats_type"`
	Source         string    `db:"source"          json:"source"`
	DiscoveredAt   time.Time `db:"discovered_at"   json:"discovered_at"`
	SalaryMin      *int      `db:"salary_min"      json:"salary_min,omitempty"`
	SalaryMax      *int      `db:"salary_max"      json:"salary_max,omitempty"`
	SalaryCurrency *string   `db:"salary_currency" json:"salary_currency,omitempty"`
	SalaryAttempts int       `db:"salary_attempts" json:"-"`
	MatchScore     *int      `db:"match_score"     json:"match_score,omitempty"`
	MatchSource    *string   `db:"match_source"    json:"match_source,omitempty"`
	IsReviewed     bool      `db:"is_reviewed"     json:"is_reviewed"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}
