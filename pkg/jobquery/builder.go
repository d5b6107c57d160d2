// Package jobquery turns a user's search preferences into web-search query strings.
package jobquery

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

const (
	// MaxRoles bounds how many target roles contribute queries.
	MaxRoles = 3
	// MaxCompanyURLs bounds how many target company sites contribute queries.
	MaxCompanyURLs = 5
	// MaxQueries is the upper bound on the length of any built query list.
	MaxQueries = MaxRoles*3 + 2 + MaxCompanyURLs
)

// Query kinds record which template produced a SearchQuery.
const (
	KindATS     = "ats"
	KindBroad   = "broad"
	KindCompany = "company"
)

// DefaultRoles are searched when the user has not named any target role.
var DefaultRoles = []string{"Product Manager", "Operations Manager", "Project Manager"}

// SearchQuery is a search-engine query string plus the preferences it came from.
type SearchQuery struct {
	Text     string `json:"text"`
	Role     string `json:"role,omitempty"`
	WorkType string `json:"work_type,omitempty"`
	Region   string `json:"region,omitempty"`
	Kind     string `json:"kind"`
}

// QueryBuilder constructs search query strings from user preferences.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type QueryBuilder struct{}

// BuildQueries returns an ordered, non-empty list of at most MaxQueries queries.
func (b QueryBuilder) BuildQueries(p models.UserPreferences) []SearchQuery {
	var queries []SearchQuery

	mode := p.SearchMode
	if mode == "" {
		mode = models.SearchModeCombined
	}

	if mode != models.SearchModeSearchOnly {
		queries = append(queries, b.companyQueries(p.TargetCompanyURLs)...)
	}
	if mode == models.SearchModeURLsOnly && len(queries) > 0 {
		return queries
	}

	region := ""
	if p.LocationZip != nil {
		region, _ = RegionForZip(*p.LocationZip)
	}

	roles := b.roles(p.TargetRoles)
	workTypes := models.NormalizeWorkTypes(p.WorkTypes)

	var roleQueries []SearchQuery
	if workTypes.RemoteOnly() {
		roleQueries = b.remoteQueries(roles)
	} else {
		roleQueries = b.localQueries(roles, workTypeTerm(workTypes), region)
	}

	// Role queries come first so a cap never drops them in favor of company sites.
	queries = append(roleQueries, queries...)
	if len(queries) > MaxQueries {
		queries = queries[:MaxQueries]
	}
	return queries
}

func (b QueryBuilder) roles(in []string) []string {
	roles := make([]string, 0, MaxRoles)
	for _, r := range in {
		r = strings.Join(strings.Fields(r), " ")
		if r == "" {
			continue
		}
		roles = append(roles, r)
		if len(roles) == MaxRoles {
			break
		}
	}
	if len(roles) == 0 {
		return DefaultRoles
	}
	return roles
}

func (b QueryBuilder) remoteQueries(roles []string) []SearchQuery {
	var out []SearchQuery
	for _, role := range roles {
		out = append(out,
			SearchQuery{Text: fmt.Sprintf(`site:boards.greenhouse.io remote "%s"`, role), Role: role, WorkType: models.WorkTypeRemote, Kind: KindATS},
			SearchQuery{Text: fmt.Sprintf(`site:jobs.lever.co remote "%s"`, role), Role: role, WorkType: models.WorkTypeRemote, Kind: KindATS},
			SearchQuery{Text: fmt.Sprintf(`remote "%s" jobs hiring`, role), Role: role, WorkType: models.WorkTypeRemote, Kind: KindBroad},
		)
	}
	return append(out, b.broadATSQueries(models.WorkTypeRemote, "")...)
}

func (b QueryBuilder) localQueries(roles []string, workType, region string) []SearchQuery {
	var out []SearchQuery
	for _, role := range roles {
		out = append(out,
			SearchQuery{Text: join(fmt.Sprintf(`"%s" jobs`, role), region), Role: role, WorkType: workType, Region: region, Kind: KindBroad},
			SearchQuery{Text: join(fmt.Sprintf(`site:boards.greenhouse.io "%s"`, role), region), Role: role, WorkType: workType, Region: region, Kind: KindATS},
			SearchQuery{Text: join(fmt.Sprintf(`%s "%s" jobs`, workType, role), region), Role: role, WorkType: workType, Region: region, Kind: KindBroad},
		)
	}
	return append(out, b.broadATSQueries(workType, region)...)
}

// broadATSQueries are role-independent sweeps of ATS boards that rarely rank
// for role phrasing.
func (b QueryBuilder) broadATSQueries(workType, region string) []SearchQuery {
	return []SearchQuery{
		{Text: join("site:apply.workable.com", workType, region), WorkType: workType, Region: region, Kind: KindATS},
		{Text: join("site:jobs.ashbyhq.com", workType, region), WorkType: workType, Region: region, Kind: KindATS},
	}
}

func (b QueryBuilder) companyQueries(urls []string) []SearchQuery {
	var out []SearchQuery
	seen := make(map[string]bool)
	for _, raw := range urls {
		host := companyHost(raw)
		if host == "" || seen[host] {
			continue
		}
		seen[host] = true
		out = append(out, SearchQuery{Text: fmt.Sprintf("site:%s jobs", host), Kind: KindCompany})
		if len(out) == MaxCompanyURLs {
			break
		}
	}
	return out
}

// companyHost extracts a bare host from a user-entered company URL such as
// "acme.com/careers" or "https://www.acme.com".
func companyHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if !strings.Contains(host, ".") {
		return ""
	}
	return host
}

// workTypeTerm picks the search phrase for a non-remote work arrangement.
func workTypeTerm(types models.WorkTypes) string {
	for _, t := range types {
		switch t {
		case models.WorkTypeRemote:
			continue
		case models.WorkTypeInPerson:
			return "onsite"
		default:
			return t
		}
	}
	return models.WorkTypeHybrid
}

func join(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
