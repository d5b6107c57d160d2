package jobquery

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// KindCustom marks a query supplied verbatim by the operator.
const KindCustom = "custom"

// ErrUnknownATS is returned by ATSQueries for an ATS with no known board host.
var ErrUnknownATS = errors.New("unknown ats")

// atsHosts are the public job-board hosts searched for each ATS.
var atsHosts = map[string]string{
	models.ATSGreenhouse:      "boards.greenhouse.io",
	models.ATSLever:           "jobs.lever.co",
	models.ATSWorkable:        "apply.workable.com",
	models.ATSAshby:           "jobs.ashbyhq.com",
	models.ATSBambooHR:        "bamboohr.com",
	models.ATSJobvite:         "jobs.jobvite.com",
	models.ATSSmartRecruiters: "jobs.smartrecruiters.com",
	models.ATSWellfound:       "wellfound.com",
}

// ATSTypes lists the ATS names ATSQueries accepts, sorted.
func ATSTypes() []string {
	out := make([]string, 0, len(atsHosts))
	for k := range atsHosts {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// CustomQueries wraps operator-supplied query strings. Blank and repeated
// entries are dropped and the list is capped at MaxQueries.
func CustomQueries(texts []string) []SearchQuery {
	var out []SearchQuery
	seen := make(map[string]bool)
	for _, t := range texts {
		t = strings.Join(strings.Fields(t), " ")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, SearchQuery{Text: t, Kind: KindCustom})
		if len(out) == MaxQueries {
			break
		}
	}
	return out
}

// ATSQueries targets a single ATS board: one query per target role plus a
// role-independent hiring sweep, all restricted to the board's host.
func (b QueryBuilder) ATSQueries(ats string, p models.UserPreferences) ([]SearchQuery, error) {
	ats = strings.ToLower(strings.TrimSpace(ats))
	host, ok := atsHosts[ats]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownATS, ats)
	}

	workTypes := models.NormalizeWorkTypes(p.WorkTypes)
	workType, region := models.WorkTypeRemote, ""
	if !workTypes.RemoteOnly() {
		workType = workTypeTerm(workTypes)
		if p.LocationZip != nil {
			region, _ = RegionForZip(*p.LocationZip)
		}
	}

	site := "site:" + host
	var out []SearchQuery
	for _, role := range b.roles(p.TargetRoles) {
		out = append(out, SearchQuery{
			Text:     join(site, workType, fmt.Sprintf(`"%s"`, role), region),
			Role:     role,
			WorkType: workType,
			Region:   region,
			Kind:     KindATS,
		})
	}
	out = append(out, SearchQuery{Text: join(site, workType, "hiring", region), WorkType: workType, Region: region, Kind: KindATS})
	return out, nil
}
