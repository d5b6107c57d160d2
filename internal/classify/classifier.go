// Package classify recognizes job-posting URLs by their applicant tracking
// system and collapses raw search hits into a unique, classified set.
package classify

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

type signature struct {
	atsType string
	re      *regexp.Regexp
}

// Signatures are compiled once at package init and tried in order; the first
// match wins and its capture group is the company slug.
var signatures = []signature{
	{models.ATSGreenhouse, regexp.MustCompile(`(?i)(?:^|[/.])boards\.greenhouse\.io/([\w-]+)`)},
	{models.ATSGreenhouse, regexp.MustCompile(`(?i)(?:^|[/.])job-boards\.greenhouse\.io/([\w-]+)`)},
	{models.ATSLever, regexp.MustCompile(`(?i)(?:^|[/.])jobs\.lever\.co/([\w-]+)`)},
	{models.ATSWorkable, regexp.MustCompile(`(?i)(?:^|[/.])apply\.workable\.com/([\w-]+)`)},
	{models.ATSWorkable, regexp.MustCompile(`(?i)//([\w-]+)\.workable\.com`)},
	{models.ATSAshby, regexp.MustCompile(`(?i)(?:^|[/.])jobs\.ashbyhq\.com/([\w-]+)`)},
	{models.ATSBambooHR, regexp.MustCompile(`(?i)//([\w-]+)\.bamboohr\.com/(?:careers|jobs)`)},
	{models.ATSJobvite, regexp.MustCompile(`(?i)(?:^|[/.])jobs\.jobvite\.com/([\w-]+)`)},
	{models.ATSSmartRecruiters, regexp.MustCompile(`(?i)(?:^|[/.])jobs\.smartrecruiters\.com/([\w-]+)`)},
	{models.ATSWellfound, regexp.MustCompile(`(?i)(?:^|[/.])wellfound\.com/company/([\w-]+)`)},
}

// Hosts that look like ATS hosts but are not a company board.
var reservedSlugs = map[string]bool{
	"www":   true,
	"apply": true,
	"jobs":  true,
}

var reCareersPath = regexp.MustCompile(`(?i)/(careers?|jobs?)(/|$)`)

// Classification is the ATS platform and company a posting URL belongs to.
type Classification struct {
	ATSType     string `json:"ats_type"`
	CompanySlug string `json:"company_slug"`
}

// Classify matches rawURL against the known ATS signatures, then the generic
// careers-page pattern. It is a pure function of the URL string.
func Classify(rawURL string) (Classification, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Classification{}, false
	}

	for _, sig := range signatures {
		m := sig.re.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		slug := strings.ToLower(m[1])
		if reservedSlugs[slug] {
			continue
		}
		return Classification{ATSType: sig.atsType, CompanySlug: slug}, true
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Classification{}, false
	}
	if !reCareersPath.MatchString(u.Path) {
		return Classification{}, false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	slug, _, _ := strings.Cut(host, ".")
	if slug == "" {
		return Classification{}, false
	}
	return Classification{ATSType: models.ATSCareersPage, CompanySlug: slug}, true
}
