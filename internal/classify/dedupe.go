package classify

import (
	"net/url"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

const (
	maxTitleBytes   = 500
	maxSnippetBytes = 2000
)

// ExcludedDomains are non-job sites that search engines rank for job queries.
// A host is excluded when it equals one of these or is a subdomain of one.
var ExcludedDomains = []string{
	"linkedin.com",
	"facebook.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"youtube.com",
	"reddit.com",
	"news.ycombinator.com",
	"glassdoor.com",
	"indeed.com",
	"ziprecruiter.com",
	"tiktok.com",
}

var excludedExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true,
	".ppt": true, ".pptx": true, ".xls": true, ".xlsx": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".zip": true,
}

// Deduplicator collapses search hits to one classified job per URL.
// The zero value applies only the domain and extension exclusions.
type Deduplicator struct {
	// ExcludeKeywords drop hits whose title or snippet mentions any of them,
	// matched case-insensitively on word boundaries.
	ExcludeKeywords []string
}

// Dedupe keeps the first occurrence of each URL, drops excluded and
// unclassifiable URLs, and returns the survivors in input order.
// Returns empty slice for empty input (never nil).
func (d Deduplicator) Dedupe(hits []models.RawSearchHit) []models.ClassifiedJob {
	out := make([]models.ClassifiedJob, 0, len(hits))
	seen := make(map[string]bool, len(hits))

	for _, h := range hits {
		u := strings.TrimSpace(h.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true

		if IsExcluded(u) || d.hasRedFlag(h.Title, h.Snippet) {
			continue
		}

		c, ok := Classify(u)
		if !ok {
			continue
		}

		out = append(out, models.ClassifiedJob{
			URL:         u,
			Title:       truncateString(strings.TrimSpace(h.Title), maxTitleBytes),
			Snippet:     truncateString(strings.TrimSpace(h.Snippet), maxSnippetBytes),
			Source:      h.Source,
			ATSType:     c.ATSType,
			CompanySlug: c.CompanySlug,
		})
	}

	return out
}

// Dedupe applies the default Deduplicator.
func Dedupe(hits []models.RawSearchHit) []models.ClassifiedJob {
	return Deduplicator{}.Dedupe(hits)
}

// IsExcluded reports whether rawURL is on an excluded domain or points at a
// document or image rather than a posting.
func IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range ExcludedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}

	return excludedExtensions[strings.ToLower(path.Ext(u.Path))]
}

func (d Deduplicator) hasRedFlag(title, snippet string) bool {
	if len(d.ExcludeKeywords) == 0 {
		return false
	}
	text := " " + normalizeWords(title+" "+snippet) + " "
	for _, kw := range d.ExcludeKeywords {
		kw = normalizeWords(kw)
		if kw != "" && strings.Contains(text, " "+kw+" ") {
			return true
		}
	}
	return false
}

// normalizeWords lower-cases s and collapses punctuation to single spaces.
func normalizeWords(s string) string {
	f := func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}
	return strings.ToLower(strings.Join(strings.FieldsFunc(s, f), " "))
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
