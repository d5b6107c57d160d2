// Package enrich extracts structured salary data from job postings with a
// generative model. Extraction is best-effort: every failure yields an empty
// result, never an error.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/workhuntr/internal/ai"
	"github.com/kiranshivaraju/workhuntr/internal/metrics"
	"github.com/kiranshivaraju/workhuntr/pkg/llmjson"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// MaxBatch is the most jobs sent in a single extraction prompt.
const MaxBatch = 20

const (
	defaultCurrency = "USD"
	snippetBytes    = 600
	maxTokens       = 2048
)

const systemPrompt = `You extract compensation from job postings. Respond with a JSON array only.`

// Extractor batches jobs into one extraction prompt per call.
type Extractor struct {
	provider models.AIProvider
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewExtractor creates an Extractor. m may be nil.
func NewExtractor(p models.AIProvider, timeout time.Duration, m *metrics.Metrics) *Extractor {
	return &Extractor{provider: p, timeout: timeout, metrics: m}
}

type salaryEntry struct {
	URL       string     `json:"url"`
	SalaryMin flexNumber `json:"salary_min"`
	SalaryMax flexNumber `json:"salary_max"`
	Currency  string     `json:"currency"`
}

// ExtractSalaries returns the salaries the model could find, keyed by job URL.
// At most batchLimit jobs (capped at MaxBatch) are sent; jobs past the limit
// are left for a later pass. Jobs the model omits or answers malformed are
// absent from the map.
func (e *Extractor) ExtractSalaries(ctx context.Context, jobs []models.ClassifiedJob, batchLimit int) map[string]models.Salary {
	out := make(map[string]models.Salary)
	if len(jobs) == 0 {
		return out
	}
	if batchLimit <= 0 || batchLimit > MaxBatch {
		batchLimit = MaxBatch
	}
	if len(jobs) > batchLimit {
		jobs = jobs[:batchLimit]
	}

	resp, err := ai.Complete(ctx, e.provider, e.timeout, models.CompletionRequest{
		System:      systemPrompt,
		Prompt:      buildPrompt(jobs),
		MaxTokens:   maxTokens,
		Temperature: 0,
	})
	if err != nil {
		slog.Warn("salary extraction failed", "jobs", len(jobs), "error", err)
		e.metrics.Degraded("enrich")
		return out
	}

	entries, err := llmjson.DecodeArray[salaryEntry](resp.Text)
	if err != nil {
		slog.Warn("salary extraction returned unparsable output", "jobs", len(jobs), "error", err)
		e.metrics.Degraded("enrich")
		return out
	}

	requested := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		requested[j.URL] = true
	}

	for _, entry := range entries {
		url := strings.TrimSpace(entry.URL)
		if !requested[url] {
			continue
		}
		if s, ok := entry.normalize(); ok {
			out[url] = s
		}
	}

	slog.Debug("salary extraction complete", "requested", len(jobs), "extracted", len(out))
	return out
}

// normalize rounds both bounds, drops non-positive values and orders min <= max.
func (s salaryEntry) normalize() (models.Salary, bool) {
	lo := roundPositive(s.SalaryMin.value)
	hi := roundPositive(s.SalaryMax.value)
	if lo == nil && hi == nil {
		return models.Salary{}, false
	}
	if lo != nil && hi != nil && *lo > *hi {
		lo, hi = hi, lo
	}

	currency := strings.ToUpper(strings.TrimSpace(s.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	return models.Salary{Min: lo, Max: hi, Currency: currency}, true
}

func roundPositive(v *float64) *int {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	r := math.Round(*v)
	if r <= 0 || r > math.MaxInt32 {
		return nil
	}
	n := int(r)
	return &n
}

func buildPrompt(jobs []models.ClassifiedJob) string {
	var b strings.Builder
	b.WriteString("For each job posting below, estimate the annual base salary range.\n")
	b.WriteString("Convert hourly rates to annual (x2080) and foreign currencies to USD.\n")
	b.WriteString("If a posting gives no compensation information, use null for both bounds.\n\n")
	b.WriteString("Return a JSON array with one object per posting:\n")
	b.WriteString(`[{"url": "<posting url>", "salary_min": 120000, "salary_max": 150000, "currency": "USD"}]` + "\n\n")
	b.WriteString("Postings:\n")
	for i, j := range jobs {
		fmt.Fprintf(&b, "%d. URL: %s\n   Title: %s\n   Snippet: %s\n",
			i+1, j.URL, j.Title, ai.TruncateString(j.Snippet, snippetBytes))
	}
	return b.String()
}

// flexNumber accepts JSON numbers and numeric strings such as "$120,000" or "95k".
type flexNumber struct {
	value *float64
}

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		f.value = &n
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := parseAmount(s); ok {
		f.value = &v
	}
	return nil
}

func parseAmount(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("$", "", ",", "", "usd", "", " ", "").Replace(s)
	mult := 1.0
	if strings.HasSuffix(s, "k") {
		mult = 1000
		s = strings.TrimSuffix(s, "k")
	}
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v * mult, true
}
