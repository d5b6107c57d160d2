// Package search adapts external web-search providers to a single Client
// interface returning normalized RawSearchHits.
package search

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kiranshivaraju/workhuntr/internal/config"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// Sentinel errors for search failures. Only ErrMissingCredential is fatal to
// a discovery run; every other error degrades a single query to zero hits.
var (
	ErrMissingCredential = errors.New("search provider credential missing")
	ErrSearchUnavailable = errors.New("search provider unreachable")
	ErrSearchTimeout     = errors.New("search request timeout")
	ErrSearchStatus      = errors.New("search provider returned error status")
	ErrSearchPayload     = errors.New("search provider returned malformed payload")
)

// Client is the interface for one web-search provider.
type Client interface {
	// Search issues exactly one HTTP request for req.
	Search(ctx context.Context, req Request) ([]models.RawSearchHit, error)
	// PageSize is the most results one request can return.
	PageSize() int
	Name() string
}

// Request is one page of one logical query.
type Request struct {
	Query  string
	Offset int
	Count  int
}

// IsFatal reports whether err should abort the whole discovery run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMissingCredential)
}

// NewClient constructs the configured provider. Credentials are checked on
// each call so that a misconfigured provider fails the run, not startup.
func NewClient(cfg config.SearchConfig) (Client, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Provider {
	case "google":
		return NewGoogleClient(cfg.GoogleBaseURL, cfg.GoogleAPIKey, cfg.GoogleCSEID, httpClient), nil
	case "serpapi":
		return NewSerpAPIClient(cfg.SerpAPIURL, cfg.SerpAPIKey, httpClient), nil
	case "direct":
		return NewDirectClient(cfg.DirectURL, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q: must be one of google, serpapi, direct", cfg.Provider)
	}
}

func clampCount(count, pageSize int) int {
	if count <= 0 || count > pageSize {
		return pageSize
	}
	return count
}

func limitHits(hits []models.RawSearchHit, n int) []models.RawSearchHit {
	if n > 0 && len(hits) > n {
		return hits[:n]
	}
	return hits
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrSearchTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrSearchTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
}

// get performs a GET and returns the open response for a 200 status.
func get(ctx context.Context, client *http.Client, u string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrSearchStatus, resp.StatusCode)
	}
	return resp, nil
}

var defaultTimeout = 15 * time.Second

func orDefault(c *http.Client) *http.Client {
	if c == nil {
		return &http.Client{Timeout: defaultTimeout}
	}
	return c
}
