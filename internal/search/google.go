package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

const (
	googlePageSize = 10
	// Custom Search refuses start offsets that reach past the 100th result.
	googleMaxStart = 91
)

// GoogleClient queries the Google Custom Search JSON API.
type GoogleClient struct {
	baseURL string
	apiKey  string
	cseID   string
	client  *http.Client
}

func NewGoogleClient(baseURL, apiKey, cseID string, client *http.Client) *GoogleClient {
	return &GoogleClient{baseURL: baseURL, apiKey: apiKey, cseID: cseID, client: orDefault(client)}
}

func (c *GoogleClient) Name() string  { return "google" }
func (c *GoogleClient) PageSize() int { return googlePageSize }

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (c *GoogleClient) Search(ctx context.Context, req Request) ([]models.RawSearchHit, error) {
	if c.apiKey == "" || c.cseID == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY and GOOGLE_CSE_ID are required", ErrMissingCredential)
	}

	start := req.Offset + 1
	if start > googleMaxStart {
		return []models.RawSearchHit{}, nil
	}
	num := clampCount(req.Count, googlePageSize)

	params := url.Values{
		"key":   {c.apiKey},
		"cx":    {c.cseID},
		"q":     {req.Query},
		"num":   {strconv.Itoa(num)},
		"start": {strconv.Itoa(start)},
	}

	resp, err := get(ctx, c.client, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var gr googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchPayload, err)
	}

	hits := make([]models.RawSearchHit, 0, len(gr.Items))
	for _, it := range gr.Items {
		if it.Link == "" {
			continue
		}
		hits = append(hits, models.RawSearchHit{Title: it.Title, URL: it.Link, Snippet: it.Snippet, Source: c.Name()})
	}
	return limitHits(hits, num), nil
}

var _ Client = (*GoogleClient)(nil)
