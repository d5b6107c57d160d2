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

const serpAPIPageSize = 100

// SerpAPIClient queries SerpApi's Google engine.
type SerpAPIClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewSerpAPIClient(baseURL, apiKey string, client *http.Client) *SerpAPIClient {
	return &SerpAPIClient{baseURL: baseURL, apiKey: apiKey, client: orDefault(client)}
}

func (c *SerpAPIClient) Name() string  { return "serpapi" }
func (c *SerpAPIClient) PageSize() int { return serpAPIPageSize }

type serpAPIResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

func (c *SerpAPIClient) Search(ctx context.Context, req Request) ([]models.RawSearchHit, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: SERPAPI_KEY is required", ErrMissingCredential)
	}

	num := clampCount(req.Count, serpAPIPageSize)
	params := url.Values{
		"engine":  {"google"},
		"q":       {req.Query},
		"num":     {strconv.Itoa(num)},
		"start":   {strconv.Itoa(req.Offset)},
		"api_key": {c.apiKey},
	}

	resp, err := get(ctx, c.client, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sr serpAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchPayload, err)
	}
	// SerpApi reports "no results" as an error string on a 200.
	if sr.Error != "" && len(sr.OrganicResults) == 0 {
		if sr.Error == "Google hasn't returned any results for this query." {
			return []models.RawSearchHit{}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrSearchPayload, sr.Error)
	}

	hits := make([]models.RawSearchHit, 0, len(sr.OrganicResults))
	for _, r := range sr.OrganicResults {
		if r.Link == "" {
			continue
		}
		hits = append(hits, models.RawSearchHit{Title: r.Title, URL: r.Link, Snippet: r.Snippet, Source: c.Name()})
	}
	return limitHits(hits, num), nil
}

var _ Client = (*SerpAPIClient)(nil)
