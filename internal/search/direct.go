package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

const (
	directPageSize  = 10
	directUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// DirectClient scrapes an HTML results page. It needs no credential and is
// the fallback when no search API is configured.
type DirectClient struct {
	baseURL string
	client  *http.Client
}

func NewDirectClient(baseURL string, client *http.Client) *DirectClient {
	return &DirectClient{baseURL: baseURL, client: orDefault(client)}
}

func (c *DirectClient) Name() string  { return "direct" }
func (c *DirectClient) PageSize() int { return directPageSize }

func (c *DirectClient) Search(ctx context.Context, req Request) ([]models.RawSearchHit, error) {
	num := clampCount(req.Count, directPageSize)
	params := url.Values{
		"q":     {req.Query},
		"num":   {strconv.Itoa(num)},
		"start": {strconv.Itoa(req.Offset)},
		"hl":    {"en"},
	}

	resp, err := get(ctx, c.client, c.baseURL+"?"+params.Encode(), map[string]string{
		"User-Agent": directUserAgent,
		"Accept":     "text/html",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchPayload, err)
	}

	return limitHits(c.parse(doc), num), nil
}

// parse extracts organic results: each div.g block with an absolute link and an h3 title.
func (c *DirectClient) parse(doc *goquery.Document) []models.RawSearchHit {
	hits := []models.RawSearchHit{}
	doc.Find("div.g").Each(func(_ int, g *goquery.Selection) {
		link := g.Find(`a[href^="http"]`).First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(g.Find("h3").First().Text())
		if title == "" {
			return
		}
		snippet := strings.TrimSpace(g.Find("div.VwiC3b, span.st, div[data-sncf]").First().Text())
		hits = append(hits, models.RawSearchHit{Title: title, URL: href, Snippet: snippet, Source: c.Name()})
	})
	return hits
}

var _ Client = (*DirectClient)(nil)
