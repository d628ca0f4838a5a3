// Package research talks to the keyword research API. One client serves
// both keyword suggestion and SERP lookup.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/optiview/optiview/internal/orchestrator"
)

// Config locates the research API.
type Config struct {
	BaseURL string
	APIKey  string
	Region  string
	Timeout time.Duration
}

// Client implements orchestrator.KeywordProvider and
// orchestrator.SerpProvider against the research API.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("research base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type keywordRow struct {
	Keyword    string `json:"keyword"`
	Volume     int    `json:"volume"`
	Difficulty int    `json:"difficulty"`
}

type suggestResponse struct {
	Keywords []keywordRow `json:"keywords"`
}

// Suggest returns keyword opportunities for the seed terms.
func (c *Client) Suggest(ctx context.Context, seeds []string, region string, limit int) ([]orchestrator.KeywordOpportunity, error) {
	if region == "" {
		region = c.cfg.Region
	}
	q := url.Values{}
	q.Set("seeds", strings.Join(seeds, ","))
	q.Set("limit", strconv.Itoa(limit))
	if region != "" {
		q.Set("region", region)
	}

	var resp suggestResponse
	if err := c.get(ctx, "/v1/keywords", q, &resp); err != nil {
		return nil, fmt.Errorf("keyword suggest: %w", err)
	}

	opportunities := make([]orchestrator.KeywordOpportunity, 0, len(resp.Keywords))
	for _, row := range resp.Keywords {
		opportunities = append(opportunities, orchestrator.KeywordOpportunity{
			Keyword:    row.Keyword,
			Volume:     row.Volume,
			Difficulty: row.Difficulty,
		})
	}
	return opportunities, nil
}

type serpRow struct {
	Link     string `json:"link"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type serpResponse struct {
	Results []serpRow `json:"results"`
}

// Search returns the organic results for a query.
func (c *Client) Search(ctx context.Context, query string, num int) ([]orchestrator.SerpEntry, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("num", strconv.Itoa(num))
	if c.cfg.Region != "" {
		q.Set("region", c.cfg.Region)
	}

	var resp serpResponse
	if err := c.get(ctx, "/v1/serp", q, &resp); err != nil {
		return nil, fmt.Errorf("serp search: %w", err)
	}

	entries := make([]orchestrator.SerpEntry, 0, len(resp.Results))
	for _, row := range resp.Results {
		entries = append(entries, orchestrator.SerpEntry{
			Link:     row.Link,
			Title:    row.Title,
			Position: row.Position,
		})
	}
	return entries, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
