// Package content calls the article generation service.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/optiview/optiview/internal/orchestrator"
)

// Config locates the generation service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements orchestrator.ContentPipeline over the generation API.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("content base url is required")
	}
	if cfg.Timeout <= 0 {
		// Long-form generation is slow; give it room.
		cfg.Timeout = 2 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type outlineRequest struct {
	Keyword    string                   `json:"keyword"`
	Serp       []orchestrator.SerpEntry `json:"serp"`
	WordTarget int                      `json:"word_target"`
}

type outlineResponse struct {
	Outline []string `json:"outline"`
}

// Outline asks the service for section headings informed by the SERP.
func (c *Client) Outline(ctx context.Context, keyword string, serp []orchestrator.SerpEntry, wordTarget int) ([]string, error) {
	var resp outlineResponse
	err := c.post(ctx, "/v1/outline", outlineRequest{
		Keyword:    keyword,
		Serp:       serp,
		WordTarget: wordTarget,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("outline %q: %w", keyword, err)
	}
	if len(resp.Outline) == 0 {
		return nil, fmt.Errorf("outline %q: service returned no sections", keyword)
	}
	return resp.Outline, nil
}

type articleRequest struct {
	Keyword    string   `json:"keyword"`
	Outline    []string `json:"outline"`
	Tone       string   `json:"tone,omitempty"`
	Audience   string   `json:"audience,omitempty"`
	WordTarget int      `json:"word_target"`
}

type articleResponse struct {
	Body            string `json:"body"`
	SEOTitle        string `json:"seo_title"`
	MetaDescription string `json:"meta_description"`
	WordCount       int    `json:"word_count"`
}

// Article writes the full draft for an outline.
func (c *Client) Article(ctx context.Context, keyword string, outline []string, opts orchestrator.ArticleOptions) (orchestrator.GeneratedContent, error) {
	var resp articleResponse
	err := c.post(ctx, "/v1/article", articleRequest{
		Keyword:    keyword,
		Outline:    outline,
		Tone:       opts.Tone,
		Audience:   opts.Audience,
		WordTarget: opts.WordTarget,
	}, &resp)
	if err != nil {
		return orchestrator.GeneratedContent{}, fmt.Errorf("article %q: %w", keyword, err)
	}

	wordCount := resp.WordCount
	if wordCount == 0 {
		wordCount = len(strings.Fields(resp.Body))
	}
	return orchestrator.GeneratedContent{
		Outline:   outline,
		Body:      resp.Body,
		SEOTitle:  resp.SEOTitle,
		MetaDesc:  resp.MetaDescription,
		WordCount: wordCount,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

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
