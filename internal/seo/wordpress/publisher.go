// Package wordpress publishes articles through the WordPress REST API.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/optiview/optiview/internal/orchestrator"
)

// Config holds the site connection. Username and AppPassword are a
// WordPress application password pair.
type Config struct {
	BaseURL     string
	Username    string
	AppPassword string
	Timeout     time.Duration
}

// Publisher implements orchestrator.Publisher against /wp-json/wp/v2.
type Publisher struct {
	cfg  Config
	http *http.Client
}

// New builds a Publisher.
func New(cfg Config) (*Publisher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("wordpress base url is required")
	}
	if cfg.Username == "" || cfg.AppPassword == "" {
		return nil, fmt.Errorf("wordpress application password credentials are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Publisher{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type postRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt,omitempty"`
	Status  string `json:"status"`
}

type postResponse struct {
	ID   int    `json:"id"`
	Link string `json:"link"`
}

// Publish creates a post and returns its public URL.
func (p *Publisher) Publish(ctx context.Context, req orchestrator.PublishRequest) (orchestrator.PublishResult, error) {
	title := req.Title
	if title == "" {
		title = req.SEOTitle
	}
	status := req.Status
	if status == "" {
		status = "publish"
	}

	payload, err := json.Marshal(postRequest{
		Title:   title,
		Content: req.Content,
		Excerpt: req.MetaDescription,
		Status:  status,
	})
	if err != nil {
		return orchestrator.PublishResult{}, fmt.Errorf("encode post: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/wp-json/wp/v2/posts", bytes.NewReader(payload))
	if err != nil {
		return orchestrator.PublishResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(p.cfg.Username, p.cfg.AppPassword)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return orchestrator.PublishResult{}, fmt.Errorf("create post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return orchestrator.PublishResult{}, fmt.Errorf("wordpress returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var post postResponse
	if err := json.NewDecoder(resp.Body).Decode(&post); err != nil {
		return orchestrator.PublishResult{}, fmt.Errorf("decode post response: %w", err)
	}
	return orchestrator.PublishResult{Success: true, URL: post.Link}, nil
}
