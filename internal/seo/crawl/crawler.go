// Package crawl implements the site crawler on top of gocolly, with an
// optional headless render pass for pages that look like JS shells.
package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/optiview/optiview/internal/orchestrator"
)

// Hasher fingerprints page bodies for change detection.
type Hasher interface {
	Hash(data []byte) string
}

// Renderer executes JavaScript and returns the rendered DOM for a URL.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	MaxPages  int
	MaxDepth  int
	Timeout   time.Duration
}

// Crawler walks a site starting at its root URL and builds the page
// inventory. It implements orchestrator.Crawler.
type Crawler struct {
	cfg      Config
	hasher   Hasher
	renderer Renderer // nil disables render promotion
	detector *Heuristic
	logger   *zap.Logger
}

// New builds a Crawler. renderer may be nil.
func New(cfg Config, hasher Hasher, renderer Renderer, logger *zap.Logger) *Crawler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:      cfg,
		hasher:   hasher,
		renderer: renderer,
		detector: NewHeuristic(0),
		logger:   logger,
	}
}

type crawledPage struct {
	page       orchestrator.Page
	needRender bool
}

// Crawl visits same-host pages breadth-first up to MaxPages and returns
// their inventory entries in discovery order.
func (c *Crawler) Crawl(ctx context.Context, rawURL string) ([]orchestrator.Page, error) {
	root, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse site url: %w", err)
	}
	host := root.Hostname()
	if host == "" {
		return nil, fmt.Errorf("site url %q has no host", rawURL)
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(host, "www."+host),
		colly.MaxDepth(c.cfg.MaxDepth),
		colly.Async(false),
	)
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	var (
		mu    sync.Mutex
		byURL = make(map[string]*crawledPage)
		order []string
	)

	collector.OnRequest(func(r *colly.Request) {
		mu.Lock()
		full := len(byURL) >= c.cfg.MaxPages
		mu.Unlock()
		if full {
			r.Abort()
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		u := r.Request.URL.String()
		mu.Lock()
		defer mu.Unlock()
		if _, seen := byURL[u]; seen || len(byURL) >= c.cfg.MaxPages {
			return
		}
		byURL[u] = &crawledPage{
			page: orchestrator.Page{
				URL:         u,
				StatusCode:  r.StatusCode,
				ContentHash: c.hasher.Hash(r.Body),
			},
			needRender: c.renderer != nil && c.detector.ShouldPromote(r.StatusCode, r.Body),
		}
		order = append(order, u)
	})

	collector.OnHTML("html", func(e *colly.HTMLElement) {
		u := e.Request.URL.String()
		mu.Lock()
		defer mu.Unlock()
		entry, ok := byURL[u]
		if !ok {
			return
		}
		fillFromDOM(&entry.page, e.DOM)
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		// Errors here are per-link (already visited, off-domain, depth);
		// the crawl as a whole is unaffected.
		_ = e.Request.Visit(link)
	})

	var visitErr error
	collector.OnError(func(_ *colly.Response, err error) {
		mu.Lock()
		if visitErr == nil {
			visitErr = err
		}
		mu.Unlock()
	})

	if err := c.runCollector(ctx, collector, root.String()); err != nil {
		return nil, err
	}

	mu.Lock()
	pages := make([]orchestrator.Page, 0, len(order))
	toRender := make([]int, 0)
	for _, u := range order {
		entry := byURL[u]
		if entry.needRender {
			toRender = append(toRender, len(pages))
		}
		pages = append(pages, entry.page)
	}
	rootErr := visitErr
	mu.Unlock()

	if len(pages) == 0 {
		if rootErr != nil {
			return nil, fmt.Errorf("crawl %s: %w", rawURL, rootErr)
		}
		return nil, fmt.Errorf("crawl %s: no pages reachable", rawURL)
	}

	c.renderPromoted(ctx, pages, toRender)
	return pages, nil
}

// runCollector drives the visit on a goroutine so cancellation is honored.
func (c *Crawler) runCollector(ctx context.Context, collector *colly.Collector, rootURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rootURL)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("crawl canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", rootURL, err)
		}
		return nil
	}
}

// renderPromoted replaces the static parse with the rendered DOM for pages
// the detector flagged. Render failures keep the static entry.
func (c *Crawler) renderPromoted(ctx context.Context, pages []orchestrator.Page, idx []int) {
	for _, i := range idx {
		if ctx.Err() != nil {
			return
		}
		html, err := c.renderer.Render(ctx, pages[i].URL)
		if err != nil {
			c.logger.Warn("headless render failed, keeping static parse",
				zap.String("url", pages[i].URL), zap.Error(err))
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			c.logger.Warn("parse rendered dom failed",
				zap.String("url", pages[i].URL), zap.Error(err))
			continue
		}
		fillFromDOM(&pages[i], doc.Selection)
		pages[i].ContentHash = c.hasher.Hash([]byte(html))
		pages[i].Rendered = true
	}
}

func fillFromDOM(page *orchestrator.Page, dom *goquery.Selection) {
	page.Title = strings.TrimSpace(dom.Find("title").First().Text())
	if desc, ok := dom.Find(`meta[name="description"]`).First().Attr("content"); ok {
		page.MetaDescription = strings.TrimSpace(desc)
	}
	page.H1 = strings.TrimSpace(dom.Find("h1").First().Text())
	page.WordCount = len(strings.Fields(dom.Find("body").Text()))
}
