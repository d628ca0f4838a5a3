package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/optiview/optiview/internal/events"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("task-%04d", g.n), nil
}

type fakeCrawler struct {
	mu    sync.Mutex
	pages []Page
	err   error
	block chan struct{} // when non-nil, Crawl waits until closed
	calls int
}

func (f *fakeCrawler) Crawl(ctx context.Context, _ string) ([]Page, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	pages, err := f.pages, f.err
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return append([]Page(nil), pages...), nil
}

func (f *fakeCrawler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAudit struct {
	mu     sync.Mutex
	result AuditResult
	err    error
	calls  int
}

func (f *fakeAudit) Audit(_ context.Context, _ []Page) (AuditResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return AuditResult{}, f.err
	}
	result := f.result
	result.Issues = append([]AuditIssue(nil), f.result.Issues...)
	return result, nil
}

type fakeAutoFix struct {
	mu    sync.Mutex
	fixes []Fix
	err   error
}

func (f *fakeAutoFix) GenerateFixes(_ context.Context, _ AuditResult, _ []Page) ([]Fix, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Fix(nil), f.fixes...), nil
}

type fakeKeywords struct {
	mu       sync.Mutex
	opps     []KeywordOpportunity
	err      error
	gotSeeds []string
}

func (f *fakeKeywords) Suggest(_ context.Context, seeds []string, _ string, _ int) ([]KeywordOpportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotSeeds = append([]string(nil), seeds...)
	if f.err != nil {
		return nil, f.err
	}
	return append([]KeywordOpportunity(nil), f.opps...), nil
}

type fakeSerp struct {
	mu      sync.Mutex
	entries []SerpEntry
	errFor  map[string]error
	err     error
	queries []string
}

func (f *fakeSerp) Search(_ context.Context, query string, _ int) ([]SerpEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if err, ok := f.errFor[query]; ok {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]SerpEntry(nil), f.entries...), nil
}

type fakeContent struct {
	mu         sync.Mutex
	outline    []string
	article    GeneratedContent
	outlineErr error
	articleErr error
}

func (f *fakeContent) Outline(_ context.Context, _ string, _ []SerpEntry, _ int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outlineErr != nil {
		return nil, f.outlineErr
	}
	return append([]string(nil), f.outline...), nil
}

func (f *fakeContent) Article(_ context.Context, _ string, outline []string, _ ArticleOptions) (GeneratedContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.articleErr != nil {
		return GeneratedContent{}, f.articleErr
	}
	article := f.article
	article.Outline = append([]string(nil), outline...)
	return article, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	result PublishResult
	err    error
	gotReq PublishRequest
	calls  int
}

func (f *fakePublisher) Publish(_ context.Context, req PublishRequest) (PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotReq = req
	if f.err != nil {
		return PublishResult{}, f.err
	}
	return f.result, nil
}

type fakeArtifacts struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeArtifacts) Put(_ context.Context, path string, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.paths = append(f.paths, path)
	return "mem://" + path, nil
}

type capturingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *capturingEmitter) Emit(evt events.Event) {
	e.mu.Lock()
	e.events = append(e.events, evt)
	e.mu.Unlock()
}

func (e *capturingEmitter) byType(t events.Type) []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []events.Event
	for _, evt := range e.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

// testFixtures bundles one full fake collaborator set wired for a cascade
// that reaches quiescence: the audit's critical issue is fixable, research
// returns enough opportunities to stop re-proposing, and SERP lookups
// surface one competitor.
type testFixtures struct {
	crawler   *fakeCrawler
	audit     *fakeAudit
	autofix   *fakeAutoFix
	keywords  *fakeKeywords
	serp      *fakeSerp
	content   *fakeContent
	publisher *fakePublisher
	artifacts *fakeArtifacts
}

func newTestFixtures() *testFixtures {
	return &testFixtures{
		crawler: &fakeCrawler{pages: []Page{
			{URL: "https://acme.test/", Title: "Acme Plumbing", H1: "Welcome", WordCount: 600, StatusCode: 200},
			{URL: "https://acme.test/services", Title: "Services", WordCount: 50, StatusCode: 200},
		}},
		audit: &fakeAudit{result: AuditResult{
			Score: 72,
			Issues: []AuditIssue{
				{Kind: "missing_meta_description", Severity: SeverityCritical, URL: "https://acme.test/"},
				{Kind: "thin_content", Severity: SeverityWarning, URL: "https://acme.test/services"},
			},
			Summary: "2 pages audited",
		}},
		autofix: &fakeAutoFix{fixes: []Fix{
			{IssueKind: "missing_meta_description", URL: "https://acme.test/", Automated: true, Applied: true},
			{IssueKind: "thin_content", URL: "https://acme.test/services", Automated: false},
		}},
		keywords: &fakeKeywords{opps: []KeywordOpportunity{
			{Keyword: "emergency plumber springfield", Volume: 1300, Difficulty: 20},
			{Keyword: "drain repair cost", Volume: 480, Difficulty: 12},
			{Keyword: "water heater install", Volume: 900, Difficulty: 25},
			{Keyword: "leak detection", Volume: 320, Difficulty: 10},
			{Keyword: "sump pump service", Volume: 150, Difficulty: 8},
			{Keyword: "pipe relining", Volume: 90, Difficulty: 30},
		}},
		serp: &fakeSerp{entries: []SerpEntry{
			{Link: "https://rival.test/plumbing", Title: "Rival Plumbing", Position: 1},
			{Link: "https://acme.test/services", Title: "Services", Position: 4},
		}},
		content: &fakeContent{
			outline: []string{"Intro", "Costs", "When to call"},
			article: GeneratedContent{
				Body:      "A thorough guide to the topic.",
				SEOTitle:  "The Guide",
				MetaDesc:  "Everything you need to know.",
				WordCount: 1180,
			},
		},
		publisher: &fakePublisher{result: PublishResult{Success: true, URL: "https://acme.test/blog/post/"}},
		artifacts: &fakeArtifacts{},
	}
}

func (f *testFixtures) collaborators() Collaborators {
	return Collaborators{
		Crawler:   f.crawler,
		Audit:     f.audit,
		AutoFix:   f.autofix,
		Keywords:  f.keywords,
		Serp:      f.serp,
		Content:   f.content,
		Publisher: f.publisher,
		Artifacts: f.artifacts,
	}
}

func testConfig() Config {
	return Config{
		OrgID:              "org-1",
		SiteID:             "site-1",
		SiteURL:            "https://acme.test",
		AutoFix:            true,
		Tone:               "friendly",
		Audience:           "homeowners",
		TargetKeywords:     []string{"plumber springfield"},
		MaxConcurrentTasks: 3,
		TickInterval:       5 * time.Millisecond,
	}
}

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
