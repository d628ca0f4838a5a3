package orchestrator

import (
	"context"
	"time"
)

// Crawler discovers the site's page inventory starting from a root URL.
type Crawler interface {
	Crawl(ctx context.Context, url string) ([]Page, error)
}

// AuditEngine scores a crawled page inventory and reports issues.
type AuditEngine interface {
	Audit(ctx context.Context, pages []Page) (AuditResult, error)
}

// AutoFixEngine proposes fixes for audit findings; fixes flagged Automated
// are applied without user review.
type AutoFixEngine interface {
	GenerateFixes(ctx context.Context, audit AuditResult, pages []Page) ([]Fix, error)
}

// KeywordProvider suggests keyword opportunities for a set of seed terms.
type KeywordProvider interface {
	Suggest(ctx context.Context, seeds []string, region string, limit int) ([]KeywordOpportunity, error)
}

// SerpProvider returns organic results for a query.
type SerpProvider interface {
	Search(ctx context.Context, query string, num int) ([]SerpEntry, error)
}

// ContentPipeline generates outlines and long-form articles.
type ContentPipeline interface {
	Outline(ctx context.Context, keyword string, serp []SerpEntry, wordTarget int) ([]string, error)
	Article(ctx context.Context, keyword string, outline []string, opts ArticleOptions) (GeneratedContent, error)
}

// ArticleOptions tunes article generation.
type ArticleOptions struct {
	Tone       string
	Audience   string
	WordTarget int
}

// Publisher pushes finished content to the site's CMS.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
}

// ArtifactStore archives generated article bodies and returns a URI.
type ArtifactStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Collaborators bundles the external engines one orchestrator instance
// calls. Publisher may be nil when the site has no CMS connected.
type Collaborators struct {
	Crawler   Crawler
	Audit     AuditEngine
	AutoFix   AutoFixEngine
	Keywords  KeywordProvider
	Serp      SerpProvider
	Content   ContentPipeline
	Publisher Publisher
	Artifacts ArtifactStore
}
