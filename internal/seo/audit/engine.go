// Package audit scores a crawled page inventory against on-page SEO
// checks and reports the findings.
package audit

import (
	"context"
	"fmt"

	"github.com/optiview/optiview/internal/orchestrator"
)

// Issue kinds produced by the engine. The auto-fix engine keys off these.
const (
	KindBrokenPage         = "broken_page"
	KindMissingTitle       = "missing_title"
	KindTitleTooLong       = "title_too_long"
	KindMissingMetaDesc    = "missing_meta_description"
	KindMissingH1          = "missing_h1"
	KindThinContent        = "thin_content"
	KindDuplicateTitle     = "duplicate_title"
	KindNotRenderedContent = "unrendered_shell"
)

// Severity weights subtracted from a perfect score per open issue.
const (
	criticalWeight = 10
	warningWeight  = 3
	noticeWeight   = 1
)

// Config tunes the audit thresholds.
type Config struct {
	MinWordCount int
	MaxTitleLen  int
}

// Engine implements orchestrator.AuditEngine with rule-based checks.
type Engine struct {
	cfg   Config
	clock orchestrator.Clock
}

// New builds an Engine. Zero config fields select defaults.
func New(cfg Config, clock orchestrator.Clock) *Engine {
	if cfg.MinWordCount <= 0 {
		cfg.MinWordCount = 300
	}
	if cfg.MaxTitleLen <= 0 {
		cfg.MaxTitleLen = 60
	}
	return &Engine{cfg: cfg, clock: clock}
}

// Audit checks every page and returns a scored result.
func (e *Engine) Audit(ctx context.Context, pages []orchestrator.Page) (orchestrator.AuditResult, error) {
	if err := ctx.Err(); err != nil {
		return orchestrator.AuditResult{}, err
	}

	var issues []orchestrator.AuditIssue
	titleOwners := make(map[string]string, len(pages))

	for _, page := range pages {
		issues = append(issues, e.checkPage(page, titleOwners)...)
	}

	score := 100
	var criticals, warnings, notices int
	for _, issue := range issues {
		switch issue.Severity {
		case orchestrator.SeverityCritical:
			criticals++
			score -= criticalWeight
		case orchestrator.SeverityWarning:
			warnings++
			score -= warningWeight
		default:
			notices++
			score -= noticeWeight
		}
	}
	if score < 0 {
		score = 0
	}

	return orchestrator.AuditResult{
		Score:  score,
		Issues: issues,
		Summary: fmt.Sprintf("%d pages audited: %d critical, %d warnings, %d notices",
			len(pages), criticals, warnings, notices),
		AuditedAt: e.clock.Now(),
	}, nil
}

func (e *Engine) checkPage(page orchestrator.Page, titleOwners map[string]string) []orchestrator.AuditIssue {
	var issues []orchestrator.AuditIssue

	add := func(kind string, severity orchestrator.IssueSeverity, detail string) {
		issues = append(issues, orchestrator.AuditIssue{
			Kind:     kind,
			Severity: severity,
			URL:      page.URL,
			Detail:   detail,
		})
	}

	if page.StatusCode >= 400 {
		add(KindBrokenPage, orchestrator.SeverityCritical,
			fmt.Sprintf("page returned HTTP %d", page.StatusCode))
		// The remaining checks assume a served page.
		return issues
	}

	if page.Title == "" {
		add(KindMissingTitle, orchestrator.SeverityCritical, "page has no <title>")
	} else {
		if len(page.Title) > e.cfg.MaxTitleLen {
			add(KindTitleTooLong, orchestrator.SeverityWarning,
				fmt.Sprintf("title is %d chars, max %d", len(page.Title), e.cfg.MaxTitleLen))
		}
		if owner, dup := titleOwners[page.Title]; dup {
			add(KindDuplicateTitle, orchestrator.SeverityNotice,
				fmt.Sprintf("title duplicates %s", owner))
		} else {
			titleOwners[page.Title] = page.URL
		}
	}

	if page.MetaDescription == "" {
		add(KindMissingMetaDesc, orchestrator.SeverityWarning, "page has no meta description")
	}
	if page.H1 == "" {
		add(KindMissingH1, orchestrator.SeverityWarning, "page has no <h1>")
	}
	if page.WordCount < e.cfg.MinWordCount {
		add(KindThinContent, orchestrator.SeverityWarning,
			fmt.Sprintf("only %d words, want at least %d", page.WordCount, e.cfg.MinWordCount))
	}

	return issues
}
