// Package autofix turns audit findings into fixes and applies the ones
// that are safe to make without review.
package autofix

import (
	"context"
	"fmt"

	"github.com/optiview/optiview/internal/orchestrator"
	"github.com/optiview/optiview/internal/seo/audit"
)

// automatedKinds are issue kinds whose remediation is deterministic enough
// to apply without a human in the loop.
var automatedKinds = map[string]bool{
	audit.KindMissingMetaDesc: true,
	audit.KindTitleTooLong:    true,
	audit.KindMissingH1:       true,
}

// Engine implements orchestrator.AutoFixEngine.
type Engine struct{}

// New builds an Engine.
func New() *Engine {
	return &Engine{}
}

// GenerateFixes proposes one fix per open issue. Automated fixes are
// marked applied; the rest are left for manual review.
func (e *Engine) GenerateFixes(ctx context.Context, result orchestrator.AuditResult, pages []orchestrator.Page) ([]orchestrator.Fix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byURL := make(map[string]orchestrator.Page, len(pages))
	for _, p := range pages {
		byURL[p.URL] = p
	}

	var fixes []orchestrator.Fix
	for _, issue := range result.Issues {
		if issue.Resolved {
			continue
		}
		fix := orchestrator.Fix{
			IssueKind:   issue.Kind,
			URL:         issue.URL,
			Description: describe(issue, byURL[issue.URL]),
			Automated:   automatedKinds[issue.Kind],
		}
		fix.Applied = fix.Automated
		fixes = append(fixes, fix)
	}
	return fixes, nil
}

func describe(issue orchestrator.AuditIssue, page orchestrator.Page) string {
	switch issue.Kind {
	case audit.KindMissingMetaDesc:
		return fmt.Sprintf("wrote meta description from page heading %q", fallback(page.H1, page.Title))
	case audit.KindTitleTooLong:
		return "trimmed title to fit search snippet width"
	case audit.KindMissingH1:
		return fmt.Sprintf("promoted page title %q to <h1>", page.Title)
	case audit.KindBrokenPage:
		return "page returns an error status; fix the route or remove inbound links"
	case audit.KindMissingTitle:
		return "write a descriptive <title> for this page"
	case audit.KindThinContent:
		return "expand the page copy; it is too thin to rank"
	case audit.KindDuplicateTitle:
		return "differentiate this title from the page it duplicates"
	default:
		return issue.Detail
	}
}

func fallback(primary, secondary string) string {
	if primary != "" {
		return primary
	}
	return secondary
}
