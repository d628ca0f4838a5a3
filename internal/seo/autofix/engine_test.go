package autofix

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optiview/optiview/internal/orchestrator"
	"github.com/optiview/optiview/internal/seo/audit"
)

func TestGenerateFixesAppliesAutomatedKinds(t *testing.T) {
	t.Parallel()

	result := orchestrator.AuditResult{
		Issues: []orchestrator.AuditIssue{
			{Kind: audit.KindMissingMetaDesc, Severity: orchestrator.SeverityWarning, URL: "https://acme.test/a"},
			{Kind: audit.KindThinContent, Severity: orchestrator.SeverityWarning, URL: "https://acme.test/a"},
			{Kind: audit.KindBrokenPage, Severity: orchestrator.SeverityCritical, URL: "https://acme.test/gone"},
		},
	}
	pages := []orchestrator.Page{{URL: "https://acme.test/a", H1: "Heading", Title: "Title"}}

	fixes, err := New().GenerateFixes(context.Background(), result, pages)
	require.NoError(t, err)
	require.Len(t, fixes, 3)

	byKind := make(map[string]orchestrator.Fix, len(fixes))
	for _, f := range fixes {
		byKind[f.IssueKind] = f
	}
	require.True(t, byKind[audit.KindMissingMetaDesc].Automated)
	require.True(t, byKind[audit.KindMissingMetaDesc].Applied)
	require.Contains(t, byKind[audit.KindMissingMetaDesc].Description, "Heading")

	require.False(t, byKind[audit.KindThinContent].Automated)
	require.False(t, byKind[audit.KindThinContent].Applied)
	require.False(t, byKind[audit.KindBrokenPage].Applied)
}

func TestGenerateFixesSkipsResolvedIssues(t *testing.T) {
	t.Parallel()

	result := orchestrator.AuditResult{
		Issues: []orchestrator.AuditIssue{
			{Kind: audit.KindMissingH1, URL: "https://acme.test/a", Resolved: true},
			{Kind: audit.KindMissingH1, URL: "https://acme.test/b"},
		},
	}

	fixes, err := New().GenerateFixes(context.Background(), result, nil)
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	require.Equal(t, "https://acme.test/b", fixes[0].URL)
}
