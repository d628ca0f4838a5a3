package orchestrator

import (
	"fmt"
	"time"
)

// Staleness thresholds bounding how often expensive external calls recur.
const (
	rankCheckStaleAfter = 24 * time.Hour
	auditStaleAfter     = 7 * 24 * time.Hour

	// minKeywordOpportunities triggers research while the opportunity pool
	// is thin.
	minKeywordOpportunities = 5
)

// rule is one entry of the decision cascade: a precondition over the site
// state plus a task builder. Rules are evaluated in fixed order and every
// satisfied rule contributes at most one proposal per cycle.
type rule struct {
	name  string
	when  func(cfg Config, s *SiteState, now time.Time) bool
	build func(cfg Config, s *SiteState) TaskDef
}

// decisionEngine proposes new tasks from the current site state. The rule
// table is fixed so every decision is auditable and each rule independently
// unit-testable.
type decisionEngine struct {
	rules []rule
}

func newDecisionEngine() *decisionEngine {
	return &decisionEngine{rules: defaultRules()}
}

// Proposal pairs a proposed task with the rule that produced it.
type Proposal struct {
	Rule string
	Def  TaskDef
}

// Propose evaluates the full cascade against the state snapshot and returns
// every satisfied rule's proposal, skipping types already active (queued or
// running). All satisfied rules fire, not just the top-priority one;
// dispatch order is decided later by queue priority.
func (e *decisionEngine) Propose(cfg Config, s *SiteState, active map[TaskType]bool, now time.Time) []Proposal {
	var out []Proposal
	proposed := make(map[TaskType]bool)
	for _, r := range e.rules {
		if !r.when(cfg, s, now) {
			continue
		}
		def := r.build(cfg, s)
		if active[def.Type] || proposed[def.Type] {
			continue
		}
		proposed[def.Type] = true
		out = append(out, Proposal{Rule: r.name, Def: def})
	}
	return out
}

func defaultRules() []rule {
	return []rule{
		{
			name: "fix_critical_issues",
			when: func(cfg Config, s *SiteState, _ time.Time) bool {
				return cfg.AutoFix && s.Audit.CriticalOpen() > 0
			},
			build: func(_ Config, s *SiteState) TaskDef {
				open := s.Audit.CriticalOpen()
				return TaskDef{
					Type:            TaskFix,
					Priority:        PriorityCritical,
					Title:           fmt.Sprintf("Fix %d critical issues", open),
					Description:     "Apply automated fixes for unresolved critical audit issues",
					EstimatedImpact: "high",
				}
			},
		},
		{
			name: "plan_content",
			when: func(_ Config, s *SiteState, _ time.Time) bool {
				return len(s.ContentPlan) == 0 && len(s.KeywordOpportunities) > 0
			},
			build: func(_ Config, s *SiteState) TaskDef {
				return TaskDef{
					Type:            TaskPlanContent,
					Priority:        PriorityHigh,
					Title:           "Build content plan",
					Description:     fmt.Sprintf("Plan articles for %d keyword opportunities", len(s.KeywordOpportunities)),
					EstimatedImpact: "high",
				}
			},
		},
		{
			name: "generate_content",
			when: func(_ Config, s *SiteState, _ time.Time) bool {
				return s.earliestPlanItem(PlanIdea) >= 0
			},
			build: func(_ Config, s *SiteState) TaskDef {
				item := s.ContentPlan[s.earliestPlanItem(PlanIdea)]
				return TaskDef{
					Type:            TaskGenerateContent,
					Priority:        PriorityHigh,
					Title:           fmt.Sprintf("Write article for %q", item.Keyword),
					EstimatedImpact: "medium",
					Input:           map[string]any{"keyword": item.Keyword},
				}
			},
		},
		{
			name: "publish_draft",
			when: func(cfg Config, s *SiteState, _ time.Time) bool {
				if !cfg.AutoPublish || !s.PublisherConnected {
					return false
				}
				i := s.earliestPlanItem(PlanDraft)
				return i >= 0 && s.ContentPlan[i].Content != nil
			},
			build: func(_ Config, s *SiteState) TaskDef {
				item := s.ContentPlan[s.earliestPlanItem(PlanDraft)]
				return TaskDef{
					Type:            TaskPublish,
					Priority:        PriorityMedium,
					Title:           fmt.Sprintf("Publish %q", item.Title),
					EstimatedImpact: "medium",
					Input:           map[string]any{"keyword": item.Keyword},
				}
			},
		},
		{
			name: "track_rankings",
			when: func(_ Config, s *SiteState, now time.Time) bool {
				return len(s.TrackedKeywords) > 0 && now.Sub(s.LastRankCheckAt) > rankCheckStaleAfter
			},
			build: func(_ Config, s *SiteState) TaskDef {
				return TaskDef{
					Type:            TaskTrackRankings,
					Priority:        PriorityMedium,
					Title:           fmt.Sprintf("Check rankings for %d keywords", len(s.TrackedKeywords)),
					EstimatedImpact: "low",
				}
			},
		},
		{
			name: "research_keywords",
			when: func(_ Config, s *SiteState, _ time.Time) bool {
				return len(s.KeywordOpportunities) < minKeywordOpportunities
			},
			build: func(_ Config, _ *SiteState) TaskDef {
				return TaskDef{
					Type:            TaskResearch,
					Priority:        PriorityMedium,
					Title:           "Research keyword opportunities",
					EstimatedImpact: "medium",
				}
			},
		},
		{
			name: "analyze_competitors",
			when: func(_ Config, s *SiteState, _ time.Time) bool {
				return len(s.Competitors) == 0
			},
			build: func(_ Config, _ *SiteState) TaskDef {
				return TaskDef{
					Type:            TaskAnalyzeCompetitors,
					Priority:        PriorityLow,
					Title:           "Analyze competitors",
					EstimatedImpact: "low",
				}
			},
		},
		{
			name: "audit_stale",
			when: func(_ Config, s *SiteState, now time.Time) bool {
				return len(s.Pages) > 0 && now.Sub(s.LastAuditAt) > auditStaleAfter
			},
			build: func(_ Config, s *SiteState) TaskDef {
				return TaskDef{
					Type:            TaskAudit,
					Priority:        PriorityLow,
					Title:           fmt.Sprintf("Re-audit %d pages", len(s.Pages)),
					EstimatedImpact: "medium",
				}
			},
		},
	}
}
