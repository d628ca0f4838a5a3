package orchestrator

import "time"

// SiteState is the mutable aggregate of everything known about one site. It
// is owned by exactly one orchestrator instance; handlers never mutate it
// directly but return patches the orchestrator applies under its state
// mutex.
type SiteState struct {
	Pages                []Page               `json:"pages"`
	Audit                *AuditResult         `json:"audit,omitempty"`
	Score                int                  `json:"score"`
	IssuesFixed          int                  `json:"issues_fixed"`
	TrackedKeywords      []TrackedKeyword     `json:"tracked_keywords"`
	KeywordOpportunities []KeywordOpportunity `json:"keyword_opportunities"`
	ContentPlan          []ContentPlanItem    `json:"content_plan"`
	PublishedContent     []PublishedContent   `json:"published_content"`
	Competitors          []Competitor         `json:"competitors"`
	PublisherConnected   bool                 `json:"publisher_connected"`
	LastAuditAt          time.Time            `json:"last_audit_at"`
	LastRankCheckAt      time.Time            `json:"last_rank_check_at"`
}

// Clone returns a deep copy safe to hand to callers.
func (s *SiteState) Clone() SiteState {
	cp := SiteState{
		Score:              s.Score,
		IssuesFixed:        s.IssuesFixed,
		PublisherConnected: s.PublisherConnected,
		LastAuditAt:        s.LastAuditAt,
		LastRankCheckAt:    s.LastRankCheckAt,
	}
	cp.Pages = append([]Page(nil), s.Pages...)
	cp.TrackedKeywords = append([]TrackedKeyword(nil), s.TrackedKeywords...)
	cp.KeywordOpportunities = append([]KeywordOpportunity(nil), s.KeywordOpportunities...)
	cp.PublishedContent = append([]PublishedContent(nil), s.PublishedContent...)
	cp.Competitors = append([]Competitor(nil), s.Competitors...)
	if s.Audit != nil {
		audit := *s.Audit
		audit.Issues = append([]AuditIssue(nil), s.Audit.Issues...)
		cp.Audit = &audit
	}
	if s.ContentPlan != nil {
		cp.ContentPlan = make([]ContentPlanItem, len(s.ContentPlan))
		for i, item := range s.ContentPlan {
			cp.ContentPlan[i] = item
			if item.Content != nil {
				content := *item.Content
				content.Outline = append([]string(nil), item.Content.Outline...)
				cp.ContentPlan[i].Content = &content
			}
		}
	}
	return cp
}

// planIndex returns the index of the plan item for keyword, or -1.
func (s *SiteState) planIndex(keyword string) int {
	for i, item := range s.ContentPlan {
		if item.Keyword == keyword {
			return i
		}
	}
	return -1
}

// earliestPlanItem returns the first plan item in the given status, or -1.
func (s *SiteState) earliestPlanItem(status ContentPlanStatus) int {
	for i, item := range s.ContentPlan {
		if item.Status == status {
			return i
		}
	}
	return -1
}
