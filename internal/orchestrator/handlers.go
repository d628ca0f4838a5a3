package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// ErrPublisherNotConfigured is raised synchronously when a publish task runs
// without a connected CMS. It is user-actionable, not transient.
var ErrPublisherNotConfigured = errors.New("no publisher configured: connect a CMS integration before publishing")

// statePatch mutates the site state. Handlers build a patch from locally
// accumulated results and the orchestrator applies it under the state mutex
// only after every external call in the handler has succeeded, so a failed
// task leaves the state at its last-good values.
type statePatch func(*SiteState)

// handlerFunc executes one task against the collaborators. It returns an
// opaque result payload and an optional patch.
type handlerFunc func(ctx context.Context, task *Task) (any, statePatch, error)

// handlerSet binds task types to handlers. Handlers read state through
// snapshots, never through the live aggregate, and must tolerate
// re-invocation.
type handlerSet struct {
	cfg      Config
	collab   Collaborators
	clock    Clock
	logger   *zap.Logger
	snapshot func() SiteState
	// enqueueSuccessor lets a handler guarantee ordering the decision
	// engine's passive rules cannot express (discovery -> audit). The
	// callback applies the active-type dedup check.
	enqueueSuccessor func(def TaskDef)
}

func (h *handlerSet) forType(t TaskType) (handlerFunc, bool) {
	switch t {
	case TaskDiscovery:
		return h.discovery, true
	case TaskAudit:
		return h.audit, true
	case TaskFix:
		return h.fix, true
	case TaskResearch:
		return h.research, true
	case TaskAnalyzeCompetitors:
		return h.analyzeCompetitors, true
	case TaskPlanContent:
		return h.planContent, true
	case TaskGenerateContent:
		return h.generateContent, true
	case TaskOptimizeContent:
		return h.optimizeContent, true
	case TaskInternalLinking:
		return h.internalLinking, true
	case TaskPublish:
		return h.publish, true
	case TaskTrackRankings:
		return h.trackRankings, true
	case TaskReport:
		return h.report, true
	default:
		return nil, false
	}
}

func (h *handlerSet) discovery(ctx context.Context, _ *Task) (any, statePatch, error) {
	pages, err := h.collab.Crawler.Crawl(ctx, h.cfg.SiteURL)
	if err != nil {
		return nil, nil, fmt.Errorf("crawl %s: %w", h.cfg.SiteURL, err)
	}

	// Audit must follow discovery; the passive rules only re-audit on
	// staleness, so the successor is enqueued here.
	h.enqueueSuccessor(TaskDef{
		Type:            TaskAudit,
		Priority:        PriorityHigh,
		Title:           fmt.Sprintf("Audit %d discovered pages", len(pages)),
		EstimatedImpact: "high",
	})

	patch := func(s *SiteState) {
		s.Pages = mergePages(s.Pages, pages)
	}
	return map[string]any{"pages_found": len(pages)}, patch, nil
}

func (h *handlerSet) audit(ctx context.Context, _ *Task) (any, statePatch, error) {
	snap := h.snapshot()
	if len(snap.Pages) == 0 {
		return nil, nil, errors.New("no pages discovered yet")
	}
	result, err := h.collab.Audit.Audit(ctx, snap.Pages)
	if err != nil {
		return nil, nil, fmt.Errorf("audit: %w", err)
	}
	if result.AuditedAt.IsZero() {
		result.AuditedAt = h.clock.Now()
	}
	patch := func(s *SiteState) {
		s.Audit = &result
		s.Score = result.Score
		s.LastAuditAt = result.AuditedAt
	}
	return map[string]any{"score": result.Score, "issues": len(result.Issues)}, patch, nil
}

func (h *handlerSet) fix(ctx context.Context, _ *Task) (any, statePatch, error) {
	snap := h.snapshot()
	if snap.Audit == nil {
		return nil, nil, errors.New("no audit result to fix against")
	}
	fixes, err := h.collab.AutoFix.GenerateFixes(ctx, *snap.Audit, snap.Pages)
	if err != nil {
		return nil, nil, fmt.Errorf("generate fixes: %w", err)
	}
	applied := 0
	resolved := make(map[string]bool)
	for _, fix := range fixes {
		if !fix.Automated {
			continue
		}
		applied++
		resolved[fix.IssueKind+"|"+fix.URL] = true
	}
	patch := func(s *SiteState) {
		s.IssuesFixed += applied
		if s.Audit == nil {
			return
		}
		for i, issue := range s.Audit.Issues {
			if resolved[issue.Kind+"|"+issue.URL] {
				s.Audit.Issues[i].Resolved = true
			}
		}
	}
	return map[string]any{"fixes_proposed": len(fixes), "fixes_applied": applied}, patch, nil
}

func (h *handlerSet) research(ctx context.Context, _ *Task) (any, statePatch, error) {
	seeds := h.cfg.TargetKeywords
	if len(seeds) == 0 {
		seeds = seedsFromPages(h.snapshot().Pages)
	}
	if len(seeds) == 0 {
		return nil, nil, errors.New("no seed keywords available: configure target keywords or run discovery first")
	}
	opportunities, err := h.collab.Keywords.Suggest(ctx, seeds, "", 20)
	if err != nil {
		return nil, nil, fmt.Errorf("keyword suggest: %w", err)
	}
	patch := func(s *SiteState) {
		s.KeywordOpportunities = mergeOpportunities(s.KeywordOpportunities, opportunities)
	}
	return map[string]any{"opportunities": len(opportunities)}, patch, nil
}

// analyzeCompetitors keeps partial results across individual SERP failures;
// it only fails when every lookup failed.
func (h *handlerSet) analyzeCompetitors(ctx context.Context, _ *Task) (any, statePatch, error) {
	snap := h.snapshot()
	queries := h.cfg.TargetKeywords
	for _, opp := range snap.KeywordOpportunities {
		queries = append(queries, opp.Keyword)
	}
	if len(queries) > 10 {
		queries = queries[:10]
	}
	if len(queries) == 0 {
		return nil, nil, errors.New("no keywords to analyze competitors for")
	}

	own := hostOf(h.cfg.SiteURL)
	seen := make(map[string]*Competitor)
	failures := 0
	var lastErr error
	for _, query := range queries {
		entries, err := h.collab.Serp.Search(ctx, query, 10)
		if err != nil {
			failures++
			lastErr = err
			h.logger.Warn("serp lookup failed", zap.String("query", query), zap.Error(err))
			continue
		}
		for _, entry := range entries {
			domain := hostOf(entry.Link)
			if domain == "" || domain == own {
				continue
			}
			c := seen[domain]
			if c == nil {
				c = &Competitor{Domain: domain, BestPosition: entry.Position}
				seen[domain] = c
			}
			c.SharedSerps++
			if entry.Position < c.BestPosition {
				c.BestPosition = entry.Position
			}
		}
	}
	if failures == len(queries) {
		return nil, nil, fmt.Errorf("all %d serp lookups failed: %w", failures, lastErr)
	}

	competitors := make([]Competitor, 0, len(seen))
	for _, c := range seen {
		competitors = append(competitors, *c)
	}
	patch := func(s *SiteState) {
		s.Competitors = mergeCompetitors(s.Competitors, competitors)
	}
	return map[string]any{"competitors": len(competitors), "failed_lookups": failures}, patch, nil
}

func (h *handlerSet) planContent(_ context.Context, _ *Task) (any, statePatch, error) {
	snap := h.snapshot()
	if len(snap.KeywordOpportunities) == 0 {
		return nil, nil, errors.New("no keyword opportunities to plan from")
	}
	var items []ContentPlanItem
	for _, opp := range snap.KeywordOpportunities {
		if len(items) >= 5 {
			break
		}
		if snap.planIndex(opp.Keyword) >= 0 {
			continue
		}
		priority := PriorityMedium
		if opp.Volume >= 1000 {
			priority = PriorityHigh
		}
		items = append(items, ContentPlanItem{
			Keyword:  opp.Keyword,
			Title:    planTitle(opp.Keyword),
			Status:   PlanIdea,
			Priority: priority,
		})
	}
	if len(items) == 0 {
		return map[string]any{"planned": 0}, nil, nil
	}
	patch := func(s *SiteState) {
		for _, item := range items {
			if s.planIndex(item.Keyword) < 0 {
				s.ContentPlan = append(s.ContentPlan, item)
			}
		}
	}
	return map[string]any{"planned": len(items)}, patch, nil
}

func (h *handlerSet) generateContent(ctx context.Context, task *Task) (any, statePatch, error) {
	snap := h.snapshot()
	keyword := inputKeyword(task.Input)
	if keyword == "" {
		i := snap.earliestPlanItem(PlanIdea)
		if i < 0 {
			i = snap.earliestPlanItem(PlanWriting)
		}
		if i < 0 {
			return nil, nil, errors.New("no plan item awaiting content")
		}
		keyword = snap.ContentPlan[i].Keyword
	}
	if snap.planIndex(keyword) < 0 {
		return nil, nil, fmt.Errorf("keyword %q is not in the content plan", keyword)
	}

	serp, err := h.collab.Serp.Search(ctx, keyword, 10)
	if err != nil {
		return nil, nil, fmt.Errorf("serp for outline: %w", err)
	}
	const wordTarget = 1200
	outline, err := h.collab.Content.Outline(ctx, keyword, serp, wordTarget)
	if err != nil {
		return nil, nil, fmt.Errorf("outline: %w", err)
	}
	content, err := h.collab.Content.Article(ctx, keyword, outline, ArticleOptions{
		Tone:       h.cfg.Tone,
		Audience:   h.cfg.Audience,
		WordTarget: wordTarget,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("article: %w", err)
	}
	if content.GeneratedAt.IsZero() {
		content.GeneratedAt = h.clock.Now()
	}
	if h.collab.Artifacts != nil {
		path := fmt.Sprintf("%s/%s/%s.html", h.cfg.OrgID, h.cfg.SiteID, slugify(keyword))
		uri, err := h.collab.Artifacts.Put(ctx, path, "text/html; charset=utf-8", []byte(content.Body))
		if err != nil {
			return nil, nil, fmt.Errorf("archive article: %w", err)
		}
		content.ArtifactURI = uri
	}

	patch := func(s *SiteState) {
		i := s.planIndex(keyword)
		if i < 0 {
			return
		}
		item := &s.ContentPlan[i]
		if item.Status == PlanIdea || item.Status == PlanWriting {
			item.Status = PlanDraft
		}
		item.Content = &content
	}
	return map[string]any{"keyword": keyword, "word_count": content.WordCount}, patch, nil
}

func (h *handlerSet) optimizeContent(ctx context.Context, task *Task) (any, statePatch, error) {
	snap := h.snapshot()
	keyword := inputKeyword(task.Input)
	if keyword == "" {
		return nil, nil, errors.New("optimize_content requires a keyword input")
	}
	i := snap.planIndex(keyword)
	if i < 0 || snap.ContentPlan[i].Content == nil {
		return nil, nil, fmt.Errorf("no generated content for keyword %q", keyword)
	}
	existing := snap.ContentPlan[i].Content
	refreshed, err := h.collab.Content.Article(ctx, keyword, existing.Outline, ArticleOptions{
		Tone:       h.cfg.Tone,
		Audience:   h.cfg.Audience,
		WordTarget: existing.WordCount,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("regenerate article: %w", err)
	}
	if refreshed.GeneratedAt.IsZero() {
		refreshed.GeneratedAt = h.clock.Now()
	}
	refreshed.ArtifactURI = existing.ArtifactURI
	patch := func(s *SiteState) {
		j := s.planIndex(keyword)
		if j >= 0 && s.ContentPlan[j].Content != nil {
			s.ContentPlan[j].Content = &refreshed
		}
	}
	return map[string]any{"keyword": keyword, "word_count": refreshed.WordCount}, patch, nil
}

// internalLinking is a pure computation over the page inventory; it proposes
// links from existing pages into planned content but changes no state.
func (h *handlerSet) internalLinking(_ context.Context, _ *Task) (any, statePatch, error) {
	snap := h.snapshot()
	type suggestion struct {
		FromURL string `json:"from_url"`
		Keyword string `json:"keyword"`
	}
	var suggestions []suggestion
	for _, item := range snap.ContentPlan {
		if item.Status != PlanPublished && item.Status != PlanDraft {
			continue
		}
		for _, page := range snap.Pages {
			haystack := strings.ToLower(page.Title + " " + page.H1)
			if strings.Contains(haystack, strings.ToLower(item.Keyword)) {
				suggestions = append(suggestions, suggestion{FromURL: page.URL, Keyword: item.Keyword})
			}
		}
	}
	return map[string]any{"suggestions": suggestions}, nil, nil
}

func (h *handlerSet) publish(ctx context.Context, task *Task) (any, statePatch, error) {
	if h.collab.Publisher == nil {
		return nil, nil, ErrPublisherNotConfigured
	}
	snap := h.snapshot()
	keyword := inputKeyword(task.Input)
	var idx int
	if keyword == "" {
		idx = snap.earliestPlanItem(PlanDraft)
		if idx < 0 {
			return nil, nil, errors.New("no draft ready to publish")
		}
		keyword = snap.ContentPlan[idx].Keyword
	} else {
		idx = snap.planIndex(keyword)
		if idx < 0 {
			return nil, nil, fmt.Errorf("keyword %q is not in the content plan", keyword)
		}
	}
	item := snap.ContentPlan[idx]
	if item.Content == nil {
		return nil, nil, fmt.Errorf("plan item %q has no generated content", keyword)
	}

	result, err := h.collab.Publisher.Publish(ctx, PublishRequest{
		Title:           item.Title,
		Content:         item.Content.Body,
		SEOTitle:        item.Content.SEOTitle,
		MetaDescription: item.Content.MetaDesc,
		Status:          "publish",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("publish %q: %w", item.Title, err)
	}
	if !result.Success {
		return nil, nil, fmt.Errorf("publisher rejected %q", item.Title)
	}

	now := h.clock.Now()
	patch := func(s *SiteState) {
		if i := s.planIndex(keyword); i >= 0 {
			s.ContentPlan[i].Status = PlanPublished
		}
		s.PublishedContent = append(s.PublishedContent, PublishedContent{
			Keyword:     keyword,
			Title:       item.Title,
			URL:         result.URL,
			PublishedAt: now,
		})
		for _, tracked := range s.TrackedKeywords {
			if tracked.Keyword == keyword {
				return
			}
		}
		s.TrackedKeywords = append(s.TrackedKeywords, TrackedKeyword{
			Keyword: keyword,
			URL:     result.URL,
		})
	}
	return map[string]any{"url": result.URL}, patch, nil
}

func (h *handlerSet) trackRankings(ctx context.Context, _ *Task) (any, statePatch, error) {
	snap := h.snapshot()
	if len(snap.TrackedKeywords) == 0 {
		return nil, nil, errors.New("no tracked keywords")
	}
	own := hostOf(h.cfg.SiteURL)
	positions := make(map[string]int, len(snap.TrackedKeywords))
	for _, tracked := range snap.TrackedKeywords {
		entries, err := h.collab.Serp.Search(ctx, tracked.Keyword, 20)
		if err != nil {
			return nil, nil, fmt.Errorf("rank check %q: %w", tracked.Keyword, err)
		}
		position := 0
		for _, entry := range entries {
			if hostOf(entry.Link) == own {
				position = entry.Position
				break
			}
		}
		positions[tracked.Keyword] = position
	}
	now := h.clock.Now()
	patch := func(s *SiteState) {
		for i := range s.TrackedKeywords {
			tracked := &s.TrackedKeywords[i]
			position, ok := positions[tracked.Keyword]
			if !ok {
				continue
			}
			tracked.PreviousPosition = tracked.Position
			tracked.Position = position
			tracked.LastCheckedAt = now
		}
		s.LastRankCheckAt = now
	}
	return map[string]any{"keywords_checked": len(positions)}, patch, nil
}

func (h *handlerSet) report(_ context.Context, _ *Task) (any, statePatch, error) {
	snap := h.snapshot()
	return map[string]any{
		"score":             snap.Score,
		"pages":             len(snap.Pages),
		"issues_fixed":      snap.IssuesFixed,
		"tracked_keywords":  len(snap.TrackedKeywords),
		"content_planned":   len(snap.ContentPlan),
		"content_published": len(snap.PublishedContent),
		"competitors":       len(snap.Competitors),
	}, nil, nil
}

func mergePages(existing, incoming []Page) []Page {
	byURL := make(map[string]int, len(existing))
	out := append([]Page(nil), existing...)
	for i, page := range out {
		byURL[page.URL] = i
	}
	for _, page := range incoming {
		if i, ok := byURL[page.URL]; ok {
			out[i] = page
			continue
		}
		byURL[page.URL] = len(out)
		out = append(out, page)
	}
	return out
}

func mergeOpportunities(existing, incoming []KeywordOpportunity) []KeywordOpportunity {
	seen := make(map[string]bool, len(existing))
	out := append([]KeywordOpportunity(nil), existing...)
	for _, opp := range out {
		seen[opp.Keyword] = true
	}
	for _, opp := range incoming {
		if !seen[opp.Keyword] {
			seen[opp.Keyword] = true
			out = append(out, opp)
		}
	}
	return out
}

func mergeCompetitors(existing, incoming []Competitor) []Competitor {
	byDomain := make(map[string]int, len(existing))
	out := append([]Competitor(nil), existing...)
	for i, c := range out {
		byDomain[c.Domain] = i
	}
	for _, c := range incoming {
		if i, ok := byDomain[c.Domain]; ok {
			out[i] = c
			continue
		}
		byDomain[c.Domain] = len(out)
		out = append(out, c)
	}
	return out
}

func seedsFromPages(pages []Page) []string {
	var seeds []string
	for _, page := range pages {
		title := strings.TrimSpace(page.Title)
		if title != "" {
			seeds = append(seeds, title)
		}
		if len(seeds) >= 3 {
			break
		}
	}
	return seeds
}

func inputKeyword(input any) string {
	switch v := input.(type) {
	case map[string]any:
		if kw, ok := v["keyword"].(string); ok {
			return kw
		}
	case map[string]string:
		return v["keyword"]
	}
	return ""
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func planTitle(keyword string) string {
	runes := []rune(strings.TrimSpace(keyword))
	if len(runes) == 0 {
		return "Untitled"
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes) + ": a practical guide"
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "untitled"
	}
	return out
}
