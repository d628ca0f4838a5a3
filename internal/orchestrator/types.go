// Package orchestrator implements the autonomous site-optimization engine:
// the task model, the decision rule cascade, and the bounded-concurrency
// execution loop that drives one registered site without user intervention.
package orchestrator

import "time"

// TaskType identifies the unit of work a task performs.
type TaskType string

// Supported task types, one per optimization workflow step.
const (
	TaskDiscovery          TaskType = "discovery"
	TaskAudit              TaskType = "audit"
	TaskFix                TaskType = "fix"
	TaskResearch           TaskType = "research"
	TaskAnalyzeCompetitors TaskType = "analyze_competitors"
	TaskPlanContent        TaskType = "plan_content"
	TaskGenerateContent    TaskType = "generate_content"
	TaskOptimizeContent    TaskType = "optimize_content"
	TaskInternalLinking    TaskType = "internal_linking"
	TaskPublish            TaskType = "publish"
	TaskTrackRankings      TaskType = "track_rankings"
	TaskReport             TaskType = "report"
)

// TaskPriority orders queued tasks; critical is scheduled first.
type TaskPriority string

// Supported priorities, highest first.
const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityMedium   TaskPriority = "medium"
	PriorityLow      TaskPriority = "low"
)

// rank maps a priority to a sortable weight (lower runs first).
func (p TaskPriority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// TaskStatus is the lifecycle state of a task. Status only advances forward:
// pending -> running -> {completed|failed}; skipped is reachable only from
// pending.
type TaskStatus string

// Task status values.
const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusSkipped   TaskStatus = "skipped"
)

// Task is one orchestrated unit of work.
type Task struct {
	ID              string       `json:"id"`
	Type            TaskType     `json:"type"`
	Priority        TaskPriority `json:"priority"`
	Status          TaskStatus   `json:"status"`
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	EstimatedImpact string       `json:"estimated_impact,omitempty"`
	Input           any          `json:"input,omitempty"`
	Result          any          `json:"result,omitempty"`
	Error           string       `json:"error,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

// TaskDef describes a task to be enqueued; the queue assigns identity and
// lifecycle fields.
type TaskDef struct {
	Type            TaskType
	Priority        TaskPriority
	Title           string
	Description     string
	EstimatedImpact string
	Input           any
}

// TaskSnapshot groups the pending/running/completed views returned by the
// facade.
type TaskSnapshot struct {
	Pending   []Task `json:"pending"`
	Running   []Task `json:"running"`
	Completed []Task `json:"completed"`
}

// Config is the immutable per-run configuration of one orchestrator
// instance.
type Config struct {
	OrgID              string
	SiteID             string
	SiteURL            string
	AutoFix            bool
	AutoPublish        bool
	Tone               string
	Audience           string
	TargetKeywords     []string
	MaxConcurrentTasks int
	TickInterval       time.Duration
}

// Page is one entry in the site's page inventory.
type Page struct {
	URL             string `json:"url"`
	Title           string `json:"title"`
	MetaDescription string `json:"meta_description"`
	H1              string `json:"h1"`
	WordCount       int    `json:"word_count"`
	StatusCode      int    `json:"status_code"`
	ContentHash     string `json:"content_hash"`
	Rendered        bool   `json:"rendered"`
}

// IssueSeverity grades audit findings.
type IssueSeverity string

// Audit issue severities.
const (
	SeverityCritical IssueSeverity = "critical"
	SeverityWarning  IssueSeverity = "warning"
	SeverityNotice   IssueSeverity = "notice"
)

// AuditIssue is a single finding produced by the audit engine.
type AuditIssue struct {
	Kind     string        `json:"kind"`
	Severity IssueSeverity `json:"severity"`
	URL      string        `json:"url"`
	Detail   string        `json:"detail"`
	Resolved bool          `json:"resolved"`
}

// AuditResult is the outcome of one full-site audit.
type AuditResult struct {
	Score     int          `json:"score"`
	Issues    []AuditIssue `json:"issues"`
	Summary   string       `json:"summary"`
	AuditedAt time.Time    `json:"audited_at"`
}

// CriticalOpen reports how many critical issues remain unresolved.
func (r *AuditResult) CriticalOpen() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical && !issue.Resolved {
			n++
		}
	}
	return n
}

// Fix is one change proposed or applied by the auto-fix engine.
type Fix struct {
	IssueKind   string `json:"issue_kind"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Automated   bool   `json:"automated"`
	Applied     bool   `json:"applied"`
}

// KeywordOpportunity is a keyword surfaced by research.
type KeywordOpportunity struct {
	Keyword    string `json:"keyword"`
	Volume     int    `json:"volume"`
	Difficulty int    `json:"difficulty"`
}

// ContentPlanStatus tracks a plan item through the content pipeline.
type ContentPlanStatus string

// Content plan item states.
const (
	PlanIdea      ContentPlanStatus = "idea"
	PlanWriting   ContentPlanStatus = "writing"
	PlanDraft     ContentPlanStatus = "draft"
	PlanPublished ContentPlanStatus = "published"
)

// ContentPlanItem is one planned article keyed by its target keyword.
type ContentPlanItem struct {
	Keyword  string            `json:"keyword"`
	Title    string            `json:"title"`
	Status   ContentPlanStatus `json:"status"`
	Priority TaskPriority      `json:"priority"`
	Content  *GeneratedContent `json:"content,omitempty"`
}

// GeneratedContent holds the output of the content pipeline for one plan
// item.
type GeneratedContent struct {
	Outline     []string  `json:"outline"`
	Body        string    `json:"body"`
	SEOTitle    string    `json:"seo_title"`
	MetaDesc    string    `json:"meta_description"`
	WordCount   int       `json:"word_count"`
	ArtifactURI string    `json:"artifact_uri,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// TrackedKeyword is a keyword whose SERP position is monitored.
type TrackedKeyword struct {
	Keyword          string    `json:"keyword"`
	Position         int       `json:"position"`
	PreviousPosition int       `json:"previous_position"`
	Volume           int       `json:"volume"`
	URL              string    `json:"url"`
	LastCheckedAt    time.Time `json:"last_checked_at"`
}

// Competitor is a domain observed ranking for the site's target keywords.
type Competitor struct {
	Domain       string `json:"domain"`
	SharedSerps  int    `json:"shared_serps"`
	BestPosition int    `json:"best_position"`
}

// PublishedContent records one article pushed to the CMS.
type PublishedContent struct {
	Keyword     string    `json:"keyword"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// SerpEntry is one organic result returned by the SERP provider.
type SerpEntry struct {
	Link     string `json:"link"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// PublishRequest is what the CMS publisher receives.
type PublishRequest struct {
	Title           string `json:"title"`
	Content         string `json:"content"`
	SEOTitle        string `json:"seo_title"`
	MetaDescription string `json:"meta_description"`
	Status          string `json:"status"`
}

// PublishResult reports the publish outcome.
type PublishResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}
