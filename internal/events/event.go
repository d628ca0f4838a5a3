// Package events defines the orchestration event stream emitted by running
// engine instances and the hub that fans events out to sinks.
package events

import (
	"errors"
	"fmt"
	"time"
)

// Type denotes the kind of milestone represented by an Event.
type Type string

// Supported event types.
const (
	TypeTaskStarted   Type = "task_started"
	TypeTaskCompleted Type = "task_completed"
	TypeTaskFailed    Type = "task_failed"
	TypeStateUpdated  Type = "state_updated"
	TypeDecisionMade  Type = "decision_made"
)

// Event captures a single orchestration milestone. Events are emitted and
// fanned out to sinks; the engine core never stores or reads them back.
type Event struct {
	// Type denotes which milestone occurred.
	Type Type `json:"type"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// OrgID and SiteID scope the event to one orchestrator instance.
	OrgID  string `json:"org_id"`
	SiteID string `json:"site_id"`
	// TaskID and TaskType are set on task lifecycle events.
	TaskID   string `json:"task_id,omitempty"`
	TaskType string `json:"task_type,omitempty"`
	// Dur captures execution latency for completed and failed tasks.
	Dur time.Duration `json:"dur,omitempty"`
	// Note lets emitters attach low-volume context (e.g. error text or the
	// name of the rule that fired).
	Note string `json:"note,omitempty"`
	// Data carries small structured payloads for monitoring surfaces.
	Data map[string]any `json:"data,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.OrgID == "" || e.SiteID == "" {
		return errors.New("org and site ids are required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Type {
	case TypeStateUpdated, TypeDecisionMade:
	case TypeTaskStarted, TypeTaskCompleted, TypeTaskFailed:
		if e.TaskID == "" {
			return fmt.Errorf("%s requires a task id", e.Type)
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
