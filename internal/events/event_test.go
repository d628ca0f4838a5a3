package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validEvent() Event {
	return Event{
		Type:   TypeTaskCompleted,
		TS:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		OrgID:  "org-1",
		SiteID: "site-1",
		TaskID: "task-0001",
	}
}

func TestValidateAcceptsCompleteEvent(t *testing.T) {
	t.Parallel()

	require.NoError(t, validEvent().Validate())
}

func TestValidateRequiresScope(t *testing.T) {
	t.Parallel()

	evt := validEvent()
	evt.OrgID = ""
	require.Error(t, evt.Validate())

	evt = validEvent()
	evt.SiteID = ""
	require.Error(t, evt.Validate())
}

func TestValidateRequiresTimestamp(t *testing.T) {
	t.Parallel()

	evt := validEvent()
	evt.TS = time.Time{}
	require.Error(t, evt.Validate())
}

func TestValidateTaskEventsRequireTaskID(t *testing.T) {
	t.Parallel()

	for _, typ := range []Type{TypeTaskStarted, TypeTaskCompleted, TypeTaskFailed} {
		evt := validEvent()
		evt.Type = typ
		evt.TaskID = ""
		require.Error(t, evt.Validate(), "type %s", typ)
	}

	// Non-task events are valid without one.
	evt := validEvent()
	evt.Type = TypeDecisionMade
	evt.TaskID = ""
	require.NoError(t, evt.Validate())
}

func TestValidateRejectsUnknownType(t *testing.T) {
	t.Parallel()

	evt := validEvent()
	evt.Type = Type("bogus")
	require.Error(t, evt.Validate())
}

func TestValidateRejectsNegativeDuration(t *testing.T) {
	t.Parallel()

	evt := validEvent()
	evt.Dur = -time.Second
	require.Error(t, evt.Validate())
}
