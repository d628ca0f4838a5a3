package sinks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/optiview/optiview/internal/events"
)

func taskEvent(n int) events.Event {
	return events.Event{
		Type:   events.TypeTaskCompleted,
		TS:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		OrgID:  "org-1",
		SiteID: "site-1",
		TaskID: fmt.Sprintf("task-%04d", n),
	}
}

func TestMemorySinkKeepsRecentEvents(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink(10)
	batch := []events.Event{taskEvent(1), taskEvent(2), taskEvent(3)}
	require.NoError(t, sink.Consume(context.Background(), batch))

	recent := sink.Recent(0)
	require.Len(t, recent, 3)
	require.Equal(t, "task-0001", recent[0].TaskID)
	require.Equal(t, "task-0003", recent[2].TaskID)
}

func TestMemorySinkOverwritesOldestWhenFull(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink(2)
	for n := 1; n <= 3; n++ {
		require.NoError(t, sink.Consume(context.Background(), []events.Event{taskEvent(n)}))
	}

	recent := sink.Recent(0)
	require.Len(t, recent, 2)
	require.Equal(t, "task-0002", recent[0].TaskID)
	require.Equal(t, "task-0003", recent[1].TaskID)
}

func TestMemorySinkRecentLimit(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink(10)
	for n := 1; n <= 5; n++ {
		require.NoError(t, sink.Consume(context.Background(), []events.Event{taskEvent(n)}))
	}

	recent := sink.Recent(2)
	require.Len(t, recent, 2)
	// The newest events win when trimming.
	require.Equal(t, "task-0004", recent[0].TaskID)
	require.Equal(t, "task-0005", recent[1].TaskID)
}

func TestMemorySinkEmpty(t *testing.T) {
	t.Parallel()

	require.Empty(t, NewMemorySink(4).Recent(0))
}
