package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	events  []Event
	batches int
	closed  bool
	gate    chan struct{} // when non-nil, Consume blocks until closed
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	s.batches++
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestHubFlushesOnMaxWait(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(HubConfig{MaxWait: 10 * time.Millisecond}, sink)
	defer func() { _ = hub.Close(context.Background()) }()

	hub.Emit(validEvent())
	require.Eventually(t, func() bool {
		return sink.count() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHubFlushesOnMaxBatch(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(HubConfig{MaxBatch: 2, MaxWait: time.Minute}, sink)
	defer func() { _ = hub.Close(context.Background()) }()

	hub.Emit(validEvent())
	hub.Emit(validEvent())
	require.Eventually(t, func() bool {
		return sink.count() == 2
	}, 2*time.Second, 5*time.Millisecond, "batch-size flush never happened")
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(HubConfig{MaxWait: 10 * time.Millisecond}, sink)

	hub.Emit(Event{Type: TypeTaskStarted}) // no scope, no timestamp, no task id
	hub.Emit(validEvent())

	require.Eventually(t, func() bool {
		return sink.count() == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 1, sink.count())
}

func TestHubCloseDrainsAndClosesSinks(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(HubConfig{MaxWait: time.Minute}, sink)

	for range 10 {
		hub.Emit(validEvent())
	}
	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 10, sink.count())
	require.True(t, sink.isClosed())

	// Emitting after close is a silent no-op.
	hub.Emit(validEvent())
	require.Equal(t, 10, sink.count())
}

func TestHubDropsUnderBackpressureWithoutBlocking(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	sink := &recordingSink{gate: gate}
	hub := NewHub(HubConfig{BufferSize: 1, MaxBatch: 1, MaxWait: time.Minute}, sink)

	// First event reaches the sink and blocks it; the second fills the
	// buffer; the third must be dropped, not block the emitter.
	done := make(chan struct{})
	go func() {
		hub.Emit(validEvent())
		// Give the run loop a chance to pick up the first event.
		time.Sleep(20 * time.Millisecond)
		hub.Emit(validEvent())
		hub.Emit(validEvent())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked under backpressure")
	}

	close(gate)
	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 2, sink.count())
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(validEvent())
	require.NoError(t, hub.Close(context.Background()))
}
