package sinks

import (
	"context"
	"sync"

	"github.com/optiview/optiview/internal/events"
)

const defaultRingCapacity = 256

// MemorySink keeps the most recent events in a ring buffer. The API serves
// them from GET /events for monitoring surfaces.
type MemorySink struct {
	mu       sync.Mutex
	buf      []events.Event
	next     int
	wrapped  bool
	capacity int
}

// NewMemorySink constructs a MemorySink holding up to capacity events.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &MemorySink{
		buf:      make([]events.Event, capacity),
		capacity: capacity,
	}
}

// Consume appends the batch, overwriting the oldest entries when full.
func (s *MemorySink) Consume(_ context.Context, batch []events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.buf[s.next] = evt
		s.next++
		if s.next == s.capacity {
			s.next = 0
			s.wrapped = true
		}
	}
	return nil
}

// Recent returns up to limit events, oldest first. A non-positive limit
// returns everything retained.
func (s *MemorySink) Recent(limit int) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	if s.wrapped {
		out = append(out, s.buf[s.next:]...)
		out = append(out, s.buf[:s.next]...)
	} else {
		out = append(out, s.buf[:s.next]...)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *MemorySink) Close(context.Context) error {
	return nil
}
