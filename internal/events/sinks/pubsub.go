package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/optiview/optiview/internal/events"
)

// PubSubSink publishes events as JSON messages for downstream consumers
// (dashboard notifications, analytics ingestion).
type PubSubSink struct {
	publisher *pubsub.Publisher
}

// NewPubSubSink wraps a topic publisher.
func NewPubSubSink(publisher *pubsub.Publisher) (*PubSubSink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("pubsub publisher is required")
	}
	return &PubSubSink{publisher: publisher}, nil
}

// Consume publishes each event and waits for server acknowledgement so the
// hub's sink timeout bounds the whole batch.
func (s *PubSubSink) Consume(ctx context.Context, batch []events.Event) error {
	for _, evt := range batch {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		msg := &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"event_type": string(evt.Type),
				"org_id":     evt.OrgID,
				"site_id":    evt.SiteID,
			},
		}
		result := s.publisher.Publish(ctx, msg)
		if _, err := result.Get(ctx); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
	}
	return nil
}

// Close stops the publisher's background goroutines.
func (s *PubSubSink) Close(context.Context) error {
	if s.publisher != nil {
		s.publisher.Stop()
	}
	return nil
}
