package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/gatekeeper/core"
)

const SessionTopic = "gatekeeper.session"

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     SessionTopic,
	}
}

// WithTopic publishes to topic instead of SessionTopic.
func (p *WatermillPublisher) WithTopic(topic string) *WatermillPublisher {
	if topic != "" {
		p.topic = topic
	}
	return p
}

// PublishSessionEvent publishes a session lifecycle event
func (p *WatermillPublisher) PublishSessionEvent(ctx context.Context, event core.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
