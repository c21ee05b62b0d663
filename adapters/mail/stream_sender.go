package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const MailTopic = "gatekeeper.mail"

// Job is the payload consumed by the mail delivery worker.
type Job struct {
	From     string         `json:"from,omitempty"`
	To       string         `json:"to"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data,omitempty"`
	QueuedAt time.Time      `json:"queued_at"`
}

// StreamSender queues mail jobs on a watermill topic
type StreamSender struct {
	publisher message.Publisher
	topic     string
	from      string
	now       func() time.Time
}

func NewStreamSender(publisher message.Publisher) *StreamSender {
	return &StreamSender{
		publisher: publisher,
		topic:     MailTopic,
		now:       time.Now,
	}
}

func (s *StreamSender) WithTopic(topic string) *StreamSender {
	if topic != "" {
		s.topic = topic
	}
	return s
}

// WithFrom sets the sender address carried by every job.
func (s *StreamSender) WithFrom(from string) *StreamSender {
	s.from = from
	return s
}

func (s *StreamSender) Send(ctx context.Context, address, template string, data map[string]any) error {
	payload, err := json.Marshal(Job{
		From:     s.from,
		To:       address,
		Template: template,
		Data:     data,
		QueuedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mail job: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("template", template)
	msg.SetContext(ctx)

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("failed to queue mail: %w", err)
	}
	return nil
}
