package ports

import (
	"context"

	"github.com/layer-3/gatekeeper/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event core.SessionEvent) error
}
