package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/gatekeeper/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublishSessionEvent(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, NewZapLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() { _ = pubsub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := pubsub.Subscribe(ctx, SessionTopic)
	require.NoError(t, err)

	pub := NewWatermillPublisher(pubsub)
	event := core.SessionEvent{
		Type:       core.EventLoggedOut,
		UserID:     "user-1",
		TokenID:    "jti-1",
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.PublishSessionEvent(ctx, event))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, "logged_out", msg.Metadata.Get("event_type"))

		var got core.SessionEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, event.UserID, got.UserID)
		assert.Equal(t, event.TokenID, got.TokenID)
		assert.True(t, event.OccurredAt.Equal(got.OccurredAt))
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("broker down") }
func (failingPublisher) Close() error                              { return nil }

func TestPublishSessionEventWrapsPublisherError(t *testing.T) {
	err := NewWatermillPublisher(failingPublisher{}).PublishSessionEvent(context.Background(), core.SessionEvent{Type: core.EventLoggedIn})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestZapLogger(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	var adapter watermill.LoggerAdapter = NewZapLogger(zap.New(obs))

	adapter.With(watermill.LogFields{"topic": "t"}).Info("published", watermill.LogFields{"uuid": "1"})
	adapter.Error("failed", errors.New("boom"), nil)
	adapter.Trace("trace", nil)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "t", entries[0].ContextMap()["topic"])
	assert.Equal(t, "1", entries[0].ContextMap()["uuid"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
}
