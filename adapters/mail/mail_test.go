package mail

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/gatekeeper/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStreamSender(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs, err := pubsub.Subscribe(ctx, MailTopic)
	require.NoError(t, err)

	sender := NewStreamSender(pubsub)
	require.NoError(t, sender.Send(ctx, "jane@example.com", ports.TemplatePasswordReset, map[string]any{"token": "abc"}))

	select {
	case msg := <-jobs:
		msg.Ack()
		assert.Equal(t, ports.TemplatePasswordReset, msg.Metadata.Get("template"))

		var job Job
		require.NoError(t, json.Unmarshal(msg.Payload, &job))
		assert.Equal(t, "jane@example.com", job.To)
		assert.Equal(t, "abc", job.Data["token"])
		assert.False(t, job.QueuedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("mail job was not queued")
	}
}

func TestLogSenderMasksAddress(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	sender := NewLogSender(zap.New(obs))

	require.NoError(t, sender.Send(context.Background(), "jane.doe@example.com", ports.TemplateWelcome, nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "jan***@example.com", entries[0].ContextMap()["to"])
	assert.Equal(t, ports.TemplateWelcome, entries[0].ContextMap()["template"])
}

func TestStreamSenderCustomTopicAndFrom(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs, err := pubsub.Subscribe(ctx, "booking.mail")
	require.NoError(t, err)

	sender := NewStreamSender(pubsub).WithTopic("booking.mail").WithFrom("no-reply@booking.test")
	require.NoError(t, sender.Send(ctx, "jane@example.com", ports.TemplateWelcome, nil))

	select {
	case msg := <-jobs:
		msg.Ack()
		var job Job
		require.NoError(t, json.Unmarshal(msg.Payload, &job))
		assert.Equal(t, "no-reply@booking.test", job.From)
	case <-time.After(time.Second):
		t.Fatal("mail job was not queued on the custom topic")
	}
}
