package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestPublisher(w *fakeWriter) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		topic:  "tickets",
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

func TestKafkaPublisherWritesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := newTestPublisher(w)

	err := p.Publish(context.Background(), TypeTicketProcessed, "T-1", map[string]string{"status": "resolved"})
	require.NoError(t, err)

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "T-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, TypeTicketProcessed, string(msg.Headers[0].Value))

	var env struct {
		Type       string            `json:"type"`
		Key        string            `json:"key"`
		OccurredAt time.Time         `json:"occurred_at"`
		Payload    map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, TypeTicketProcessed, env.Type)
	assert.Equal(t, "resolved", env.Payload["status"])
	assert.Equal(t, 2025, env.OccurredAt.Year())
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newTestPublisher(w)

	err := p.Publish(context.Background(), TypeNotificationEmail, "k", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Contains(t, err.Error(), "tickets")
}

func TestKafkaPublisherClose(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newTestPublisher(w).Close())
	assert.True(t, w.closed)
}

func TestMemoryPublisher(t *testing.T) {
	m := &Memory{}
	require.NoError(t, m.Publish(context.Background(), TypeTicketProcessed, "T-1", 1))
	require.NoError(t, m.Publish(context.Background(), TypeTicketProcessed, "T-2", 2))

	got := m.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "T-2", got[1].Key)
}
