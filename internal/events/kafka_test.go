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

	"erp-sync-service/internal/config"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherPublish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "erp-sync.batches"}

	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), &BatchEvent{
		TenantID:   "t1",
		EntityType: "job",
		Sources:    []string{"SAP"},
		Total:      2,
		Created:    1,
		Skipped:    1,
		CreatedIDs: []string{"id-1"},
		Timestamp:  at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "erp-sync.batches", msg.Topic)
	assert.Equal(t, "t1/job", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, EventBatchCompleted, headers["event_type"])
	assert.Equal(t, "t1", headers["tenant_id"])
	assert.Equal(t, "job", headers["entity_type"])

	var decoded BatchEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 1, decoded.Created)
	assert.Equal(t, []string{"id-1"}, decoded.CreatedIDs)
	assert.True(t, at.Equal(decoded.Timestamp))
}

func TestKafkaPublisherWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w, topic: "t"}

	err := p.Publish(context.Background(), &BatchEvent{TenantID: "t1", EntityType: "part"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestCompressionCodec(t *testing.T) {
	tests := []struct {
		name string
		want kafka.Compression
	}{
		{"", kafka.Snappy},
		{"snappy", kafka.Snappy},
		{"gzip", kafka.Gzip},
		{"lz4", kafka.Lz4},
		{"zstd", kafka.Zstd},
		{"none", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compressionCodec(tt.name))
		})
	}
}

func TestNewDisabledIsNop(t *testing.T) {
	p := New(config.EventsConfig{Enabled: false})
	assert.IsType(t, NopPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), &BatchEvent{}))
	assert.NoError(t, p.Close())
}
