package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewProducerValidates(t *testing.T) {
	_, err := NewProducer(WithTopic("events"))
	assert.ErrorContains(t, err, "brokers")

	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}), WithTopic(""))
	assert.ErrorContains(t, err, "topic")

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithTopic("events"), WithCompression("none"))
	require.NoError(t, err)
	assert.Equal(t, "events", p.Topic())
	require.NoError(t, p.Close())
}

func TestPublishEncodes(t *testing.T) {
	w := &captureWriter{}
	p := NewProducerWithWriter(w, "job-events", "snappy")

	require.NoError(t, p.Publish(context.Background(), []byte("j1"), map[string]string{"type": "completed"}))
	require.NoError(t, p.Publish(context.Background(), []byte("j2"), "raw"))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "j1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"type":"completed"}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.GreaterOrEqual(t, testutil.ToFloat64(producerMsgsTotal.WithLabelValues("job-events", "snappy", "ok")), 2.0)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishWrapsWriterError(t *testing.T) {
	w := &captureWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, "job-events", "gzip")

	err := p.Publish(context.Background(), nil, "x")
	assert.ErrorContains(t, err, "kafka publish job-events")
	assert.ErrorIs(t, err, w.err)

	err = p.Publish(context.Background(), nil, make(chan int))
	assert.ErrorContains(t, err, "marshal value")
}
