package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"Qless/internal/domain/models"
	pkgkafka "Qless/pkg/kafka"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	query string
	args  []interface{}
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if f.err != nil {
		return nil, f.err
	}
	return driverResult{}, nil
}

type driverResult struct{}

func (driverResult) LastInsertId() (int64, error) { return 0, nil }
func (driverResult) RowsAffected() (int64, error) { return 1, nil }

type memWriter struct{ msgs []kafka.Message }

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

type stubSink struct {
	got      []models.JobEvent
	err      error
	closeErr error
}

func (s *stubSink) Publish(_ context.Context, ev models.JobEvent) error {
	s.got = append(s.got, ev)
	return s.err
}

func (s *stubSink) Close() error { return s.closeErr }

func failedEvent() models.JobEvent {
	return models.JobEvent{
		Type:      models.EventFailed,
		JID:       "j1",
		Klass:     "mailer",
		Queue:     "critical",
		Worker:    "host-1",
		Group:     "mailer-failure",
		Message:   "smtp timeout",
		Duration:  1500 * time.Millisecond,
		Timestamp: time.Unix(1700000000, 0),
	}
}

func TestClickHouseHistoryInsertsFinishedRuns(t *testing.T) {
	db := &fakeExecer{}
	h := NewClickHouseHistory(db, "job_runs", nil)

	require.NoError(t, h.Publish(context.Background(), models.JobEvent{Type: models.EventReserved, JID: "j1"}))
	assert.Empty(t, db.calls)

	require.NoError(t, h.Publish(context.Background(), failedEvent()))
	require.Len(t, db.calls, 1)
	assert.True(t, strings.HasPrefix(db.calls[0].query, "INSERT INTO job_runs"))
	args := db.calls[0].args
	require.Len(t, args, 9)
	assert.Equal(t, "j1", args[1])
	assert.Equal(t, models.EventFailed, args[5])
	assert.Equal(t, "mailer-failure", args[6])
	assert.Equal(t, uint64(1500), args[8])
	require.NoError(t, h.Close())
}

func TestClickHouseHistoryWrapsError(t *testing.T) {
	db := &fakeExecer{err: errors.New("table is read only")}
	h := NewClickHouseHistory(db, "job_runs", nil)

	err := h.Publish(context.Background(), failedEvent())
	assert.ErrorContains(t, err, "insert job history")
	assert.ErrorIs(t, err, db.err)
}

func TestHistorySchema(t *testing.T) {
	stmts := HistorySchema("runs")
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS runs")
	assert.Contains(t, stmts[0], "failure_group")
}

func TestKafkaEventPublisher(t *testing.T) {
	w := &memWriter{}
	sink := NewKafkaEventPublisher(pkgkafka.NewProducerWithWriter(w, "job-events", "none"))

	require.NoError(t, sink.Publish(context.Background(), failedEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "j1", string(w.msgs[0].Key))

	var got models.JobEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "mailer-failure", got.Group)
	assert.Equal(t, "critical", got.Queue)
	require.NoError(t, sink.Close())
}

func TestMultiSink(t *testing.T) {
	a := &stubSink{err: errors.New("a down")}
	b := &stubSink{closeErr: errors.New("b close")}
	m := MultiSink{a, b}

	err := m.Publish(context.Background(), failedEvent())
	assert.ErrorContains(t, err, "a down")
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)

	assert.ErrorContains(t, m.Close(), "b close")
	assert.NoError(t, MultiSink{}.Close())
}
