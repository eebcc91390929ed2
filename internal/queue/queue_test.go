package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"Qless/internal/domain/models"
	"Qless/pkg/backend"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, now *time.Time) *backend.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := backend.NewRedisClient(context.Background(), backend.WithAddr(mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return backend.NewClient(rc, backend.WithClock(func() time.Time { return *now }))
}

func TestNewValidates(t *testing.T) {
	now := time.Unix(1000, 0)
	client := newClient(t, &now)

	_, err := New("", client)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)

	_, err = New("jobs", nil)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)

	q, err := New("jobs", client)
	require.NoError(t, err)
	assert.Equal(t, "jobs", q.String())
	assert.Equal(t, "jobs", q.Name())
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPutPopComplete(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	q, err := New("jobs", newClient(t, &now))
	require.NoError(t, err)

	jid, err := q.Put(ctx, "noop", payload{Name: "a", Count: 3}, WithJID("J1"), WithRetries(2))
	require.NoError(t, err)
	assert.Equal(t, "J1", jid)

	n, err := q.Length(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	job, err := q.Pop(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "J1", job.JID)
	assert.Equal(t, "noop", job.Klass)
	assert.Equal(t, "jobs", job.Queue)
	assert.Equal(t, "w1", job.Worker)
	assert.Equal(t, 2, job.Retries)

	p, err := ParsePayload[payload](job)
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name)
	assert.Equal(t, 3, p.Count)

	empty, err := q.Pop(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, empty)

	now = now.Add(10 * time.Second)
	expires, err := job.Heartbeat(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1070, expires, 0.001)

	require.NoError(t, job.Complete(ctx))

	err = job.Complete(ctx)
	var be *backend.Error
	require.True(t, errors.As(err, &be))
	assert.Contains(t, be.Message, "not currently running")
}

func TestFailRecordsGroup(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	q, err := New("jobs", newClient(t, &now))
	require.NoError(t, err)

	_, err = q.Put(ctx, "noop", nil, WithJID("J1"))
	require.NoError(t, err)
	job, err := q.Pop(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, job.Fail(ctx, "noop-failure", "boom"))

	n, err := q.Length(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestPutRejectsInvalidJSON(t *testing.T) {
	now := time.Unix(1000, 0)
	q, err := New("jobs", newClient(t, &now))
	require.NoError(t, err)

	_, err = q.Put(context.Background(), "noop", "{not json")
	var be *backend.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "put", be.Op)

	job, err := q.Pop(context.Background(), "w1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDecodeJobs(t *testing.T) {
	jobs, err := decodeJobs("[]", nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	jobs, err = decodeJobs("{}", nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	jobs, err = decodeJobs(`[{"jid":"J1","klass":"k","queue":"q","data":"","failure":{"group":"g","message":"m"}}]`, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.JSONEq(t, "{}", string(jobs[0].Data))
	require.NotNil(t, jobs[0].Failure)
	assert.Equal(t, "g", jobs[0].Failure.Group)

	_, err = decodeJobs("[", nil)
	assert.Error(t, err)
}
