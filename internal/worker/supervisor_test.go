package worker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"Qless/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct{ closed *atomic.Int32 }

func (c countingCloser) Close() error {
	c.closed.Add(1)
	return nil
}

func TestNewSupervisorValidates(t *testing.T) {
	build := func(context.Context, int) (*Worker, io.Closer, error) { return nil, nil, nil }

	_, err := NewSupervisor(0, build, nil)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)

	_, err = NewSupervisor(2, nil, nil)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)

	s, err := NewSupervisor(2, build, nil)
	require.NoError(t, err)
	assert.Empty(t, s.Workers())
}

func TestSupervisorRunsAndStopsAllWorkers(t *testing.T) {
	var closed atomic.Int32
	stores := make([]*scriptedStore, 3)

	s, err := NewSupervisor(3, func(_ context.Context, i int) (*Worker, io.Closer, error) {
		stores[i] = newScriptedStore("noop")
		w, err := New(newStub(t, stores[i]), WithInterval(time.Hour))
		return w, countingCloser{&closed}, err
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		if len(s.Workers()) != 3 {
			return false
		}
		for _, st := range stores {
			if pops, _, _ := st.snapshot(); pops == 0 {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done, time.Second))
	assert.Equal(t, int32(3), closed.Load())

	for _, st := range s.Statuses() {
		assert.Equal(t, "stopped", st.State)
	}
}

func TestSupervisorBuildFailureClosesBuilt(t *testing.T) {
	var closed atomic.Int32
	s, err := NewSupervisor(3, func(_ context.Context, i int) (*Worker, io.Closer, error) {
		if i == 2 {
			return nil, nil, errors.New("redis unreachable")
		}
		w, err := New(newStub(t, newScriptedStore("noop")))
		return w, countingCloser{&closed}, err
	}, nil)
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorContains(t, err, "build worker 2")
	assert.Equal(t, int32(2), closed.Load())
	assert.Empty(t, s.Workers())
}

func TestSupervisorStopsSiblingsWhenOneFails(t *testing.T) {
	s, err := NewSupervisor(2, func(_ context.Context, i int) (*Worker, io.Closer, error) {
		stub := newStub(t, newScriptedStore("noop"))
		if i == 1 {
			stub.beforeErr = errors.New("not ready")
		}
		w, err := New(stub, WithInterval(time.Hour))
		return w, nil, err
	}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	err = waitDone(t, done, time.Second)
	assert.ErrorContains(t, err, "not ready")
}
