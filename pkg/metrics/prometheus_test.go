package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordReserved("jobs")
	r.RecordReserved("jobs")
	r.RecordOutcome("jobs", "failed")
	r.RecordBackendError("pop")
	r.RecordJobDuration("jobs", 0.25)
	r.SetWorkerState("w1", "executing")
	r.SetWorkerState("w1", "idle")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.reserved.WithLabelValues("jobs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("jobs", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.backendErrors.WithLabelValues("pop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.state.WithLabelValues("w1", "idle")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.state.WithLabelValues("w1", "executing")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestNopRecorder(t *testing.T) {
	var n Nop
	n.RecordReserved("q")
	n.RecordOutcome("q", "complete")
	n.RecordBackendError("pop")
	n.RecordJobDuration("q", 1)
	n.SetWorkerState("w", "idle")
}
