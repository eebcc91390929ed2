package repository

import (
	"context"

	"Qless/internal/domain/models"
)

// EventSink receives job events emitted by workers. Publish errors are logged
// by the caller and never stop a worker.
type EventSink interface {
	Publish(ctx context.Context, ev models.JobEvent) error
	Close() error
}

// Metrics records worker activity.
type Metrics interface {
	RecordReserved(queue string)
	RecordOutcome(queue, outcome string)
	RecordBackendError(op string)
	RecordJobDuration(queue string, seconds float64)
	SetWorkerState(worker, state string)
}
