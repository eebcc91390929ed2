package repository

import (
	"context"
	"errors"

	"Qless/internal/domain/models"
	"Qless/internal/domain/repository"
)

// MultiSink fans events out to every sink. One failing sink does not keep the
// others from receiving the event.
type MultiSink []repository.EventSink

func (m MultiSink) Publish(ctx context.Context, ev models.JobEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
