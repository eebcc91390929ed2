package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"Qless/internal/domain/models"
	"Qless/pkg/logger"
)

// BuildFunc builds the worker at index together with whatever must be closed
// once it stops (typically its backend connection). The closer may be nil.
type BuildFunc func(ctx context.Context, index int) (*Worker, io.Closer, error)

// Supervisor runs a fixed number of workers side by side, each with its own
// backend connection.
type Supervisor struct {
	count  int
	build  BuildFunc
	logger *logger.Logger

	mu      sync.RWMutex
	workers []*Worker
}

// NewSupervisor validates count and build.
func NewSupervisor(count int, build BuildFunc, log *logger.Logger) (*Supervisor, error) {
	if count < 1 {
		return nil, models.InvalidConfiguration("supervisor needs at least one worker, got %d", count)
	}
	if build == nil {
		return nil, models.InvalidConfiguration("supervisor needs a worker factory")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Supervisor{count: count, build: build, logger: log}, nil
}

// Workers returns the workers built by Run.
func (s *Supervisor) Workers() []*Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Worker, len(s.workers))
	copy(out, s.workers)
	return out
}

// Statuses returns a snapshot of every running worker.
func (s *Supervisor) Statuses() []Status {
	workers := s.Workers()
	out := make([]Status, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.Status())
	}
	return out
}

// Run builds every worker, then runs them until ctx is cancelled or one of
// them fails to start, in which case the rest are stopped too. Nothing runs if
// any worker fails to build.
func (s *Supervisor) Run(ctx context.Context) error {
	workers := make([]*Worker, 0, s.count)
	closers := make([]io.Closer, 0, s.count)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				s.logger.Warn("close worker resources", logger.Error(err))
			}
		}
	}()

	for i := 0; i < s.count; i++ {
		w, c, err := s.build(ctx, i)
		if c != nil {
			closers = append(closers, c)
		}
		if err != nil {
			return fmt.Errorf("build worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}

	s.mu.Lock()
	s.workers = workers
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.Run(runCtx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				cancel()
			}
		}(w)
	}

	s.logger.Info("supervisor started", logger.Int("workers", len(workers)))
	wg.Wait()
	s.logger.Info("supervisor stopped")

	return errors.Join(errs...)
}
