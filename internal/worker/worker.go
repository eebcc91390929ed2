package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"Qless/internal/domain/models"
	"Qless/internal/domain/repository"
	"Qless/internal/queue"
	"Qless/pkg/backend"
	"Qless/pkg/logger"
	"Qless/pkg/metrics"
)

// DefaultInterval is the polling interval used when none is configured.
const DefaultInterval = 5 * time.Second

// Strategy picks the next job for a worker.
type Strategy interface {
	Reserve(ctx context.Context) (*queue.Job, error)
	Queues() []*queue.Queue
	Description() string
	BeforeWork(ctx context.Context) error
	SetLogger(l *logger.Logger)
}

// identity is implemented by strategies that tag claimed jobs with the
// worker's name.
type identity interface {
	Worker() string
	SetWorker(id string)
}

// State is the worker's position in its run loop.
type State int32

const (
	StateIdle State = iota
	StateReserving
	StateExecuting
	StateReporting
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReserving:
		return "reserving"
	case StateExecuting:
		return "executing"
	case StateReporting:
		return "reporting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Option configures a Worker.
type Option func(*Worker)

// WithName sets the worker name.
func WithName(name string) Option {
	return func(w *Worker) {
		w.name = name
	}
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval.Store(int64(d))
		}
	}
}

// WithLogger sets the worker and strategy logger.
func WithLogger(l *logger.Logger) Option {
	return func(w *Worker) {
		w.logger = l
	}
}

// WithRegistry sets the registry used to resolve handlers.
func WithRegistry(r *Registry) Option {
	return func(w *Worker) {
		w.registry = r
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithEventSink sets where job events are published.
func WithEventSink(s repository.EventSink) Option {
	return func(w *Worker) {
		w.events = s
	}
}

// Worker reserves jobs through a Strategy, performs them and reports the
// outcome. One Worker runs one job at a time.
type Worker struct {
	strategy Strategy
	registry *Registry
	metrics  repository.Metrics
	events   repository.EventSink
	interval atomic.Int64
	state    atomic.Int32
	started  atomic.Bool

	mu        sync.RWMutex
	name      string
	logger    *logger.Logger
	handler   Handler
	handlerID string
	title     string
}

// New builds a worker around strategy.
func New(strategy Strategy, opts ...Option) (*Worker, error) {
	if strategy == nil {
		return nil, models.InvalidConfiguration("worker needs a reservation strategy")
	}

	w := &Worker{strategy: strategy}
	w.interval.Store(int64(DefaultInterval))
	for _, opt := range opts {
		opt(w)
	}

	if id, ok := strategy.(identity); ok {
		if w.name == "" {
			w.name = id.Worker()
		} else {
			id.SetWorker(w.name)
		}
	}
	if w.name == "" {
		w.name = queue.DefaultWorkerName()
	}
	if w.registry == nil {
		w.registry = NewRegistry()
	}
	if w.metrics == nil {
		w.metrics = metrics.Nop{}
	}
	w.SetLogger(w.logger)
	w.setState(StateIdle)

	return w, nil
}

// Name returns the worker name.
func (w *Worker) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

// SetName renames the worker. When the strategy tags jobs with a worker
// identity the new name is used from the next reservation on.
func (w *Worker) SetName(name string) {
	if name == "" {
		return
	}
	w.mu.Lock()
	w.name = name
	w.mu.Unlock()
	if id, ok := w.strategy.(identity); ok {
		id.SetWorker(name)
	}
}

// Interval returns the polling interval.
func (w *Worker) Interval() time.Duration {
	return time.Duration(w.interval.Load())
}

// SetInterval changes the polling interval from the next sleep on.
// Non-positive values are ignored.
func (w *Worker) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	w.interval.Store(int64(d))
}

// SetLogger replaces the worker's logger and hands it to the strategy.
func (w *Worker) SetLogger(l *logger.Logger) {
	if l == nil {
		l = logger.Nop()
	}
	w.mu.Lock()
	w.logger = l
	w.mu.Unlock()
	w.strategy.SetLogger(l)
}

func (w *Worker) log() *logger.Logger {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.logger.With(logger.String("worker", w.name))
}

// RegisterJobPerformHandler routes every job to the handler registered under
// id. On failure the previous handler stays in place.
func (w *Worker) RegisterJobPerformHandler(id string) error {
	h, err := w.registry.Resolve(id)
	if err != nil {
		return fmt.Errorf("register job perform handler: %w", err)
	}

	w.mu.Lock()
	w.handler = h
	w.handlerID = id
	w.mu.Unlock()
	return nil
}

// JobPerformHandler returns the identifier of the registered perform handler.
func (w *Worker) JobPerformHandler() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.handlerID
}

// Title sets the worker's status line. Placeholders of the form {key} are
// replaced with values from context.
func (w *Worker) Title(value string, context map[string]interface{}) {
	for k, v := range context {
		value = strings.ReplaceAll(value, "{"+k+"}", fmt.Sprint(v))
	}
	w.mu.Lock()
	w.title = value
	w.mu.Unlock()
}

// State returns the current run-loop state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.metrics.SetWorkerState(w.Name(), s.String())
}

// Status is a point-in-time view of a worker.
type Status struct {
	Name     string        `json:"name"`
	State    string        `json:"state"`
	Title    string        `json:"title"`
	Strategy string        `json:"strategy"`
	Handler  string        `json:"handler,omitempty"`
	Interval time.Duration `json:"interval_ns"`
}

// Status returns a snapshot of the worker.
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Status{
		Name:     w.name,
		State:    w.State().String(),
		Title:    w.title,
		Strategy: w.strategy.Description(),
		Handler:  w.handlerID,
		Interval: w.Interval(),
	}
}

// Reserve asks the strategy for the next job. A reservation that has started
// is never cut short by ctx being cancelled.
func (w *Worker) Reserve(ctx context.Context) (*queue.Job, error) {
	return w.strategy.Reserve(context.WithoutCancel(ctx))
}

// Run loops until ctx is cancelled. Cancellation interrupts the idle sleep and
// prevents new reservations; a job already reserved is performed and reported
// before Run returns. Only a BeforeWork failure is returned as an error.
func (w *Worker) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("worker has already run")
	}
	defer w.setState(StateStopped)

	if err := w.strategy.BeforeWork(ctx); err != nil {
		w.log().Error("worker startup failed", logger.Error(err))
		return fmt.Errorf("worker %s: %w", w.Name(), err)
	}

	desc := w.strategy.Description()
	w.log().Info("worker started",
		logger.String("queues", desc),
		logger.Duration("interval_ms", w.Interval()))

	for {
		if ctx.Err() != nil {
			break
		}

		w.setState(StateReserving)
		job, err := w.Reserve(ctx)
		if err != nil {
			w.backendError("pop", err)
			w.log().Error("reservation failed", logger.Error(err))
		}

		if job == nil {
			w.setState(StateIdle)
			w.Title("Waiting for {queues}", map[string]interface{}{"queues": desc})
			if !w.sleep(ctx) {
				break
			}
			continue
		}

		w.perform(context.WithoutCancel(ctx), job)
		w.setState(StateIdle)
	}

	w.setState(StateStopping)
	w.log().Info("worker stopped")
	return nil
}

func (w *Worker) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.Interval())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) perform(ctx context.Context, job *queue.Job) {
	log := w.log().With(
		logger.String("jid", job.JID),
		logger.String("queue", job.Queue),
		logger.String("klass", job.Klass))

	w.setState(StateExecuting)
	w.metrics.RecordReserved(job.Queue)
	w.emit(ctx, models.JobEvent{Type: models.EventReserved}, job)
	w.Title("Processing {jid} from {queue}", map[string]interface{}{"jid": job.JID, "queue": job.Queue})
	log.Debug("performing job")

	start := time.Now()
	err := w.execute(ctx, job)
	elapsed := time.Since(start)
	w.metrics.RecordJobDuration(job.Queue, elapsed.Seconds())

	w.setState(StateReporting)
	if err != nil {
		group, message := job.Klass+"-failure", err.Error()
		var hf *models.HandlerFailure
		if errors.As(err, &hf) && hf.Err != nil {
			group, message = hf.Group, hf.Err.Error()
		}
		log.Error("job failed",
			logger.String("group", group),
			logger.Duration("elapsed_ms", elapsed),
			logger.Error(err))

		if ferr := job.Fail(ctx, group, message); ferr != nil {
			w.backendError("fail", ferr)
			log.Error("failure report rejected", logger.Error(ferr))
		}
		w.metrics.RecordOutcome(job.Queue, "failed")
		w.emit(ctx, models.JobEvent{
			Type:     models.EventFailed,
			Group:    group,
			Message:  message,
			Duration: elapsed,
		}, job)
		return
	}

	if cerr := job.Complete(ctx); cerr != nil {
		w.backendError("complete", cerr)
		log.Error("completion report rejected", logger.Error(cerr))
	} else {
		log.Info("job completed", logger.Duration("elapsed_ms", elapsed))
	}
	w.metrics.RecordOutcome(job.Queue, "complete")
	w.emit(ctx, models.JobEvent{Type: models.EventCompleted, Duration: elapsed}, job)
}

func (w *Worker) execute(ctx context.Context, job *queue.Job) (err error) {
	h, err := w.handlerFor(job)
	if err != nil {
		return &models.HandlerFailure{Group: job.Klass + "-unresolvable", Err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			err = &models.HandlerFailure{Group: job.Klass + "-panic", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := h.Perform(ctx, job); err != nil {
		var hf *models.HandlerFailure
		if errors.As(err, &hf) {
			return err
		}
		return &models.HandlerFailure{Group: job.Klass + "-failure", Err: err}
	}
	return nil
}

func (w *Worker) handlerFor(job *queue.Job) (Handler, error) {
	w.mu.RLock()
	h := w.handler
	w.mu.RUnlock()
	if h != nil {
		return h, nil
	}
	return w.registry.Resolve(job.Klass)
}

func (w *Worker) backendError(op string, err error) {
	var be *backend.Error
	if errors.As(err, &be) {
		op = be.Op
	}
	w.metrics.RecordBackendError(op)
}

func (w *Worker) emit(ctx context.Context, ev models.JobEvent, job *queue.Job) {
	if w.events == nil {
		return
	}
	ev.JID = job.JID
	ev.Klass = job.Klass
	ev.Queue = job.Queue
	ev.Worker = w.Name()
	ev.Timestamp = time.Now()
	if err := w.events.Publish(ctx, ev); err != nil {
		w.log().Warn("event publish failed",
			logger.String("event", ev.Type),
			logger.String("jid", job.JID),
			logger.Error(err))
	}
}
