package reserver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"

	"Qless/internal/domain/models"
	"Qless/internal/queue"
	"Qless/pkg/logger"
)

// Kind selects the order in which queues are tried on each reservation.
type Kind int

const (
	// Ordered always tries queues in construction order; the first queue has
	// the highest priority.
	Ordered Kind = iota
	// RoundRobin resumes after the queue that produced the previous job.
	RoundRobin
	// Random shuffles the queues on every reservation.
	Random
)

func (k Kind) String() string {
	switch k {
	case Ordered:
		return "ordered"
	case RoundRobin:
		return "round robin"
	case Random:
		return "random"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a configuration value to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ordered", "priority", "":
		return Ordered, nil
	case "round-robin", "round robin", "roundrobin":
		return RoundRobin, nil
	case "random", "shuffled":
		return Random, nil
	default:
		return 0, models.InvalidConfiguration("unknown reservation strategy %q", s)
	}
}

// Option configures a Reserver.
type Option func(*Reserver)

// WithWorker sets the identity the backend tags claimed jobs with.
func WithWorker(id string) Option {
	return func(r *Reserver) {
		r.worker.Store(id)
	}
}

// WithRand sets the random source used by the Random kind.
func WithRand(rng *rand.Rand) Option {
	return func(r *Reserver) {
		r.rng = rng
	}
}

// WithLogger sets the initial logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Reserver) {
		r.SetLogger(l)
	}
}

// Reserver decides which queue a worker claims its next job from. The queue
// list and description are fixed at construction; a different queue set needs
// a new Reserver.
type Reserver struct {
	kind        Kind
	queues      []*queue.Queue
	worker      atomic.Value // string
	description string
	logger      atomic.Pointer[logger.Logger]

	mu     sync.Mutex // guards cursor and rng
	cursor int
	rng    *rand.Rand
}

// New validates queues and builds a Reserver of the given kind.
func New(kind Kind, queues []*queue.Queue, opts ...Option) (*Reserver, error) {
	if kind < Ordered || kind > Random {
		return nil, models.InvalidConfiguration("unknown reservation strategy %s", kind)
	}
	if len(queues) == 0 {
		return nil, models.InvalidConfiguration("the %s reserver needs at least one queue", kind)
	}

	own := make([]*queue.Queue, 0, len(queues))
	for i, q := range queues {
		if q == nil {
			return nil, models.InvalidConfiguration("the %s reserver got a nil queue at position %d", kind, i)
		}
		if q.Name() == "" {
			return nil, models.InvalidConfiguration("the %s reserver got an unnamed queue at position %d", kind, i)
		}
		own = append(own, q)
	}

	r := &Reserver{
		kind:   kind,
		queues: own,
	}
	r.logger.Store(logger.Nop())

	for _, opt := range opts {
		opt(r)
	}

	if r.Worker() == "" {
		r.worker.Store(queue.DefaultWorkerName())
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r.description = describe(own, kind)

	return r, nil
}

func describe(queues []*queue.Queue, kind Kind) string {
	names := make([]string, len(queues))
	for i, q := range queues {
		names[i] = q.String()
	}
	return strings.TrimSpace(strings.Join(names, ", ") + " (" + kind.String() + ")")
}

// Kind returns the reservation kind.
func (r *Reserver) Kind() Kind {
	return r.kind
}

// Worker returns the identity claimed jobs are tagged with.
func (r *Reserver) Worker() string {
	id, _ := r.worker.Load().(string)
	return id
}

// SetWorker changes the identity used for subsequent reservations. Jobs
// already claimed keep the identity they were popped with.
func (r *Reserver) SetWorker(id string) {
	if id == "" {
		return
	}
	r.worker.Store(id)
}

// Queues returns a copy of the queue list in construction order.
func (r *Reserver) Queues() []*queue.Queue {
	out := make([]*queue.Queue, len(r.queues))
	copy(out, r.queues)
	return out
}

// Description returns "<q1>, <q2> (<kind>)".
func (r *Reserver) Description() string {
	return r.description
}

// SetLogger replaces the logger. A nil logger restores the silent default.
func (r *Reserver) SetLogger(l *logger.Logger) {
	if l == nil {
		l = logger.Nop()
	}
	r.logger.Store(l)
}

// BeforeWork runs once before a worker starts reserving.
func (r *Reserver) BeforeWork(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("before work: %w", err)
	}
	r.logger.Load().Debug("reserver ready",
		logger.String("worker", r.Worker()),
		logger.String("queues", r.description))
	return nil
}

// Reserve tries each queue in the kind's traversal order and returns the first
// job claimed. It returns (nil, nil) when every queue is empty. A queue whose
// pop fails is skipped; the failures are returned only if no job was claimed.
func (r *Reserver) Reserve(ctx context.Context) (*queue.Job, error) {
	log := r.logger.Load()
	id := r.Worker()

	var errs []error
	for _, idx := range r.order() {
		q := r.queues[idx]
		job, err := q.Pop(ctx, id)
		if err != nil {
			log.Warn("pop failed",
				logger.String("queue", q.Name()),
				logger.String("worker", id),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		if job == nil {
			continue
		}

		r.claimed(idx)
		log.Debug("job reserved",
			logger.String("jid", job.JID),
			logger.String("queue", q.Name()),
			logger.String("worker", id))
		return job, nil
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

func (r *Reserver) order() []int {
	n := len(r.queues)
	out := make([]int, n)

	switch r.kind {
	case RoundRobin:
		r.mu.Lock()
		start := r.cursor
		r.mu.Unlock()
		for i := range out {
			out[i] = (start + i) % n
		}
	case Random:
		r.mu.Lock()
		perm := r.rng.Perm(n)
		r.mu.Unlock()
		copy(out, perm)
	default:
		for i := range out {
			out[i] = i
		}
	}
	return out
}

func (r *Reserver) claimed(idx int) {
	if r.kind != RoundRobin {
		return
	}
	r.mu.Lock()
	r.cursor = (idx + 1) % len(r.queues)
	r.mu.Unlock()
}
