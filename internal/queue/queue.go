package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"Qless/internal/domain/models"
	"Qless/pkg/backend"

	"github.com/google/uuid"
)

// DefaultRetries is the number of lost-lock retries a job gets when Put is
// not given WithRetries.
const DefaultRetries = 5

// Queue is a named handle into the shared store. It holds no job state and is
// never mutated after construction.
type Queue struct {
	name   string
	client *backend.Client
}

// New returns a handle for the named queue.
func New(name string, client *backend.Client) (*Queue, error) {
	if name == "" {
		return nil, models.InvalidConfiguration("queue name is required")
	}
	if client == nil {
		return nil, models.InvalidConfiguration("queue %q has no backend client", name)
	}
	return &Queue{name: name, client: client}, nil
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) String() string {
	return q.name
}

// Pop atomically claims at most one job for worker. It returns nil when the
// queue is empty.
func (q *Queue) Pop(ctx context.Context, worker string) (*Job, error) {
	res, err := q.client.Call(ctx, "pop", q.name, worker, 1)
	if err != nil {
		return nil, err
	}
	raw, err := backend.AsString(res)
	if err != nil {
		return nil, fmt.Errorf("pop %s: %w", q.name, err)
	}

	jobs, err := decodeJobs(raw, q.client)
	if err != nil {
		return nil, fmt.Errorf("pop %s: %w", q.name, err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

// PutOption configures Put.
type PutOption func(*putOptions)

type putOptions struct {
	jid     string
	retries int
	worker  string
}

// WithJID sets an explicit job id instead of a generated one.
func WithJID(jid string) PutOption {
	return func(o *putOptions) {
		o.jid = jid
	}
}

// WithRetries sets how many lost locks the job survives.
func WithRetries(n int) PutOption {
	return func(o *putOptions) {
		o.retries = n
	}
}

// WithProducer names the process enqueueing the job.
func WithProducer(name string) PutOption {
	return func(o *putOptions) {
		o.worker = name
	}
}

// Put enqueues a job for the handler identified by klass and returns its id.
func (q *Queue) Put(ctx context.Context, klass string, data interface{}, opts ...PutOption) (string, error) {
	o := &putOptions{retries: DefaultRetries, worker: "producer"}
	for _, opt := range opts {
		opt(o)
	}
	if o.jid == "" {
		o.jid = uuid.NewString()
	}

	payload, err := encodeData(data)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", q.name, err)
	}

	res, err := q.client.Call(ctx, "put", o.worker, q.name, o.jid, klass, payload, o.retries)
	if err != nil {
		return "", err
	}
	return backend.AsString(res)
}

// Length returns the number of waiting and running jobs.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	res, err := q.client.Call(ctx, "length", q.name)
	if err != nil {
		return 0, err
	}
	return backend.AsInt64(res)
}

func encodeData(data interface{}) (string, error) {
	switch v := data.(type) {
	case nil:
		return "{}", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal data: %w", err)
		}
		return string(b), nil
	}
}

// DefaultWorkerName identifies this process to the backend as host-pid.
func DefaultWorkerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
