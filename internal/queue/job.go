package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"Qless/pkg/backend"
)

// Failure describes why a job failed.
type Failure struct {
	Group   string  `json:"group"`
	Message string  `json:"message"`
	When    float64 `json:"when"`
	Worker  string  `json:"worker"`
}

// Job is a unit of work claimed from a queue. It is owned by the worker that
// popped it until Complete or Fail is called.
type Job struct {
	JID       string
	Klass     string
	Queue     string
	Data      json.RawMessage
	State     string
	Worker    string
	Expires   float64
	Retries   int
	Remaining int
	Failure   *Failure

	client *backend.Client
}

type wireJob struct {
	JID       string   `json:"jid"`
	Klass     string   `json:"klass"`
	Queue     string   `json:"queue"`
	Data      string   `json:"data"`
	State     string   `json:"state"`
	Worker    string   `json:"worker"`
	Expires   float64  `json:"expires"`
	Retries   int      `json:"retries"`
	Remaining int      `json:"remaining"`
	Failure   *Failure `json:"failure"`
}

func decodeJobs(raw string, client *backend.Client) ([]*Job, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var wire []wireJob
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	jobs := make([]*Job, 0, len(wire))
	for _, w := range wire {
		data := json.RawMessage(w.Data)
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
		jobs = append(jobs, &Job{
			JID:       w.JID,
			Klass:     w.Klass,
			Queue:     w.Queue,
			Data:      data,
			State:     w.State,
			Worker:    w.Worker,
			Expires:   w.Expires,
			Retries:   w.Retries,
			Remaining: w.Remaining,
			Failure:   w.Failure,
			client:    client,
		})
	}
	return jobs, nil
}

// Complete reports success to the backend.
func (j *Job) Complete(ctx context.Context) error {
	_, err := j.client.Call(ctx, "complete", j.JID, j.Worker, j.Queue, "")
	return err
}

// Fail reports failure to the backend under group.
func (j *Job) Fail(ctx context.Context, group, message string) error {
	_, err := j.client.Call(ctx, "fail", j.JID, j.Worker, group, message, "")
	return err
}

// Heartbeat renews the job's lock and returns the new expiry.
func (j *Job) Heartbeat(ctx context.Context) (float64, error) {
	res, err := j.client.Call(ctx, "heartbeat", j.JID, j.Worker, "")
	if err != nil {
		return 0, err
	}
	s, err := backend.AsString(res)
	if err != nil {
		return 0, err
	}
	expires, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse expiry: %w", err)
	}
	j.Expires = expires
	return expires, nil
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Data, v); err != nil {
		return fmt.Errorf("decode payload of job %s: %w", j.JID, err)
	}
	return nil
}

// ParsePayload decodes a job payload into a new T.
func ParsePayload[T any](j *Job) (*T, error) {
	var result T
	if err := j.Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
