package backend

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Executor runs a named atomic operation against the shared store. now is the
// caller's clock in seconds since the epoch.
type Executor interface {
	Execute(ctx context.Context, op string, now float64, args ...interface{}) (interface{}, error)
}

// Error is returned for every failure reported by the backend, carrying its
// raw diagnostic message.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithClock replaces the wall clock used to stamp operations.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// Client stamps every call with the current time before handing it to the
// underlying Executor. A Client is owned by a single worker.
type Client struct {
	exec Executor
	now  func() time.Time
}

// NewClient wraps exec.
func NewClient(exec Executor, opts ...ClientOption) *Client {
	c := &Client{exec: exec, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call executes op at the client's current time.
func (c *Client) Call(ctx context.Context, op string, args ...interface{}) (interface{}, error) {
	return c.exec.Execute(ctx, op, Timestamp(c.now()), args...)
}

// Close releases the underlying connection when the executor holds one.
func (c *Client) Close() error {
	if closer, ok := c.exec.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Timestamp converts t to fractional epoch seconds.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// AsString converts a script result to a string. nil results yield "".
func AsString(res interface{}) (string, error) {
	switch v := res.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", fmt.Errorf("unexpected result type %T", res)
	}
}

// AsInt64 converts a script result to an integer.
func AsInt64(res interface{}) (int64, error) {
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse result: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected result type %T", res)
	}
}
