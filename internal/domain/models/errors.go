package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned synchronously when a strategy, worker
	// or supervisor is built from unusable input.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUnresolvableHandler is returned when a handler identifier does not
	// resolve to a usable job handler.
	ErrUnresolvableHandler = errors.New("unresolvable job handler")
)

// HandlerFailure wraps an error raised while performing a job. Group is the
// failure group reported to the backend.
type HandlerFailure struct {
	Group string
	Err   error
}

func (e *HandlerFailure) Error() string {
	return fmt.Sprintf("handler failure [%s]: %v", e.Group, e.Err)
}

func (e *HandlerFailure) Unwrap() error {
	return e.Err
}

// InvalidConfiguration builds an ErrInvalidConfiguration with detail.
func InvalidConfiguration(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
