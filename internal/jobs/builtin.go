// Package jobs holds the handlers shipped with the worker binary.
package jobs

import (
	"context"
	"fmt"

	"Qless/internal/queue"
	"Qless/internal/worker"
	"Qless/pkg/logger"
)

// Identifiers of the built-in handlers.
const (
	Noop = "noop"
	Log  = "log"
)

// Register adds the built-in handlers to reg.
func Register(reg *worker.Registry, l *logger.Logger) error {
	if l == nil {
		l = logger.Nop()
	}
	if err := reg.RegisterHandler(Noop, worker.HandlerFunc(noop)); err != nil {
		return fmt.Errorf("register %s: %w", Noop, err)
	}
	if err := reg.RegisterHandler(Log, &logHandler{logger: l}); err != nil {
		return fmt.Errorf("register %s: %w", Log, err)
	}
	return nil
}

func noop(context.Context, *queue.Job) error {
	return nil
}

// LogPayload is the data a "log" job carries.
type LogPayload struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields"`
}

// logHandler writes the job's message to the worker log.
type logHandler struct {
	logger *logger.Logger
}

func (h *logHandler) Perform(_ context.Context, job *queue.Job) error {
	p, err := queue.ParsePayload[LogPayload](job)
	if err != nil {
		return err
	}
	if p.Message == "" {
		return fmt.Errorf("log job %s has no message", job.JID)
	}

	fields := map[string]interface{}{"jid": job.JID, "queue": job.Queue}
	for k, v := range p.Fields {
		fields[k] = v
	}
	h.logger.Log(p.Level, p.Message, fields)
	return nil
}
