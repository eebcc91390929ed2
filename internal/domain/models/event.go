package models

import "time"

// Job event types.
const (
	EventReserved  = "reserved"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// JobEvent records one step of a job's life on a worker.
type JobEvent struct {
	Type      string        `json:"type"`
	JID       string        `json:"jid"`
	Klass     string        `json:"klass"`
	Queue     string        `json:"queue"`
	Worker    string        `json:"worker"`
	Group     string        `json:"group,omitempty"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
