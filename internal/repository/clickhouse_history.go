package repository

import (
	"context"
	"database/sql"
	"fmt"

	"Qless/internal/domain/models"
	"Qless/internal/domain/repository"
	"Qless/pkg/logger"
)

// Execer is the part of *sql.DB the history sink needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ClickHouseHistory records one row per finished job run.
type ClickHouseHistory struct {
	db    Execer
	table string
	l     *logger.Logger
}

// NewClickHouseHistory creates a history sink writing to table.
func NewClickHouseHistory(db Execer, table string, l *logger.Logger) repository.EventSink {
	if l == nil {
		l = logger.Nop()
	}
	return &ClickHouseHistory{db: db, table: table, l: l}
}

// HistorySchema returns the DDL for the history table.
func HistorySchema(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ts            DateTime64(3),
            jid           String,
            klass         LowCardinality(String),
            queue         LowCardinality(String),
            worker        String,
            outcome       LowCardinality(String),
            failure_group String,
            message       String,
            duration_ms   UInt64
        ) ENGINE = MergeTree
        ORDER BY (queue, ts)
    `, table)}
}

// Publish stores completed and failed events; reservations are skipped.
func (h *ClickHouseHistory) Publish(ctx context.Context, ev models.JobEvent) error {
	if ev.Type != models.EventCompleted && ev.Type != models.EventFailed {
		return nil
	}

	q := fmt.Sprintf("INSERT INTO %s (ts, jid, klass, queue, worker, outcome, failure_group, message, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", h.table)
	_, err := h.db.ExecContext(ctx, q,
		ev.Timestamp,
		ev.JID,
		ev.Klass,
		ev.Queue,
		ev.Worker,
		ev.Type,
		ev.Group,
		ev.Message,
		uint64(ev.Duration.Milliseconds()),
	)
	if err != nil {
		h.l.Error("clickhouse job history insert error",
			logger.String("table", h.table),
			logger.String("jid", ev.JID),
			logger.Error(err))
		return fmt.Errorf("insert job history: %w", err)
	}
	return nil
}

func (h *ClickHouseHistory) Close() error {
	return nil // pool owned by pkg/clickhouse.Client
}
