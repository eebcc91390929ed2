package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"Qless/internal/queue"
	"Qless/internal/worker"
	"Qless/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := worker.NewRegistry()
	require.NoError(t, Register(reg, nil))
	assert.Equal(t, []string{Log, Noop}, reg.Names())

	h, err := reg.Resolve(Noop)
	require.NoError(t, err)
	assert.NoError(t, h.Perform(context.Background(), &queue.Job{JID: "j1"}))
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	reg := worker.NewRegistry()
	require.NoError(t, Register(reg, logger.NewWithWriter(&buf, zerolog.DebugLevel, "json", "")))

	h, err := reg.Resolve(Log)
	require.NoError(t, err)

	job := &queue.Job{
		JID:   "j1",
		Queue: "ops",
		Data:  json.RawMessage(`{"level":"warn","message":"disk almost full","fields":{"host":"db-1"}}`),
	}
	require.NoError(t, h.Perform(context.Background(), job))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "disk almost full", line["message"])
	assert.Equal(t, "db-1", line["host"])
	assert.Equal(t, "j1", line["jid"])
}

func TestLogHandlerRejectsBadPayload(t *testing.T) {
	reg := worker.NewRegistry()
	require.NoError(t, Register(reg, nil))
	h, err := reg.Resolve(Log)
	require.NoError(t, err)

	err = h.Perform(context.Background(), &queue.Job{JID: "j1", Data: json.RawMessage(`{}`)})
	assert.ErrorContains(t, err, "no message")

	err = h.Perform(context.Background(), &queue.Job{JID: "j2", Data: json.RawMessage(`[1]`)})
	assert.Error(t, err)
}
