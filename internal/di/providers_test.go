package di

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"Qless/internal/handler/api"
	internalrepo "Qless/internal/repository"
	"Qless/internal/worker"
	"Qless/pkg/config"
	"Qless/pkg/logger"
	"Qless/pkg/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, addr string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
environment: test
logging: {level: error}
worker:
  name: di
  queues: [high, low]
  strategy: round-robin
  interval: 20ms
  processes: 2
`))
	require.NoError(t, err)
	cfg.Redis.Addr = addr
	return cfg
}

func TestWorkerName(t *testing.T) {
	assert.Equal(t, "box", WorkerName("box", 1, 0))
	assert.Equal(t, "box-3", WorkerName("box", 4, 3))
	assert.NotEmpty(t, WorkerName("", 1, 0))
}

func TestWorkerBuilder(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())

	reg, err := ProvideRegistry(logger.Nop())
	require.NoError(t, err)
	build := WorkerBuilder(cfg, logger.Nop(), reg, metrics.Nop{}, internalrepo.MultiSink{})

	w, closer, err := build(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer.Close()

	st := w.Status()
	assert.Equal(t, "di-1", st.Name)
	assert.Equal(t, "high, low (round robin)", st.Strategy)
	assert.Equal(t, 20*time.Millisecond, w.Interval())
}

func TestWorkerBuilderRejectsUnknownHandler(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	cfg.Worker.Handler = "nope"

	build := WorkerBuilder(cfg, logger.Nop(), worker.NewRegistry(), metrics.Nop{}, internalrepo.MultiSink{})
	_, closer, err := build(context.Background(), 0)
	assert.Error(t, err)
	require.NotNil(t, closer)
	assert.NoError(t, closer.Close())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWorkerBuilderLogsNameOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())

	var out lockedBuffer
	l := logger.NewWithWriter(&out, zerolog.DebugLevel, "json", "")
	build := WorkerBuilder(cfg, l, worker.NewRegistry(), metrics.Nop{}, internalrepo.MultiSink{})

	w, closer, err := build(context.Background(), 0)
	require.NoError(t, err)
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Run(ctx))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.LessOrEqual(t, strings.Count(line, `"worker":`), 1, line)
	}
	assert.Contains(t, out.String(), `"worker":"di-0"`)
}

func TestProvideKafkaProducerCleanupClosesWriter(t *testing.T) {
	cfg := testConfig(t, "localhost:6379")
	cfg.Events.Kafka.Enabled = true
	cfg.Events.Kafka.Brokers = []string{"127.0.0.1:9092"}

	producer, cleanup, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	require.NotNil(t, producer)

	cleanup()
	err = producer.Publish(context.Background(), []byte("j1"), "payload")
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestProvideBackendClientWritesHeartbeat(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	cfg.Backend.Heartbeat = 90 * time.Second

	client, cleanup, err := ProvideBackendClient(cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "90", mr.HGet("ql:config", "heartbeat"))
	res, err := client.Call(context.Background(), "config.get", "heartbeat")
	require.NoError(t, err)
	assert.Equal(t, "90", res)
}

func TestDisabledSinks(t *testing.T) {
	cfg := testConfig(t, "localhost:6379")

	producer, closeProducer, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, producer)
	closeProducer()

	ch, cleanup, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)
	cleanup()

	hub := api.NewHub(nil)
	sink := ProvideEventSink(cfg, logger.Nop(), hub, nil, nil)
	assert.Len(t, sink, 1)

	cfg.Server.Enabled = false
	assert.Nil(t, ProvideHTTPServer(cfg, logger.Nop(), nil))
}

func TestInitializeApp(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())

	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, app.Run(ctx))
}
