package di

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"Qless/internal/domain/repository"
	"Qless/internal/handler/api"
	"Qless/internal/jobs"
	"Qless/internal/queue"
	internalrepo "Qless/internal/repository"
	"Qless/internal/reserver"
	"Qless/internal/worker"
	"Qless/pkg/backend"
	pkgch "Qless/pkg/clickhouse"
	"Qless/pkg/config"
	xhttp "Qless/pkg/http"
	pkgkafka "Qless/pkg/kafka"
	"Qless/pkg/logger"
	"Qless/pkg/metrics"
	"Qless/pkg/server"
)

const connectTimeout = 10 * time.Second

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRegistry creates the handler registry with the built-in handlers.
func ProvideRegistry(l *logger.Logger) (*worker.Registry, error) {
	reg := worker.NewRegistry()
	if err := jobs.Register(reg, l); err != nil {
		return nil, err
	}
	return reg, nil
}

func redisOptions(cfg *config.Config) []backend.RedisOption {
	return []backend.RedisOption{
		backend.WithAddr(cfg.Redis.Addr),
		backend.WithPassword(cfg.Redis.Password),
		backend.WithDB(cfg.Redis.DB),
		backend.WithPoolSize(cfg.Redis.PoolSize),
		backend.WithTimeouts(cfg.Redis.DialTimeout, cfg.Redis.ReadTimeout, cfg.Redis.WriteTimeout),
	}
}

// ProvideBackendClient opens the control connection used by the HTTP API and
// writes startup settings to the store.
func ProvideBackendClient(cfg *config.Config) (*backend.Client, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	rc, err := backend.NewRedisClient(ctx, redisOptions(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("backend client: %w", err)
	}
	client := backend.NewClient(rc)

	if hb := cfg.Backend.Heartbeat; hb > 0 {
		secs := strconv.FormatInt(int64(hb.Round(time.Second)/time.Second), 10)
		if _, err := client.Call(ctx, "config.set", "heartbeat", secs); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("backend heartbeat: %w", err)
		}
	}

	return client, func() { _ = client.Close() }, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when the Kafka sink is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	kc := cfg.Events.Kafka
	if !kc.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(kc.Brokers),
		pkgkafka.WithTopic(kc.Topic),
		pkgkafka.WithCompression(kc.Compression),
		pkgkafka.WithRequiredAcks(kc.RequiredAcks),
		pkgkafka.WithBatchTimeout(kc.BatchTimeout),
		pkgkafka.WithAsync(kc.Async),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideClickHouseClient creates a ClickHouse client with the history table
// in place, or nil when the ClickHouse sink is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	cc := cfg.Events.ClickHouse
	if !cc.Enabled {
		return nil, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cc.Host),
		pkgch.WithPort(cc.Port),
		pkgch.WithDatabase(cc.Database),
		pkgch.WithCredentials(cc.User, cc.Password),
		pkgch.WithDialTimeout(cc.DialTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if err := client.InitSchema(ctx, internalrepo.HistorySchema(cc.Table)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideHub creates the websocket event hub.
func ProvideHub(l *logger.Logger) *api.Hub {
	return api.NewHub(l)
}

// ProvideEventSink combines the hub with whichever external sinks are enabled.
func ProvideEventSink(
	cfg *config.Config,
	l *logger.Logger,
	hub *api.Hub,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
) repository.EventSink {
	sinks := internalrepo.MultiSink{hub}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaEventPublisher(producer))
	}
	if ch != nil {
		sinks = append(sinks, internalrepo.NewClickHouseHistory(ch.DB(), cfg.Events.ClickHouse.Table, l))
	}
	return sinks
}

// WorkerBuilder returns the BuildFunc the supervisor uses. Each worker gets
// its own backend connection, queue handles and reserver.
func WorkerBuilder(
	cfg *config.Config,
	l *logger.Logger,
	reg *worker.Registry,
	m repository.Metrics,
	sink repository.EventSink,
) worker.BuildFunc {
	return func(ctx context.Context, index int) (*worker.Worker, io.Closer, error) {
		kind, err := reserver.ParseKind(cfg.Worker.Strategy)
		if err != nil {
			return nil, nil, err
		}

		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		rc, err := backend.NewRedisClient(connCtx, redisOptions(cfg)...)
		if err != nil {
			return nil, nil, err
		}
		client := backend.NewClient(rc)

		queues := make([]*queue.Queue, 0, len(cfg.Worker.Queues))
		for _, name := range cfg.Worker.Queues {
			q, err := queue.New(name, client)
			if err != nil {
				return nil, client, err
			}
			queues = append(queues, q)
		}

		name := WorkerName(cfg.Worker.Name, cfg.Worker.Processes, index)

		// The worker adds its own name to every line it logs.
		strategy, err := reserver.New(kind, queues, reserver.WithWorker(name), reserver.WithLogger(l))
		if err != nil {
			return nil, client, err
		}

		w, err := worker.New(strategy,
			worker.WithName(name),
			worker.WithInterval(cfg.Worker.Interval),
			worker.WithLogger(l),
			worker.WithRegistry(reg),
			worker.WithMetrics(m),
			worker.WithEventSink(sink),
		)
		if err != nil {
			return nil, client, err
		}
		if cfg.Worker.Handler != "" {
			if err := w.RegisterJobPerformHandler(cfg.Worker.Handler); err != nil {
				return nil, client, err
			}
		}
		return w, client, nil
	}
}

// WorkerName derives the name of worker index. With more than one process the
// index is appended so backend locks stay distinct.
func WorkerName(base string, processes, index int) string {
	if base == "" {
		base = queue.DefaultWorkerName()
	}
	if processes > 1 {
		return fmt.Sprintf("%s-%d", base, index)
	}
	return base
}

// ProvideSupervisor creates the worker supervisor.
func ProvideSupervisor(
	cfg *config.Config,
	l *logger.Logger,
	reg *worker.Registry,
	m repository.Metrics,
	sink repository.EventSink,
) (*worker.Supervisor, error) {
	return worker.NewSupervisor(cfg.Worker.Processes, WorkerBuilder(cfg, l, reg, m, sink), l)
}

// ProvideAPIHandler creates the HTTP API handler.
func ProvideAPIHandler(l *logger.Logger, sup *worker.Supervisor, client *backend.Client, hub *api.Hub) *api.Handler {
	return api.NewHandler(l, sup, client, hub)
}

// ProvideHTTPServer creates the HTTP server, or nil when it is disabled.
func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, h *api.Handler) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	return xhttp.NewServer(h,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
	)
}

// ProvideApp creates the application.
func ProvideApp(
	l *logger.Logger,
	sup *worker.Supervisor,
	httpServer *xhttp.Server,
	sink repository.EventSink,
) *server.App {
	return server.New(l, sup, httpServer, sink)
}
