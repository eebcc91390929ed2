package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Qless/internal/domain/repository"
	"Qless/internal/worker"
	xhttp "Qless/pkg/http"
	"Qless/pkg/logger"
)

// App encapsulates the worker process lifecycle.
type App struct {
	logger     *logger.Logger
	supervisor *worker.Supervisor
	httpServer *xhttp.Server
	sink       repository.EventSink
}

// New creates a new App. httpServer and sink may be nil.
func New(l *logger.Logger, sup *worker.Supervisor, httpServer *xhttp.Server, sink repository.EventSink) *App {
	if l == nil {
		l = logger.Nop()
	}
	return &App{
		logger:     l,
		supervisor: sup,
		httpServer: httpServer,
		sink:       sink,
	}
}

// Run starts the HTTP server and the workers and blocks until ctx is
// cancelled, SIGINT or SIGTERM arrives, or a worker fails to start. In-flight
// jobs are finished and reported before Run returns.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var httpErrs <-chan error
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("http server start error", logger.Error(err))
			return err
		}
		httpErrs = a.httpServer.Errors()
	}

	done := make(chan error, 1)
	go func() { done <- a.supervisor.Run(ctx) }()
	a.logger.Info("application started")

	var runErr error
	select {
	case runErr = <-done:
	case err := <-httpErrs:
		runErr = fmt.Errorf("http server: %w", err)
		stop()
		if err := <-done; err != nil {
			a.logger.Error("supervisor error", logger.Error(err))
		}
	}

	if runErr != nil {
		a.logger.Error("application stopped with error", logger.Error(runErr))
	} else {
		a.logger.Info("shutdown signal received")
	}
	a.shutdown()
	return runErr
}

// shutdown stops the HTTP server and closes event sinks.
func (a *App) shutdown() {
	if a.httpServer != nil {
		if err := a.httpServer.Stop(context.Background()); err != nil {
			a.logger.Error("http shutdown error", logger.Error(err))
		}
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Warn("event sink close error", logger.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}
