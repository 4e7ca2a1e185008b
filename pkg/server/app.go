package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SqueezeScan/internal/domain/repository"
	"SqueezeScan/internal/usecase"
	"SqueezeScan/pkg/config"
	xhttp "SqueezeScan/pkg/http"
	applogger "SqueezeScan/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	handler    xhttp.Handler
	store      repository.ResultStore
	events     repository.EventPublisher
	scanner    *usecase.Scanner
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	store repository.ResultStore,
	events repository.EventPublisher,
	scanner *usecase.Scanner,
) *App {
	return &App{
		cfg:     cfg,
		l:       l,
		handler: handler,
		store:   store,
		events:  events,
		scanner: scanner,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("server started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("env", a.cfg.Environment))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown gracefully stops all services. A running scan is cancelled
// so its record reaches a terminal state before the store closes.
func (a *App) shutdown() error {
	if err := a.scanner.Cancel(); err == nil {
		a.l.Info("cancelling running scan")
		a.scanner.Wait()
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.events.Close(); err != nil {
		a.l.Warn("event publisher close error", applogger.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.l.Warn("result store close error", applogger.Error(err))
	}

	a.l.Info("shutdown complete")
	return nil
}
