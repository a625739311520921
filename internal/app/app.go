// Package app wires the ingest server, the batcher and the sink lifecycle
// controller into one process with graceful shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"logship/internal/config"
	"logship/internal/dispatch"
	"logship/internal/lifecycle"
	"logship/internal/sinks"
	"logship/pkg/types"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// App is the shipping daemon: an HTTP ingest surface feeding a batcher whose
// flushes fan out to every started sink.
type App struct {
	config *types.Config
	logger *logrus.Logger

	controller *lifecycle.Controller
	batcher    *dispatch.Batcher
	clients    []types.SinkClient

	httpServer *http.Server
	startTime  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads and validates configuration and assembles the daemon. Nothing is
// connected yet; sinks come up in Start.
func New(configFile string) (*App, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.App.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	app.clients = sinks.Build(cfg.Sinks, logger)
	app.controller = lifecycle.NewController(logger, app.clients...)
	app.batcher = dispatch.NewBatcher(cfg.Batch, func(batch types.Batch) {
		app.controller.Dispatch(app.ctx, batch)
	}, logger)

	app.initializeHTTPServer()

	return app, nil
}

func (app *App) initializeHTTPServer() {
	router := mux.NewRouter()
	app.registerHandlers(router)

	addr := fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port)
	app.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  parseDurationSafe(app.config.Server.ReadTimeout, 10*time.Second),
		WriteTimeout: parseDurationSafe(app.config.Server.WriteTimeout, 10*time.Second),
	}
}

// Start brings up the sinks, the batcher and the ingest server. A sink that
// fails to initialize is skipped, not fatal; the daemon only refuses to start
// when no sink at all came up.
func (app *App) Start() error {
	app.logger.WithField("name", app.config.App.Name).Info("Starting log shipper")

	started := app.controller.Startup(app.ctx)
	if started == 0 {
		return fmt.Errorf("no sinks started")
	}

	app.batcher.Start()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.logger.WithField("addr", app.httpServer.Addr).Info("Starting HTTP server")
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.WithError(err).Error("HTTP server error")
		}
	}()

	app.logger.WithField("sinks", started).Info("Log shipper started")
	return nil
}

// Stop tears the daemon down in reverse order: stop accepting records, flush
// what is buffered, then close the sinks.
func (app *App) Stop() error {
	app.logger.Info("Stopping log shipper")

	if app.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		app.httpServer.Shutdown(ctx)
	}

	app.batcher.Stop()
	app.controller.Shutdown()
	app.cancel()
	app.wg.Wait()

	app.logger.Info("Log shipper stopped")
	return nil
}

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func (app *App) Run() error {
	if err := app.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	app.logger.Info("Shutdown signal received")

	return app.Stop()
}

func parseDurationSafe(durationStr string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(durationStr); err == nil {
		return d
	}
	return fallback
}
