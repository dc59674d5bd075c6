package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/ratefeed/internal/bus"
	"github.com/adred-codev/ratefeed/internal/config"
	"github.com/adred-codev/ratefeed/internal/monitoring"
	"github.com/adred-codev/ratefeed/internal/poller"
	"github.com/adred-codev/ratefeed/internal/rates"
	"github.com/adred-codev/ratefeed/internal/server"
	"github.com/adred-codev/ratefeed/internal/storage"
	"github.com/adred-codev/ratefeed/internal/symbols"
	"github.com/adred-codev/ratefeed/internal/workerpool"
)

func main() {
	bootLogger := monitoring.NewLogger(monitoring.LoggerConfig{Level: "info", Format: "json"})

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := monitoring.NewLogger(monitoring.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(logger)

	table, err := symbols.Parse(cfg.AvailableSymbols)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid symbol table")
	}

	repo, err := storage.Build(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build repository")
	}
	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	if err := repo.Initialize(initCtx); err != nil {
		cancelInit()
		logger.Fatal().Err(err).Msg("Failed to initialize repository")
	}
	cancelInit()

	var publisher rates.Publisher
	var natsPublisher *bus.PointPublisher
	if cfg.NATSURL != "" {
		natsPublisher, err = bus.NewPointPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect NATS publisher")
		}
		publisher = natsPublisher
	}

	notifierPool := workerpool.New(workerpool.Config{
		Name:        "notifier",
		Concurrency: cfg.NotifierConcurrency,
		QueueSize:   cfg.NotifierQueueSize,
		Timeout:     cfg.WorkerTimeout,
	}, logger)
	dbPool := workerpool.New(workerpool.Config{
		Name:        "db",
		Concurrency: cfg.DBConcurrency,
		QueueSize:   cfg.DBQueueSize,
		Timeout:     cfg.WorkerTimeout,
	}, logger)
	notifierPool.Start()
	dbPool.Start()

	feed := poller.New(cfg.ParserURL, cfg.ParserInterval, cfg.ParserTimeout, logger)
	service := rates.NewService(
		repo,
		feed,
		notifierPool,
		dbPool,
		publisher,
		table,
		time.Duration(cfg.HistoryPeriod)*time.Second,
		logger,
	)

	srv := server.New(cfg, service, logger)
	sysmon := monitoring.NewSystemMonitor(logger, cfg.MetricsInterval)

	runCtx, cancelRun := context.WithCancel(context.Background())
	go service.Run(runCtx)
	go sysmon.Run(runCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}

	// Ordered shutdown: stop producing, drain sessions, flush the pools,
	// then release external connections.
	cancelRun()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Server shutdown failed")
	}

	notifierPool.Stop()
	dbPool.Stop()

	if natsPublisher != nil {
		natsPublisher.Close()
	}
	closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelClose()
	if err := repo.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("Repository close failed")
	}

	logger.Info().Msg("Shutdown complete")
}
