package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"worktrack.app/relay/common/id"
	"worktrack.app/relay/common/llm"
	"worktrack.app/relay/common/logger"
	"worktrack.app/relay/common/otel"
	"worktrack.app/relay/core/config"
	"worktrack.app/relay/core/db"
	"worktrack.app/relay/internal/automation"
	"worktrack.app/relay/internal/docstore"
	"worktrack.app/relay/internal/indexer"
	"worktrack.app/relay/internal/metrics"
	"worktrack.app/relay/internal/queue"
	"worktrack.app/relay/internal/store"
	"worktrack.app/relay/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	slog.InfoContext(ctx, "relay worker starting",
		"env", cfg.Env,
		"index_queue", cfg.AMQP.IndexQueue,
		"automation_queue", cfg.AMQP.AutomationQueue)
	for _, warning := range cfg.Warnings() {
		slog.WarnContext(ctx, warning)
	}

	// Use a different node ID than the server
	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	broker := queue.NewBroker(cfg.AMQP, queue.NewTopology(cfg.AMQP))
	if err := broker.Connect(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	stores := store.NewStores(database.Querier())

	syncer := indexer.NewSyncer(stores.WorkItems(), stores.Projections(), docstore.New(cfg.DocStore))
	indexWorker := worker.New(
		queue.NewConsumer(broker, cfg.AMQP.IndexQueue, "relay-indexer"),
		indexer.NewHandler(syncer),
		worker.Config{},
	)

	deps := automation.HandlerDeps{
		Rules:       stores.AutomationRules(),
		Projections: stores.Projections(),
		Guard:       automation.NewMemoryGuard(cfg.Guard.TTL),
	}
	if cfg.Guard.Shared() {
		redisClient, err := automation.NewRedisClient(ctx, cfg.Guard.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		deps.Guard = automation.NewRedisGuard(redisClient, cfg.Guard.TTL)
		slog.InfoContext(ctx, "execution guard shared through redis")
	}
	if cfg.ConditionLLM.Enabled() {
		client, err := llm.New(llm.Config{
			APIKey:  cfg.ConditionLLM.APIKey,
			BaseURL: cfg.ConditionLLM.BaseURL,
			Model:   cfg.ConditionLLM.Model,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create llm client", "error", err)
			os.Exit(1)
		}
		deps.Generator = automation.NewLLMGenerator(client)
		slog.InfoContext(ctx, "condition generation enabled", "model", client.Model())
	}
	automationWorker := worker.New(
		queue.NewConsumer(broker, cfg.AMQP.AutomationQueue, "relay-automation"),
		automation.NewHandler(deps),
		worker.Config{},
	)

	var metricsServer *http.Server
	if cfg.Metrics {
		metrics.Register()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.ErrorContext(ctx, "metrics server error", "error", err)
			}
		}()
	}

	workers := []*worker.Worker{indexWorker, automationWorker}
	errCh := make(chan error, len(workers))
	for _, w := range workers {
		go func() {
			errCh <- w.Run(ctx)
		}()
	}

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop lets in-flight messages finish and settle before Run returns.
	stopped := make(chan struct{})
	go func() {
		for _, w := range workers {
			w.Stop()
		}
		close(stopped)
	}()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case <-stopped:
		for range workers {
			if err := <-errCh; err != nil {
				slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
			}
		}
	}

	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
 ____  _____ _        _ __   __
|  _ \| ____| |      / \\ \ / /
| |_) |  _| | |     / _ \\ V /
|  _ <| |___| |___ / ___ \| |
|_| \_\_____|_____/_/   \_\_|   worker
`
