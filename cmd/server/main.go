package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"worktrack.app/relay/common/id"
	"worktrack.app/relay/common/logger"
	"worktrack.app/relay/common/otel"
	"worktrack.app/relay/core/config"
	"worktrack.app/relay/core/db"
	"worktrack.app/relay/internal/docstore"
	"worktrack.app/relay/internal/http/middleware"
	httprouter "worktrack.app/relay/internal/http/router"
	"worktrack.app/relay/internal/metrics"
	"worktrack.app/relay/internal/queue"
	"worktrack.app/relay/internal/service"
	"worktrack.app/relay/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "relay starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	for _, warning := range cfg.Warnings() {
		slog.WarnContext(ctx, warning)
	}

	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}
	if cfg.Metrics {
		metrics.Register()
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

	dispatcher := service.NewEventDispatcher(queue.NewProducer(broker))
	services := service.NewServices(
		store.NewStores(database.Querier()),
		service.NewTxRunner(database),
		dispatcher,
		docstore.New(cfg.DocStore),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	// Flush events emitted by requests that completed before shutdown.
	if err := dispatcher.Close(shutdownCtx); err != nil {
		slog.WarnContext(shutdownCtx, "pending events not published before shutdown", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		Metrics: cfg.Metrics,
	})

	return router
}

const banner = `
 ____  _____ _        _ __   __
|  _ \| ____| |      / \\ \ / /
| |_) |  _| | |     / _ \\ V /
|  _ <| |___| |___ / ___ \| |
|_| \_\_____|_____/_/   \_\_|   api
`
