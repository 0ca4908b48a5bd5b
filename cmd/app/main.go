// Package main is the entrypoint for the opsstatus-agent application.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cragr/opsstatus-agent/internal/api"
	"github.com/cragr/opsstatus-agent/internal/config"
	"github.com/cragr/opsstatus-agent/internal/credentials"
	"github.com/cragr/opsstatus-agent/internal/dashboard"
	"github.com/cragr/opsstatus-agent/internal/integration"
	"github.com/cragr/opsstatus-agent/internal/logging"
	"github.com/cragr/opsstatus-agent/internal/metrics"
	"github.com/cragr/opsstatus-agent/internal/models"
	"github.com/cragr/opsstatus-agent/internal/monitoring"
	"github.com/cragr/opsstatus-agent/internal/normalize"
	"github.com/cragr/opsstatus-agent/internal/query"
	"github.com/cragr/opsstatus-agent/internal/servicenow"
	"github.com/cragr/opsstatus-agent/internal/ticket"
	"github.com/cragr/opsstatus-agent/internal/upstream"
	"github.com/cragr/opsstatus-agent/internal/vendor"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults to $"+config.ConfigEnvVar+")")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting opsstatus-agent", "version", version)

	if err := run(cfg, logger); err != nil {
		logger.Error("opsstatus-agent stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	userAgent := cfg.Upstream.UserAgent
	if userAgent == "" {
		userAgent = "opsstatus-agent/" + version
	}

	logger.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"store_backend", cfg.Store.Backend,
		"refresh_interval", cfg.Refresh.Interval,
		"time_zone", loc.String(),
		"date_fallback", cfg.Normalize.DateFallback,
		"vendor_count", len(cfg.Vendors.Probes),
	)

	// Prometheus registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Integration config store
	backend, err := newBackend(cfg.Store)
	if err != nil {
		return err
	}
	store := integration.NewStore(backend, logging.WithComponent(logger, "integration"))
	defer store.Close()

	// Credentials: environment first, then the optional dotenv file
	resolver := credentials.Chain{credentials.Env}
	if cfg.CredentialsFile != "" {
		fileCreds, err := credentials.LoadDotenv(cfg.CredentialsFile)
		if err != nil {
			return err
		}
		resolver = append(resolver, fileCreds)
	}

	// Upstream clients
	httpClient := upstream.NewClient(cfg.Upstream.RequestTimeout, userAgent, logging.WithComponent(logger, "upstream"))
	snowClient := servicenow.NewClient(httpClient, logging.WithComponent(logger, "servicenow"))
	monitoringClient := monitoring.NewClient(httpClient, logging.WithComponent(logger, "monitoring"))
	poller := vendor.NewPoller(vendor.Config{
		UserAgent:   userAgent,
		Timeout:     cfg.Vendors.Timeout,
		Concurrency: cfg.Vendors.Concurrency,
	}, logging.WithComponent(logger, "vendor"))

	normalizer := normalize.New(logging.WithComponent(logger, "normalize"),
		normalize.WithDateParser(normalize.NewDateParser(loc)),
		normalize.WithFallbackPolicy(normalize.FallbackPolicy(cfg.Normalize.DateFallback)),
		normalize.WithFallbackHook(func(kind models.IntegrationKind, field string) {
			metrics.ObserveDateFallback(string(kind), field)
		}),
	)

	svc := dashboard.NewService(dashboard.Deps{
		Configs:     store,
		Tables:      snowClient,
		Alerts:      monitoringClient,
		Vendors:     poller,
		Credentials: resolver,
		Normalizer:  normalizer,
		Queries:     query.NewBuilder(),
		VendorSpecs: cfg.Vendors.Probes,
		Location:    loc,
	}, logging.WithComponent(logger, "dashboard"))

	refresher := dashboard.NewRefresher(svc, cfg.Refresh.Interval, logging.WithComponent(logger, "refresher"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go refresher.Run(ctx)

	// Setup HTTP routes
	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(svc, refresher, store, ticket.NewTransformer(cfg.Tickets), logging.WithComponent(logger, "api"))
	ready := func(ctx context.Context) error {
		_, err := store.Get(ctx, models.KindOutage)
		return err
	}
	router := api.NewRouter(handler, ready, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logging.WithComponent(logger, "http"))

	// Create HTTP server
	addr := fmt.Sprintf(":%s", cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Upstream.RequestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func newBackend(cfg config.StoreConfig) (integration.Backend, error) {
	switch cfg.Backend {
	case "redis":
		return integration.NewRedisBackend(integration.RedisConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
			TLSEnabled:  cfg.Redis.TLS,
			KeyPrefix:   cfg.Redis.KeyPrefix,
		})
	case "sqlite":
		return integration.NewSQLiteBackend(cfg.SQLite.Path)
	default:
		return integration.NewMemoryBackend(), nil
	}
}
