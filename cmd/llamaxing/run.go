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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/trace"

	"github.com/johannestang/llamaxing/internal/auth"
	"github.com/johannestang/llamaxing/internal/config"
	"github.com/johannestang/llamaxing/internal/dispatch"
	"github.com/johannestang/llamaxing/internal/identity"
	"github.com/johannestang/llamaxing/internal/logsink"
	"github.com/johannestang/llamaxing/internal/observability"
	"github.com/johannestang/llamaxing/internal/provider"
	"github.com/johannestang/llamaxing/internal/relay"
	"github.com/johannestang/llamaxing/internal/server"
	"github.com/johannestang/llamaxing/internal/telemetry"
	"github.com/johannestang/llamaxing/internal/tokencount"
	"github.com/johannestang/llamaxing/internal/worker"
)

// shutdowner is satisfied by both logsink.Sink and observability.Sink;
// lets startup wire both through the same shutdownFunc helper.
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.SetLogLoggerLevel(parseLogLevel(cfg.DebugLevel))
	slog.Info("starting "+cfg.AppName, "version", version, "addr", cfg.Server.Addr)

	ctx := context.Background()

	identityStore, err := buildIdentityStore(cfg.IdentityStore)
	if err != nil {
		return err
	}
	slog.Info("identity store configured", "variant", cfg.IdentityStore.Variant)

	authHandler, err := buildAuthHandler(ctx, cfg.Auth, identityStore)
	if err != nil {
		return err
	}
	slog.Info("auth handler configured", "method", cfg.Auth.Method)

	logSink, shutdownLog, err := buildLogSink(cfg.Logging)
	if err != nil {
		return err
	}
	slog.Info("logging sink configured", "client", cfg.Logging.Client)

	obsSink, shutdownObs := buildObservabilitySink(cfg.Observability)
	slog.Info("observability sink configured", "client", cfg.Observability.Client)

	providers := provider.NewRegistry()
	providers.Register("openai", provider.OpenAI{})
	providers.Register("azure", provider.Azure{})
	providers.Register("ollama", provider.Ollama{})
	slog.Info("providers registered", "providers", providers.List())

	registry, err := dispatch.LoadRegistry(cfg.ModelsFile)
	if err != nil {
		return fmt.Errorf("load model registry: %w", err)
	}
	dispatcher := dispatch.New(registry, providers)
	slog.Info("model registry loaded", "models_file", cfg.ModelsFile, "count", len(dispatcher.Models()))

	// Shared DNS cache and transport for all upstream providers -- mixed
	// remote-HTTPS (openai/azure) and local-HTTP (ollama) targets share one
	// tuned transport since ForceAttemptHTTP2 only takes effect over TLS.
	dnsResolver := &dnscache.Resolver{}
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	bgRunner := worker.NewRunner(worker.NewDNSRefreshWorker(dnsResolver, 5*time.Minute))
	go func() {
		if err := bgRunner.Run(bgCtx); err != nil {
			slog.Error("background worker stopped", "error", err)
		}
	}()

	client := &http.Client{
		Transport: provider.NewTransport(dnsResolver, true),
		Timeout:   cfg.AppRequestsTimeout,
	}

	counter := tokencount.NewHeuristicCounter()
	r := relay.New(client, logSink, obsSink, counter, cfg.DebugLevel == "debug")

	var metrics *telemetry.Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promRegistry.MustRegister(collectors.NewGoCollector())
	metrics = telemetry.NewMetrics(promRegistry)
	metricsHandler := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})

	var tracer trace.Tracer
	var tracingShutdown func(context.Context) error
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		shutdown, err := telemetry.SetupTracing(ctx, endpoint, 0.1)
		if err != nil {
			slog.Warn("tracing setup failed, continuing without tracing", "error", err)
		} else {
			tracingShutdown = shutdown
			tracer = telemetry.Tracer(cfg.AppName + "/server")
			slog.Info("opentelemetry tracing enabled", "endpoint", endpoint)
		}
	}

	handler := server.New(server.Deps{
		Auth:           authHandler,
		Dispatcher:     dispatcher,
		Relay:          r,
		AppName:        cfg.AppName,
		RequestTimeout: cfg.AppRequestsTimeout,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Tracer:         tracer,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info(cfg.AppName+" ready", "addr", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	shutdownLog(shutdownCtx)
	shutdownObs(shutdownCtx)
	if tracingShutdown != nil {
		if err := tracingShutdown(shutdownCtx); err != nil {
			slog.Error("tracing shutdown error", "error", err)
		}
	}

	slog.Info(cfg.AppName + " stopped")
	return nil
}

func buildIdentityStore(cfg config.IdentityStoreConfig) (identity.Store, error) {
	switch cfg.Variant {
	case "json":
		return identity.LoadJSONStore(cfg.JSONFilename)
	case "none", "":
		return identity.NoneStore{}, nil
	default:
		return nil, fmt.Errorf("unknown identity_store variant %q", cfg.Variant)
	}
}

func buildAuthHandler(ctx context.Context, cfg config.AuthConfig, store identity.Store) (auth.Handler, error) {
	switch cfg.Method {
	case "apikey":
		return auth.NewAPIKeyHandler(cfg.APIKeyHeaderName, store)
	case "jwt":
		return auth.NewJWTHandler(ctx, auth.JWTConfig{
			Header:          cfg.JWT.Header,
			IDClaim:         cfg.JWT.IDClaim,
			VerifySignature: cfg.JWT.VerifySignature,
			JWKSURI:         cfg.JWT.JWKSURI,
			Issuer:          cfg.JWT.Issuer,
			Audience:        cfg.JWT.Audience,
		}, store)
	case "none", "":
		return auth.NewNoneHandler(), nil
	default:
		return nil, fmt.Errorf("unknown auth method %q", cfg.Method)
	}
}

// buildLogSink returns the configured Sink and a best-effort shutdown
// closure that swallows and logs its own error, so the caller in run()
// doesn't need a per-sink error branch during shutdown.
func buildLogSink(cfg config.LoggingConfig) (logsink.Sink, func(context.Context), error) {
	switch cfg.Client {
	case "sqlite":
		store, err := logsink.NewSQLiteStore(cfg.SQLite.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open logging sqlite store: %w", err)
		}
		sink := logsink.NewAsyncSink(store)
		return sink, shutdownFunc("logging sink", sink), nil
	case "none", "":
		return logsink.NoneSink{}, func(context.Context) {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown logging client %q", cfg.Client)
	}
}

func buildObservabilitySink(cfg config.ObservabilityConfig) (observability.Sink, func(context.Context)) {
	switch cfg.Client {
	case "langfuse":
		sink := observability.NewLangfuseSink(cfg.Langfuse.Host)
		return sink, shutdownFunc("observability sink", sink)
	default:
		return observability.NoneSink{}, func(context.Context) {}
	}
}

func shutdownFunc(name string, s shutdowner) func(context.Context) {
	return func(ctx context.Context) {
		if err := s.Shutdown(ctx); err != nil {
			slog.Error(name+" shutdown error", "error", err)
		}
	}
}

// parseLogLevel maps `debug_level` onto a slog.Level, defaulting to Info
// for an empty or unrecognized value.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
