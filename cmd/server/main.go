// Command server runs the business verification gateway. main is the
// composition root: every dependency is constructed here and injected
// explicitly.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veristry/internal/audit"
	auditkafka "veristry/internal/audit/store/kafka"
	auditmemory "veristry/internal/audit/store/memory"
	auditpostgres "veristry/internal/audit/store/postgres"
	"veristry/internal/cache"
	"veristry/internal/checker"
	"veristry/internal/checker/remote"
	"veristry/internal/consent"
	"veristry/internal/platform/config"
	"veristry/internal/platform/httpserver"
	"veristry/internal/platform/logger"
	platformredis "veristry/internal/platform/redis"
	"veristry/internal/resilience"
	"veristry/internal/verify"
	"veristry/internal/verify/handler"
	verifymetrics "veristry/internal/verify/metrics"
	"veristry/pkg/platform/httputil"
)

func main() {
	cfg := config.FromEnv()

	log := logger.New(cfg.LogFile)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cache backend: Redis when configured, in-process otherwise.
	var store cache.Store
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		store = cache.NewRedis(redisClient)
		log.Info("cache backend ready", "backend", "redis")
	} else {
		mem := cache.NewMemory()
		go mem.Janitor(ctx, time.Minute)
		store = mem
		log.Info("cache backend ready", "backend", "memory")
	}
	loader := cache.NewLoader(store, log)

	// Audit pipeline: bounded sink drained by one worker into the stores.
	auditStore := auditmemory.New()
	appenders := []audit.Appender{auditStore}
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		pg := auditpostgres.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		appenders = append(appenders, pg)
		log.Info("audit store ready", "backend", "postgres")
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := auditkafka.New(cfg.Kafka)
		if err != nil {
			return err
		}
		defer publisher.Close()
		appenders = append(appenders, publisher)
		log.Info("audit stream ready", "topic", cfg.Kafka.Topic)
	}
	sink := audit.NewSink(cfg.Audit, log)
	worker := audit.NewWorker(audit.MultiAppender(appenders), sink, log)
	// The worker outlives the signal context: requests still draining during
	// server shutdown keep emitting audit records.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = worker.Run(workerCtx)
	}()

	// Resilience and checkers.
	breakers := resilience.NewBreakerRegistry(cfg.Breaker)
	wrapper := resilience.NewWrapper(breakers, cfg.Retry, sink, log)

	manifest, err := checker.DefaultManifest()
	if err != nil {
		return err
	}
	client := remote.NewHTTPClient(
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Orchestrator.Timeout}),
	)
	registry := checker.NewRegistry(manifest, client, wrapper, log)

	metrics := verifymetrics.New(prometheus.DefaultRegisterer)
	orchestrator := verify.NewOrchestrator(verify.OrchestratorParams{
		Registry:      registry,
		Loader:        loader,
		Consent:       consent.NewValidator(cfg.ConsentSigningKey),
		Sink:          sink,
		Metrics:       metrics,
		Logger:        log,
		Orchestration: cfg.Orchestrator,
		CacheTTL:      cfg.Cache,
	})
	service := verify.NewService(orchestrator, metrics, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Route("/v1", handler.New(service, log).Routes)

	srv := httpserver.New(cfg.Addr, router, cfg.Orchestrator.Timeout)
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	stopWorker()
	<-workerDone
	if dropped := sink.Dropped(); dropped > 0 {
		log.Warn("audit records dropped under backpressure", "count", dropped)
	}
	return nil
}
