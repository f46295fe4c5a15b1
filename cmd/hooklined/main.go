package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hooklinehq/hookline/internal/api"
	"github.com/hooklinehq/hookline/internal/breaker"
	"github.com/hooklinehq/hookline/internal/config"
	"github.com/hooklinehq/hookline/internal/engine"
	nsqsink "github.com/hooklinehq/hookline/internal/events/nsq"
	"github.com/hooklinehq/hookline/internal/health"
	"github.com/hooklinehq/hookline/internal/logging"
	"github.com/hooklinehq/hookline/internal/metrics"
	"github.com/hooklinehq/hookline/internal/store/postgres"
	"github.com/hooklinehq/hookline/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("hooklined")

	shutdown, err := tracing.Init(ctx, "hooklined")
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	// Store selection: in-memory by default, postgres behind the same
	// interfaces when configured.
	var (
		deliveries engine.DeliveryStore
		dlq        engine.DeadLetterStore
		pinger     health.Pinger
	)
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			logger.Plain().WithError(err).Fatal("db connect failed")
		}
		defer pool.Close()
		deliveries = postgres.NewDeliveryStore(pool)
		dlq = postgres.NewDeadLetterStore(pool)
		pinger = pool
	default:
		deliveries = engine.NewMemoryDeliveryStore()
		dlq = engine.NewMemoryDeadLetterStore()
	}

	engCfg := engine.Config{
		MaxAttempts:      cfg.Engine.MaxAttempts,
		DLQAfterAttempts: cfg.Engine.DLQAfterAttempts,
		Backoff: engine.BackoffConfig{
			InitialDelay: cfg.Engine.InitialDelay,
			Multiplier:   cfg.Engine.BackoffMultiplier,
			MaxDelay:     cfg.Engine.MaxDelay,
			Jitter:       cfg.Engine.Jitter,
		},
		RetryableStatuses: cfg.Engine.RetryableStatuses,
		AttemptTimeout:    cfg.Engine.AttemptTimeout,
		BatchSize:         cfg.Engine.BatchSize,
		DLQTTL:            cfg.Engine.DLQTTL,
		DLQRetryLimit:     3,
		SigningSecret:     cfg.Signing.Secret,
		SignatureHeader:   cfg.Signing.Header,
		Breaker: breaker.Config{
			FailureThreshold:    cfg.Breaker.FailureThreshold,
			SuccessThreshold:    cfg.Breaker.SuccessThreshold,
			Cooldown:            cfg.Breaker.Cooldown,
			HalfOpenMaxAttempts: cfg.Breaker.HalfOpenMaxAttempts,
		},
	}

	opts := []engine.Option{engine.WithSink(engine.NewLogSink(logger))}
	if cfg.NSQ.Enabled {
		sink, err := nsqsink.NewSink(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.EventsTopic)
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq event sink creation failed")
		}
		defer sink.Stop()
		opts = append(opts, engine.WithSink(sink))
	}

	eng := engine.New(engCfg, deliveries, dlq, opts...)

	// Background processor: retry draining plus opportunistic DLQ purge.
	procCtx, stopProc := context.WithCancel(ctx)
	defer stopProc()
	processor := engine.NewProcessor(eng, cfg.Engine.TickInterval)
	go processor.Run(procCtx)

	// Prom metrics
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.Handle("/healthz", health.HTTPHandler(pinger))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", api.Handlers(eng))

	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("engine HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("engine HTTP server failed")
		}
	}()

	logger.Plain().Info("delivery engine started")

	// Graceful stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down delivery engine")
	stopProc()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	logger.Plain().Info("delivery engine stopped")
}
