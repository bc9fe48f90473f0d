package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/groomly/libs/db"
	"github.com/md-rashed-zaman/groomly/libs/httpx"
	"github.com/md-rashed-zaman/groomly/libs/kafkax"
	otelx "github.com/md-rashed-zaman/groomly/libs/otel"
	"github.com/md-rashed-zaman/groomly/libs/runtime"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/recovery"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage/memory"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(reg)

	var (
		store       storage.Store
		readyChecks []runtime.ReadyCheck
	)
	switch cfg.Store {
	case storeMemory:
		mem := memory.New()
		store = mem
		logger.Warn("using in-memory store; data is lost on restart")
		go logMemoryEvents(ctx, mem, logger)
	default:
		pool, err := db.OpenWithConfig(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: int32(cfg.DBMaxConns), MinConns: 1})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		store = postgres.New(pool)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		if cfg.KafkaBrokers != "" {
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
		}
		publisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		}).WithObserver(bookingMetrics)
		go publisher.Run(ctx)
	}

	var sender notify.Sender = notify.NewLogSender(logger)
	if cfg.NotifyWebhookURL != "" {
		sender = notify.NewWebhookSender(cfg.NotifyWebhookURL, cfg.NotifyWebhookToken)
	}

	engine := availability.New(store, availability.Config{
		StepMinutes:     cfg.StepMinutes,
		SuggestionDays:  cfg.SuggestionDays,
		SuggestionCount: cfg.SuggestionCount,
		Location:        cfg.Location,
	}, logger)

	coordinator := recovery.NewCoordinator(store, engine, sender, bookingMetrics, logger, recovery.Config{
		Delay:       cfg.RecoveryDelay,
		Interval:    cfg.RecoveryInterval,
		MaxFailures: cfg.RecoveryMaxFailures,
	})
	go coordinator.Run(ctx)

	if cfg.KafkaBrokers != "" && cfg.KafkaReplyTopic != "" {
		replies := consumer.New(store, logger, consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.KafkaReplyTopic,
		}, consumer.RepliesHandler(coordinator, logger))
		go replies.Run(ctx)
	}

	manager := lifecycle.NewManager(lifecycle.Deps{
		Store:      store,
		Engine:     engine,
		Recovery:   coordinator,
		Sender:     sender,
		Recomputer: notify.NewMetricsWebhook(cfg.MetricsWebhookURL),
		Metrics:    bookingMetrics,
		Logger:     logger,
	})

	rateLimit := httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		rateLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "").Middleware(logger, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Logger:         logger,
		Booking:        handlers.NewBookingHandler(manager, engine, logger),
		Admin:          handlers.NewAdminHandler(store, logger, cfg.RejectOverlap),
		RateLimit:      rateLimit,
		ReadyChecks:    readyChecks,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORS: httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader, httpx.TenantHeader},
			ExposedHeaders: []string{httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "booking"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "store", cfg.Store, "timezone", cfg.Location.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// logMemoryEvents stands in for the outbox publisher when running without
// Postgres.
func logMemoryEvents(ctx context.Context, store *memory.Store, logger *slog.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, evt := range store.DrainEvents() {
				logger.Info("event",
					"event_type", evt.EventType,
					"tenant_id", evt.TenantID,
					"aggregate_id", evt.AggregateID,
					"payload", string(evt.Payload),
				)
			}
		}
	}
}
