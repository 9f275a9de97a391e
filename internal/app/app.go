package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/domain/discount"
	"github.com/xenking/discount-engine/internal/handler"
	"github.com/xenking/discount-engine/internal/observe"
	"github.com/xenking/discount-engine/internal/storage/cache"
	"github.com/xenking/discount-engine/internal/storage/postgres"
	"github.com/xenking/discount-engine/pkg/health"
	"github.com/xenking/discount-engine/pkg/httpmiddleware"
)

const serviceName = "discount-engine"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Candidate cache.
	var candidateCache discount.Cache
	switch cfg.Cache.Backend {
	case CacheRedis:
		client, err := cache.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = client.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}, health.WithThresholds(3, 1))
		candidateCache = cache.NewRedis(client)
	case CacheMemory:
		candidateCache = cache.NewMemory(cfg.Cache.TTL, 2*cfg.Cache.TTL)
	}

	// Diagnostics.
	metrics, err := observe.NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}
	sinks := observe.Multi{observe.Log{}, metrics}
	if len(cfg.Kafka.Brokers) > 0 {
		events, err := observe.NewKafka(observe.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, lg.Named("kafka"))
		if err != nil {
			return errors.Wrap(err, "create kafka sink")
		}
		defer func() {
			if err := events.Close(); err != nil {
				lg.Warn("Close kafka sink", zap.Error(err))
			}
		}()
		sinks = append(sinks, events)
	}

	loc, err := cfg.location()
	if err != nil {
		lg.Warn("Falling back to UTC", zap.Error(err))
	}

	// Discount engine.
	engine := discount.NewEngine(discount.Deps{
		Discounts:   postgres.NewDiscountStore(pool),
		Codes:       postgres.NewCodeStore(pool),
		Redemptions: postgres.NewRedemptionStore(pool),
		Customers:   postgres.NewCustomerStore(pool),
		Catalog:     postgres.NewCatalogStore(pool),
		Cache:       candidateCache,
	},
		discount.WithCandidateTTL(cfg.Cache.TTL),
		discount.WithLocation(loc),
		discount.WithSink(sinks),
	)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Router: health endpoints + API routes on one server. Route-aware
	// middlewares run inside chi so the matched pattern is known.
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Route("/api", func(r chi.Router) {
		r.Use(
			httpmiddleware.Instrument(serviceName, httpmiddleware.ChiRoute, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(httpmiddleware.ChiRoute),
		)
		handler.New(engine).Mount(r)
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
