package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/repressales/salescart/internal/cart"
	"github.com/repressales/salescart/internal/catalog"
	"github.com/repressales/salescart/internal/catalog/httpcatalog"
	"github.com/repressales/salescart/internal/catalog/postgres"
	"github.com/repressales/salescart/internal/config"
	"github.com/repressales/salescart/internal/event"
	handler "github.com/repressales/salescart/internal/handler/http"
	"github.com/repressales/salescart/internal/money"
	redisrepo "github.com/repressales/salescart/internal/repository/redis"
	"github.com/repressales/salescart/internal/service"
	"github.com/repressales/salescart/internal/session"
	"github.com/repressales/salescart/pkg/database"
	"github.com/repressales/salescart/pkg/health"
	"github.com/repressales/salescart/pkg/httpclient"
	pkgkafka "github.com/repressales/salescart/pkg/kafka"
	"github.com/repressales/salescart/pkg/tracing"
)

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	inventory      *pkgkafka.Consumer
	sessions       *session.Manager
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize Redis client.
	rdb, err := database.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("addr", cfg.Redis.Addr()),
		slog.Int("db", cfg.Redis.DB),
	)

	a := &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		tracerShutdown: tracerShutdown,
	}

	source, err := a.newCatalogSource(ctx)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}

	formatter, err := money.NewLocaleFormatter(cfg.MoneyLocale, cfg.MoneyCurrency)
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("money formatter: %w", err)
	}

	// Initialize Kafka producer with connection validation and retry.
	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := pingKafkaWithRetry(ctx, a.producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	repo := redisrepo.NewCartRepository(rdb, cfg.CartTTL)
	a.sessions = session.NewManager(repo, logger, session.WithChangeListener(func(sessionID string, c cart.Change) {
		logger.Debug("cart changed",
			slog.String("session_id", sessionID),
			slog.String("kind", string(c.Kind)),
			slog.String("product_id", c.ProductID),
			slog.Int("quantity", c.Quantity),
		)
	}))
	eventProducer := event.NewProducer(a.producer, logger)
	cartService := service.NewCartService(a.sessions, source, formatter, eventProducer, logger)

	// Inventory events clamp live carts. Redelivered events are dropped by id.
	if cfg.ConsumerEnabled {
		eventConsumer := event.NewConsumer(cartService, logger)
		idempotencyStore := pkgkafka.NewRedisIdempotencyStore(rdb, cfg.IdempotencyTTL)
		a.inventory = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    event.TopicInventoryUpdated,
			MinBytes: 1,
			MaxBytes: 10e6,
		}, pkgkafka.IdempotentHandler(idempotencyStore, eventConsumer.HandleInventoryUpdated, logger), logger)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("redis", repo.Ping)
	healthHandler.Register("catalog", source.Ping)

	// HTTP router.
	router := handler.NewRouter(cartService, healthHandler, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// newCatalogSource connects the configured catalog backend.
func (a *App) newCatalogSource(ctx context.Context) (catalog.Source, error) {
	switch a.cfg.CatalogBackend {
	case config.CatalogHTTP:
		breakerCfg := a.cfg.CatalogBreaker
		breakerCfg.Name = "catalog"
		client := httpclient.NewCircuitBreakerClient(httpclient.New(a.cfg.CatalogHTTP), breakerCfg, a.logger)
		a.logger.Info("using remote catalog", slog.String("url", a.cfg.CatalogURL))
		return httpcatalog.NewSource(client, a.cfg.CatalogURL), nil

	default:
		pool, err := database.NewPostgresPool(ctx, &a.cfg.Postgres, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.logger.Info("connected to PostgreSQL",
			slog.String("host", a.cfg.Postgres.Host),
			slog.Int("port", a.cfg.Postgres.Port),
			slog.String("database", a.cfg.Postgres.DBName),
		)

		if err := database.RunMigrations(ctx, pool, postgres.Migrations(), a.logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")

		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "cart"); err != nil {
			a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}
		if a.cfg.SlowQueryThreshold > 0 {
			database.SetSlowQueryLogging(a.cfg.SlowQueryThreshold, a.logger)
		}

		a.pool = pool
		return postgres.NewSource(pool), nil
	}
}

// Run starts the HTTP server, the inventory consumer and the session sweeper,
// then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.inventory != nil {
		go func() {
			if err := a.inventory.Start(ctx); err != nil {
				errCh <- fmt.Errorf("inventory consumer: %w", err)
			}
		}()
	}

	go runSessionSweeper(ctx, a.sessions, a.cfg.SessionSweepInterval, a.cfg.SessionIdleTimeout, a.logger)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// runSessionSweeper closes sessions idle for longer than idle every interval.
func runSessionSweeper(ctx context.Context, sessions *session.Manager, interval, idle time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if closed := sessions.SweepIdle(ctx, idle); closed > 0 {
				logger.Info("idle sessions closed", slog.Int("closed", closed))
			}
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Inventory consumer
// 3. Live sessions (persist carts)
// 4. Tracer (flush pending spans)
// 5. Kafka producer
// 6. PostgreSQL pool and Redis client
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.inventory != nil {
		if err := a.inventory.Close(); err != nil {
			a.logger.Error("inventory consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	sessionCtx, sessionCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer sessionCancel()
	if err := a.sessions.CloseAll(sessionCtx); err != nil {
		a.logger.Error("persist sessions error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.closeStores()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeStores() {
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if lastErr = producer.Ping(ctx); lastErr == nil {
			return nil
		}
		if attempt == 2 {
			break
		}
		base := time.Duration(1<<uint(attempt)) * time.Second
		jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- retry jitter
		wait := base + jitter
		logger.Warn("kafka producer ping failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
