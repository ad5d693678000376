// Package app wires storage, caches, pricing and HTTP handlers into a running
// API process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/noah-isme/backend-impor/internal/cache"
	"github.com/noah-isme/backend-impor/internal/cart"
	"github.com/noah-isme/backend-impor/internal/catalog"
	"github.com/noah-isme/backend-impor/internal/common"
	"github.com/noah-isme/backend-impor/internal/compat"
	"github.com/noah-isme/backend-impor/internal/config"
	"github.com/noah-isme/backend-impor/internal/events"
	"github.com/noah-isme/backend-impor/internal/health"
	"github.com/noah-isme/backend-impor/internal/lock"
	"github.com/noah-isme/backend-impor/internal/migrations"
	"github.com/noah-isme/backend-impor/internal/notify"
	"github.com/noah-isme/backend-impor/internal/obs"
	"github.com/noah-isme/backend-impor/internal/order"
	"github.com/noah-isme/backend-impor/internal/pricing"
	"github.com/noah-isme/backend-impor/internal/quote"
	"github.com/noah-isme/backend-impor/internal/ratelimit"
	"github.com/noah-isme/backend-impor/internal/ratestore"
	"github.com/noah-isme/backend-impor/internal/resilience"
)

const serviceName = "impor-api"

// App is the assembled process: connections, the live catalog, the rate
// provider and the HTTP router built on top of them.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Catalog *catalog.Store
	Rates   *ratestore.Provider
	Bus     *events.Bus
	Router  http.Handler

	closers []func(context.Context) error
}

// New connects to Postgres and Redis, loads the first catalog snapshot and
// builds the router. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.Obs.MetricsNamespace, nil)

	tracing := cfg.Obs.TracingEnabled
	if tracing {
		shutdown, terr := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   serviceName,
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if terr != nil {
			logger.Error().Err(terr).Msg("initialise tracing")
			tracing = false
		} else {
			a.closers = append(a.closers, shutdown)
		}
	}

	if cfg.MigrateOnStart {
		version, merr := migrations.Up(cfg.DatabaseURL)
		if merr != nil {
			return nil, merr
		}
		logger.Info().Uint("version", version).Msg("migrations applied")
	}

	if a.DB, err = connectDB(ctx, cfg.DatabaseURL); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { a.DB.Close(); return nil })

	if a.Redis, err = connectRedis(ctx, cfg.RedisURL, cfg.Obs.MetricsEnabled, logger); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.Redis.Close() })

	a.Catalog = catalog.NewStore(catalog.NewRepository(a.DB), logger.With().Str("component", "catalog").Logger(), nil)
	if err := a.Catalog.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	ratesRepo := ratestore.NewRepository(a.DB)
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:      "ratestore",
		MinRequests: cfg.BreakerMinRequests,
		OpenFor:     cfg.BreakerOpenFor,
		IsFailure:   ratestore.IsStoreFailure,
		Logger:      logger,
	})
	a.Rates = ratestore.NewProvider(ratestore.ProviderConfig{
		Reader:          ratestore.GuardedReader{Reader: ratesRepo, Breaker: breaker},
		Writer:          ratesRepo,
		Cache:           cache.NewJSON(a.Redis, cfg.RatesCacheTTL),
		OfflineFallback: cfg.RatesOfflineFallback,
		Logger:          logger.With().Str("component", "rates").Logger(),
	})

	a.Bus = &events.Bus{
		Store: events.NewPgStore(a.DB),
		Notifiers: []events.Notifier{
			events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()},
			// Committed orders change stock; reload so the next check sees it.
			events.OnTopic(events.TopicOrderCreated, func(ctx context.Context, _ events.Event) error {
				return a.Catalog.Refresh(ctx)
			}),
		},
	}
	if cfg.EventWebhookURL != "" {
		if unknown := lo.Without(cfg.EventWebhookTopics, events.DefaultTopics()...); len(unknown) > 0 {
			logger.Warn().Strs("topics", unknown).Msg("webhook subscribed to topics the service never emits")
		}
		webhookBreaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "webhook", OpenFor: time.Minute, Logger: logger})
		a.Bus.Notifiers = append(a.Bus.Notifiers, &notify.Webhook{
			URL:     cfg.EventWebhookURL,
			Secret:  cfg.EventWebhookSecret,
			Topics:  cfg.EventWebhookTopics,
			Client:  notify.HTTPClient(5 * time.Second),
			Breaker: webhookBreaker,
			Logger:  logger.With().Str("component", "webhook").Logger(),
		})
	}

	quotes, err := quote.NewService(quote.ServiceConfig{Rates: a.Rates, Catalog: a.Catalog, Logger: logger})
	if err != nil {
		return nil, err
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Store:        a.Catalog,
		DefaultLimit: cfg.CatalogDefaultLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
	})
	if err != nil {
		return nil, err
	}
	resolver := compat.NewResolver(a.Catalog, cfg.CompatMaxAlternatives)
	assembler, err := cart.NewAssembler(resolver, quotes)
	if err != nil {
		return nil, err
	}
	committer, err := order.NewCommitter(order.CommitterConfig{
		Assembler: assembler,
		Store:     order.NewRepository(a.DB),
		Locker:    lock.Locker{R: a.Redis, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL:   cfg.OrderLockTTL,
		Events:    a.Bus,
		Logger:    logger.With().Str("component", "orders").Logger(),
	})
	if err != nil {
		return nil, err
	}

	limitStore, err := ratelimit.NewRedisStore(a.Redis, "impor:ratelimit")
	if err != nil {
		return nil, fmt.Errorf("rate limit store: %w", err)
	}
	quoteLimiter, err := ratelimit.NewFixedWindow(limitStore, cfg.QuoteRateLimit)
	if err != nil {
		return nil, err
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	a.Router = NewRouter(RouterConfig{
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ServiceName:        serviceName,
		Tracing:            tracing,
		HTTPMetrics:        httpMetrics,
		MetricsGatherer:    prometheus.DefaultGatherer,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		HSTS:               cfg.IsProduction(),
		TrustedProxies:     cfg.TrustedProxies,
		Health: health.Handler{
			Checker:      pinger{db: a.DB, redis: a.Redis},
			Probes:       readinessProbes(a.Catalog, a.Rates),
			DBTimeout:    cfg.HealthDBTimeout,
			RedisTimeout: cfg.HealthRedisTimeout,
		},
		Catalog:      catalog.NewHandler(catalog.HandlerConfig{Service: catalogSvc}),
		Compat:       compat.NewHandler(resolver),
		Quote:        quote.NewHandler(quotes),
		Cart:         cart.NewHandler(assembler),
		Order:        order.NewHandler(committer),
		QuoteLimiter: quoteLimiter,
		Idempotency:  common.Idem{R: a.Redis, TTL: cfg.IdempotencyTTL, Prefix: "impor:idem:"}.Middleware,
	})
	return a, nil
}

// Run serves HTTP and refreshes the catalog until ctx is cancelled, then
// drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.HTTPAddr(),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	go a.Catalog.Run(refreshCtx, a.Config.CatalogRefreshInterval)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	health.SetReady(false)
	a.Logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

// Close releases connections and flushes the tracer, in reverse order of setup.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.Error().Err(err).Msg("close dependency")
		}
	}
	a.closers = nil
}

func connectDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = serviceName

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func connectRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type pinger struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (p pinger) PingDB(ctx context.Context, timeout time.Duration) error {
	if p.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.db.Ping(ctx)
}

func (p pinger) PingRedis(ctx context.Context, timeout time.Duration) error {
	if p.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.redis.Ping(ctx).Err()
}

// RateSource is the slice of the rate provider readiness needs.
type RateSource interface {
	Latest(ctx context.Context) (*pricing.RateSnapshot, error)
}

// CatalogSource is the slice of the catalog store readiness needs.
type CatalogSource interface {
	Current() *catalog.Snapshot
}

func readinessProbes(cat CatalogSource, rates RateSource) []health.Probe {
	return []health.Probe{
		{Name: "catalog", Check: func(context.Context) error {
			if cat.Current().PartCount() == 0 {
				return errors.New("catalog is empty")
			}
			return nil
		}},
		{Name: "rates", Check: func(ctx context.Context) error {
			_, err := rates.Latest(ctx)
			return err
		}},
	}
}
