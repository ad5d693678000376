package app

import (
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-impor/internal/cart"
	"github.com/noah-isme/backend-impor/internal/catalog"
	"github.com/noah-isme/backend-impor/internal/common"
	"github.com/noah-isme/backend-impor/internal/compat"
	"github.com/noah-isme/backend-impor/internal/health"
	"github.com/noah-isme/backend-impor/internal/obs"
	"github.com/noah-isme/backend-impor/internal/order"
	"github.com/noah-isme/backend-impor/internal/quote"
	"github.com/noah-isme/backend-impor/internal/ratelimit"
	"github.com/noah-isme/backend-impor/internal/security"
)

// RouterConfig lists the handlers and middleware mounted by NewRouter.
type RouterConfig struct {
	Logger             zerolog.Logger
	CORSAllowedOrigins []string
	ServiceName        string
	Tracing            bool
	HTTPMetrics        *obs.HTTPMetrics
	MetricsGatherer    prometheus.Gatherer
	MaxBodyBytes       int64
	HSTS               bool
	TrustedProxies     []netip.Prefix

	Health  health.Handler
	Catalog *catalog.Handler
	Compat  *compat.Handler
	Quote   *quote.Handler
	Cart    *cart.Handler
	Order   *order.Handler

	// QuoteLimiter throttles pricing endpoints per client IP when set.
	QuoteLimiter ratelimit.Limiter
	// Idempotency guards order creation when set.
	Idempotency func(http.Handler) http.Handler
}

// NewRouter builds the HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(common.RealIP{Trusted: cfg.TrustedProxies}.Middleware)
	r.Use(middleware.Recoverer)
	if cfg.Tracing {
		r.Use(obs.TracingMiddleware(cfg.ServiceName))
		r.Use(obs.RouteSpanMiddleware)
	}
	if cfg.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: cfg.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: cfg.Logger}.Middleware)
	r.Use(security.Headers{HSTS: cfg.HSTS}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Total-Count", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.HTTPMetrics != nil {
		gatherer := cfg.MetricsGatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/health/live", cfg.Health.Live)
	r.Get("/health/ready", cfg.Health.Ready)

	limited := func(next http.Handler) http.Handler { return next }
	if cfg.QuoteLimiter != nil {
		limited = ratelimit.Handler{
			Limiter: cfg.QuoteLimiter,
			Key:     ratelimit.ByClientIP("quote"),
			OnError: func(err error) { cfg.Logger.Warn().Err(err).Msg("rate limiter unavailable") },
		}.Middleware
	}
	idem := cfg.Idempotency
	if idem == nil {
		idem = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api/v1", func(v chi.Router) {
		if cfg.Quote != nil {
			v.Group(func(q chi.Router) {
				q.Use(limited)
				q.Post("/quotes", cfg.Quote.Quote)
				q.Get("/parts/{id}/quote", cfg.Quote.PartQuote)
				q.Get("/convert", cfg.Quote.Convert)
			})
		}
		if cfg.Catalog != nil {
			v.Get("/vehicles/{id}/parts", cfg.Catalog.PartsForVehicle)
			v.Get("/parts/{id}/vehicles", cfg.Catalog.VehiclesForPart)
			v.Get("/parts/{id}", cfg.Catalog.Part)
		}
		if cfg.Compat != nil {
			v.Get("/compatibility", cfg.Compat.Check)
			v.Get("/parts/{id}/stock", cfg.Compat.Stock)
		}
		if cfg.Cart != nil {
			v.Post("/carts/assemble", cfg.Cart.Assemble)
		}
		if cfg.Order != nil {
			v.With(idem).Post("/orders", cfg.Order.Commit)
			v.Get("/orders/{id}", cfg.Order.Get)
		}
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
