package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aryanmotgi/Arcus-Sheets/api/controllers"
	"github.com/aryanmotgi/Arcus-Sheets/api/middleware"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/config"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
)

// Deps carries the services the ops surface exposes. Readiness pings every
// entry of Pingers.
type Deps struct {
	Sync      controllers.SyncRunner
	Lock      controllers.SyncLock
	Overrides controllers.OverrideService
	Pingers   map[string]controllers.Pinger
	Gatherer  prometheus.Gatherer
	// Limiter throttles the mutating ops endpoints; nil disables throttling.
	Limiter rateLimiter
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// overrideEditsPerSync scales the edit budget off the manual sync budget.
const overrideEditsPerSync = 25

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	syncPolicy := middleware.NewRateLimitPolicy("manual_sync", cfg.Sync.ManualRateWindow, cfg.Sync.ManualRateLimit)
	overridePolicy := middleware.NewRateLimitPolicy("override_edit", cfg.Sync.ManualRateWindow, cfg.Sync.ManualRateLimit*overrideEditsPerSync)

	r.Route("/sync", func(r chi.Router) {
		r.With(middleware.RateLimit(syncPolicy, deps.Limiter, logg)).Post("/", controllers.TriggerSync(deps.Sync, deps.Lock, logg))
		r.Get("/last", controllers.LastSync(deps.Sync, logg))
	})

	r.Route("/overrides", func(r chi.Router) {
		r.Get("/", controllers.OverrideGet(deps.Overrides, logg))
		r.With(middleware.RateLimit(overridePolicy, deps.Limiter, logg)).Put("/", controllers.OverrideSet(deps.Overrides, logg))
	})

	return r
}
