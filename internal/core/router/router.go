// Package router exposes the map pipeline over HTTP.
package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/opendata-map/internal/core/config"
	"github.com/mohammed-shakir/opendata-map/internal/core/health"
	"github.com/mohammed-shakir/opendata-map/internal/core/middleware"
	"github.com/mohammed-shakir/opendata-map/internal/dataset"
	"github.com/mohammed-shakir/opendata-map/internal/layers"
	"github.com/mohammed-shakir/opendata-map/internal/recommend"
)

// Layers is the layer store as seen by the handlers.
type Layers interface {
	health.StatusReporter
	Catalog() *dataset.Catalog
	Records(ctx context.Context, name, where string) (*layers.Snapshot, error)
	Years(ctx context.Context, name string) ([]string, error)
	Collection(ctx context.Context, req layers.Request) ([]byte, error)
}

type Recommender interface {
	Recommend(ctx context.Context, project any) (recommend.Recommendation, error)
}

type Deps struct {
	Layers Layers
	// Recommender is nil when no LLM key is configured; the endpoint then
	// answers 503 with the missing setting.
	Recommender Recommender
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

type api struct {
	logger *slog.Logger
	cfg    *config.Config
	deps   Deps
}

// New wires the middleware chain and every route.
func New(logger *slog.Logger, cfg *config.Config, deps Deps) http.Handler {
	a := &api{logger: logger, cfg: cfg, deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.PublicBaseURL))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(deps.Layers, cfg.Preload))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/map", a.handleMap)
		r.Get("/datasets", a.handleCatalog)
		r.Route("/datasets/{name}", func(r chi.Router) {
			r.Get("/records", a.handleRecords)
			r.Get("/years", a.handleYears)
			r.Get("/geojson", a.handleGeoJSON)
		})
		r.Post("/recommendations", a.handleRecommend)
	})
	return r
}
