package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/cmd/atlas-api/handlers"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/cmd/atlas-api/middleware"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

// RouterDeps are the services behind the routes.
type RouterDeps struct {
	Turns          handlers.Turns
	Corpus         handlers.Corpus
	ClientAPIKey   string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(deps.AllowedOrigins))
	if deps.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(deps.RequestTimeout))
	}

	admin := handlers.NewAdminHandler(logger, deps.Corpus)
	search := handlers.NewSearchHandler(logger, deps.Turns)
	prices := handlers.NewPriceHandler(logger, deps.Corpus)

	r.Get("/health", admin.Health)
	r.Get("/ready", admin.Ready)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKey(deps.ClientAPIKey))

		r.Post("/search_all", search.Search)
		r.Post("/admin/reload", admin.Reload)
		r.Get("/api/v1/prices", prices.Get)
	})

	return r
}
