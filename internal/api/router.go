package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/daap14/askdb/internal/api/handler"
	"github.com/daap14/askdb/internal/api/middleware"
	"github.com/daap14/askdb/internal/catalog"
	"github.com/daap14/askdb/internal/engine"
	"github.com/daap14/askdb/internal/permission"
)

// Resolver resolves grants and knows the admin allowlist.
type Resolver interface {
	middleware.GrantResolver
	handler.AllowlistChecker
}

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	DBPinger           handler.DBPinger
	Catalog            catalog.Reader
	Version            string
	OpenAPISpec        []byte
	Authenticator      middleware.Authenticator
	Resolver           Resolver
	GrantStore         permission.Store
	Asker              handler.Asker
	Reports            handler.ReportRunner
	Introspector       engine.Introspector
	RateLimiter        *middleware.RateLimiter
	CORSAllowedOrigins []string
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)

	healthHandler := handler.NewHealthHandler(deps.DBPinger, deps.Catalog, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)

	if len(deps.OpenAPISpec) > 0 {
		openapiHandler := handler.NewOpenAPIHandler(deps.OpenAPISpec)
		r.Get("/openapi.json", openapiHandler.ServeHTTP)
	}

	if deps.Authenticator == nil || deps.Resolver == nil {
		return r
	}

	catalogHandler := handler.NewCatalogHandler(deps.Catalog, deps.Introspector)
	grantHandler := handler.NewGrantHandler(deps.GrantStore, deps.Resolver)
	queryHandler := handler.NewQueryHandler(deps.Asker)
	reportHandler := handler.NewReportHandler(deps.Reports)

	r.Route("/v1", func(r chi.Router) {
		// An empty origin list would make cors allow every origin.
		if len(deps.CORSAllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: deps.CORSAllowedOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
				AllowedHeaders: []string{"Content-Type", "X-API-Key", "X-Request-ID"},
				ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
				MaxAge:         300,
			}))
		}
		r.Use(middleware.Auth(deps.Authenticator))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Handler)
		}
		r.Use(middleware.ResolveGrant(deps.Resolver))

		r.Get("/me", grantHandler.Me)
		r.Get("/datasets", catalogHandler.ListDatasets)
		r.Get("/datasets/{id}/tables/{table}/columns", catalogHandler.ListColumns)
		r.Get("/agents", catalogHandler.ListAgents)
		r.Post("/query", queryHandler.Ask)
		r.Post("/reports", reportHandler.Run)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.Get("/grants", grantHandler.List)
			r.Put("/grants/{principalId}", grantHandler.Put)
			r.Delete("/grants/{principalId}", grantHandler.Delete)
		})
	})

	return r
}
