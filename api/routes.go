/*
 * @module api/routes
 * @description Route table of the back-office API
 * @architecture RESTful API architecture
 * @stateFlow request -> chi middleware -> authentication -> permission -> controller
 * @rules every mutating route checks its permission before the handler runs; responses use the {status, msg, data} envelope
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers, api/middleware
 */

package api

import (
	"context"
	"time"

	"backoffice-service/api/controllers"
	authmw "backoffice-service/api/middleware"
	"backoffice-service/service"
	"backoffice-service/service/alerting"
	"backoffice-service/service/config"
	"backoffice-service/service/dedup"
	"backoffice-service/service/sync_engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// Version reported by /health
var Version = "1.0.0"

// Dependencies services behind the routes
type Dependencies struct {
	SyncService    *sync_engine.SyncService
	AlertGenerator *alerting.Generator
	Scanner        *dedup.Scanner
	Merger         *dedup.Merger
	Authenticator  *authmw.Authenticator
	Ready          func(ctx context.Context) error
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// GlobalDependencies dependencies wired by service.Init
func GlobalDependencies(cfg *config.Config) Dependencies {
	return Dependencies{
		SyncService:    service.GlobalSyncService,
		AlertGenerator: service.GlobalAlertGenerator,
		Scanner:        service.GlobalDuplicateScanner,
		Merger:         service.GlobalProviderMerger,
		Authenticator:  authmw.NewAuthenticator(NewTokenVerifier(cfg.Auth), cfg.Auth.CacheTTL, nil),
		Ready:          service.Ready,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
}

// NewTokenVerifier verifier of the configured auth mode
func NewTokenVerifier(cfg config.AuthConfig) authmw.TokenVerifier {
	if cfg.Mode == config.AuthModeStatic {
		tokens := make(map[string]authmw.Principal, len(cfg.Tokens))
		for token, t := range cfg.Tokens {
			tokens[token] = authmw.Principal{Username: t.Username, Permissions: t.Permissions}
		}
		return authmw.NewStaticVerifier(tokens)
	}
	return authmw.NewPostgRESTVerifier(cfg.PostgRESTURL, 10*time.Second)
}

// InitRoute registers every route on r
func InitRoute(r *chi.Mux, deps Dependencies) {
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))
	if deps.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.RequestTimeout))
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthController := controllers.NewHealthController(deps.Ready, Version)
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	r.Group(func(r chi.Router) {
		r.Use(deps.Authenticator.Middleware)

		r.Route("/meta", func(r chi.Router) {
			metaController := controllers.NewMetaController()
			r.Get("/entity-kinds", metaController.GetEntityKinds)
			r.Get("/sync-run-statuses", metaController.GetSyncRunStatuses)
			r.Get("/alert-kinds", metaController.GetAlertKinds)
		})

		r.Route("/sync", func(r chi.Router) {
			syncController := controllers.NewSyncController(deps.SyncService)

			r.With(authmw.RequirePermission(authmw.PermSyncRead)).Get("/runs", syncController.ListSyncRuns)
			r.With(authmw.RequirePermission(authmw.PermSyncRead)).Get("/runs/{id}", syncController.GetSyncRun)
			r.With(authmw.RequirePermission(authmw.PermSyncRead)).Get("/{kind}/status", syncController.GetSyncStatus)
			r.With(authmw.RequirePermission(authmw.PermSyncTrigger)).Post("/{kind}", syncController.TriggerSync)
		})

		r.Route("/alerts", func(r chi.Router) {
			alertController := controllers.NewAlertController(deps.AlertGenerator)

			r.With(authmw.RequirePermission(authmw.PermAlertsRead)).Get("/", alertController.ListAlerts)
			r.With(authmw.RequirePermission(authmw.PermAlertsGenerate)).Post("/generate", alertController.GenerateAlerts)
		})

		r.Route("/providers", func(r chi.Router) {
			providerController := controllers.NewProviderController(deps.Scanner, deps.Merger)

			r.With(authmw.RequirePermission(authmw.PermProvidersRead)).Get("/duplicates", providerController.ListDuplicates)
			r.With(authmw.RequirePermission(authmw.PermProvidersMerge)).Post("/duplicates/{groupId}/merge", providerController.MergeDuplicates)
		})
	})
}
