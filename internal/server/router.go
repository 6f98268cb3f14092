package server

import (
	"net/http"

	"github.com/cloo-solutions/zenithvault/internal/api"
	"github.com/cloo-solutions/zenithvault/internal/api/handlers"
	"github.com/cloo-solutions/zenithvault/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const defaultMaxBodyBytes int64 = 5 * 1024 * 1024

// Metrics is the metrics surface the router exposes and feeds.
type Metrics interface {
	middleware.HTTPObserver
	Handler() http.Handler
}

type RouterConfig struct {
	AuthValidator    middleware.AuthValidator
	KnowledgeHandler *handlers.KnowledgeHandler
	AnswerHandler    *handlers.AnswerHandler
	AuthHandler      *handlers.AuthHandler

	Metrics            Metrics
	Logger             *zap.Logger
	CORSAllowedOrigins []string
	MaxBodyBytes       int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	var observer middleware.HTTPObserver
	if cfg.Metrics != nil {
		observer = cfg.Metrics
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Sentry)
	r.Use(middleware.AccessLog(cfg.Logger, observer))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Post("/answer", cfg.AnswerHandler.Answer)
		r.Post("/answers/{id}/feedback", cfg.AnswerHandler.Feedback)
		r.Post("/retrieve", cfg.AnswerHandler.Retrieve)

		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/", cfg.KnowledgeHandler.List)
			r.Get("/{id}", cfg.KnowledgeHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/ingest", cfg.KnowledgeHandler.Ingest)
				r.Post("/import", cfg.KnowledgeHandler.Import)
				r.Post("/import/upload", cfg.KnowledgeHandler.InitImportUpload)
				r.Post("/import/from-storage", cfg.KnowledgeHandler.ImportFromStorage)
				r.Put("/{id}", cfg.KnowledgeHandler.Update)
				r.Delete("/{id}", cfg.KnowledgeHandler.Delete)
			})
		})

		if cfg.AuthHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/orgs", cfg.AuthHandler.CreateOrg)
				r.Get("/orgs", cfg.AuthHandler.ListOrgs)
				r.Post("/apikeys", cfg.AuthHandler.CreateAPIKey)
				r.Get("/apikeys", cfg.AuthHandler.ListAPIKeys)
				r.Delete("/apikeys/{id}", cfg.AuthHandler.RevokeAPIKey)
			})
		}
	})

	return r
}
