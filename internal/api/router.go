package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikhilbhutani/pdfchat/internal/api/handlers"
	"github.com/nikhilbhutani/pdfchat/internal/api/middleware"
	"github.com/nikhilbhutani/pdfchat/internal/app"
	"github.com/nikhilbhutani/pdfchat/internal/auth"
	"github.com/nikhilbhutani/pdfchat/internal/config"
)

type Router struct {
	mux *chi.Mux
	app *app.App
	jwt *auth.JWTMiddleware
}

func NewRouter(a *app.App) *Router {
	if a.Config.Auth.AdminJWTSecret == "" {
		slog.Warn("ADMIN_JWT_SECRET not set, admin API disabled")
	}
	return &Router{
		mux: chi.NewRouter(),
		app: a,
		jwt: auth.NewJWTMiddleware(a.Config.Auth.AdminJWTSecret),
	}
}

func (rt *Router) healthChecks() map[string]handlers.Check {
	checks := map[string]handlers.Check{
		"vector_index": rt.app.Index.Ping,
	}
	if rt.app.DB != nil {
		checks["database"] = rt.app.DB.Ping
	}
	if rdb := rt.app.Redis; rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

func useGlobal(r chi.Router, cfg config.ServerConfig) {
	r.Use(chimiddleware.RequestID)
	// Forwarded headers are client-controlled unless a proxy rewrites them,
	// and the chat rate limit keys anonymous callers by address.
	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	a := rt.app

	useGlobal(r, a.Config.Server)

	health := handlers.NewHealthHandler(rt.healthChecks())
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	chatH := handlers.NewChatHandler(a.Chat, a.Conversations)
	docH := handlers.NewDocumentHandler(a.Documents, a.Config.Storage.MaxFileSize)
	adminH := handlers.NewAdminHandler(a.Conversations, a.Documents, a.Cache)
	settingsH := handlers.NewSettingsHandler(a.Settings)

	r.Route("/api/v1", func(r chi.Router) {
		// Public chat routes
		r.Group(func(r chi.Router) {
			r.Use(rt.jwt.Identify)
			r.Post("/chat", chatH.Send)
			r.Get("/conversations/session/{session}", chatH.Conversation)
			r.Post("/conversations/{id}/end", chatH.End)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(rt.jwt.RequireAdmin)

			r.Route("/documents", func(r chi.Router) {
				r.Post("/", docH.Upload)
				r.Get("/", docH.List)
				r.Get("/{id}", docH.Get)
				r.Delete("/{id}", docH.Delete)
				r.Get("/{id}/status", docH.Status)
				r.Post("/{id}/reprocess", docH.Reprocess)
			})

			r.Get("/stats", adminH.Stats)
			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", adminH.RecentConversations)
				r.Get("/{id}", adminH.Transcript)
				r.Post("/{id}/end", adminH.EndConversation)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", settingsH.List)
				r.Get("/{key}", settingsH.Get)
				r.Put("/{key}", settingsH.Put)
				r.Delete("/{key}", settingsH.Delete)
			})
		})
	})

	return r
}
