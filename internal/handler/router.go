package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/iaengine/backend/internal/config"
	"github.com/zhouzirui/iaengine/backend/internal/handler/auth"
	"github.com/zhouzirui/iaengine/backend/internal/handler/stream"
	"github.com/zhouzirui/iaengine/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/iaengine/backend/internal/middleware"
	"github.com/zhouzirui/iaengine/backend/internal/service/relay"
	"github.com/zhouzirui/iaengine/backend/internal/service/session"
	"github.com/zhouzirui/iaengine/backend/pkg/utils"
)

// Dependencies bundles what the router needs from main.
type Dependencies struct {
	Sessions  *session.Store
	Relay     *relay.Service
	Server    config.ServerConfig
	Auth      config.AuthConfig
	RateLimit config.RateLimitConfig
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	origins := middlewarePkg.NewOriginPolicy(deps.Server.AllowedOrigins)

	r.Use(middleware.RequestID)
	if deps.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(origins))

	cookies := auth.NewCookies(deps.Auth.SessionSecret, deps.Sessions.TTL(), deps.Server.Production())
	authHandler := auth.New(deps.Sessions, cookies, deps.Auth.Password)
	streamHandler := stream.New(deps.Relay, origins.Allowed)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		api.Group(func(g chi.Router) {
			g.Use(middlewarePkg.RateLimit("login", deps.RateLimit.Login, deps.RateLimit.Window, middlewarePkg.KeyByIP))
			authHandler.RegisterLoginRoutes(g)
		})

		authHandler.RegisterRoutes(api)

		api.Group(func(g chi.Router) {
			g.Use(authHandler.RequireSession)
			g.Use(middlewarePkg.RateLimit("chat", deps.RateLimit.Chat, deps.RateLimit.Window, auth.SessionKey))
			streamHandler.RegisterRoutes(g)
		})
	})

	if deps.Server.StaticDir != "" {
		r.NotFound(spaHandler(deps.Server.StaticDir))
	} else {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			utils.RespondError(w, http.StatusNotFound, "not_found")
		})
	}

	return r
}
