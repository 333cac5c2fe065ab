package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/config"
	"github.com/html-librarian/mig-catalog/internal/ratelimit"
	"github.com/html-librarian/mig-catalog/internal/security"
	"github.com/html-librarian/mig-catalog/internal/token"
)

// RouterDeps bundles everything the router mounts.
type RouterDeps struct {
	Config      *config.Config
	Auth        *AuthHandler
	Users       *UserHandler
	Items       *ItemHandler
	Orders      *OrderHandler
	Articles    *ArticleHandler
	Health      *HealthHandler
	Limiter     *ratelimit.Limiter
	SecurityMgr *security.Manager
	EventSink   security.EventSink
	Tokens      *token.Service
	Logger      *zap.Logger
}

// NewRouter builds the chi router with the full middleware pipeline.
// Order matters: the correlation id must exist before recovery can report
// it, and throttling runs before authentication so lockouts are enforced
// even for requests carrying valid tokens.
func NewRouter(deps RouterDeps) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RealIP)
	router.Use(CorrelationID)
	router.Use(Recovery(deps.Logger))
	router.Use(ProcessTime)
	router.Use(RequestLogger(deps.Logger))
	router.Use(SecurityHeaders)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID", "X-Process-Time", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Probes stay outside the throttle so orchestrators are never limited.
	router.Get("/health", deps.Health.Liveness)
	router.Get("/health/detailed", deps.Health.Detailed)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(Throttle(deps.Limiter, deps.SecurityMgr, deps.EventSink))

		// Public routes.
		deps.Auth.RegisterRoutes(r)
		deps.Items.RegisterPublicRoutes(r)
		deps.Articles.RegisterPublicRoutes(r)

		// Protected routes.
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(deps.Tokens, deps.SecurityMgr))

			deps.Auth.RegisterProtectedRoutes(r)
			deps.Users.RegisterRoutes(r)
			deps.Items.RegisterProtectedRoutes(r)
			deps.Articles.RegisterProtectedRoutes(r)
			deps.Orders.RegisterRoutes(r)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusNotFound, Response{
			Success: false,
			Error:   "endpoint not found",
		})
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusMethodNotAllowed, Response{
			Success: false,
			Error:   "method not allowed",
		})
	})

	return router
}
