package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/config"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/handler"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/middleware"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/response"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/security"
)

// Dependencies carries everything the route tree needs. The Limiter is the
// shared admission backend; nil means per-instance counting only.
type Dependencies struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      *gorm.DB
	JWT     *security.JWTManager
	Limiter middleware.Limiter
	Bypass  middleware.BypassEvaluator

	Auth  *handler.AuthHandler
	Users *handler.UserHandler
	Todos *handler.TodoHandler
}

func New(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   dep.Config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	loginLimit := limiterFor(dep, "login", dep.Config.LoginRateLimit, dep.Config.LoginRateWindow, nil)
	refreshLimit := limiterFor(dep, "refresh", dep.Config.RefreshRateLimit, dep.Config.RefreshRateWindow, nil)
	apiLimit := limiterFor(dep, "api", dep.Config.APIRateLimit, dep.Config.APIRateWindow, middleware.SubjectOrIPKeyFunc(dep.JWT))

	authenticate := middleware.Authenticator(dep.JWT)

	r.Get("/health/live", handleLive)
	r.Get("/health/ready", handleReady(dep.DB))

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimit).Post("/login", dep.Auth.Login)
			r.With(refreshLimit).Post("/refresh", dep.Auth.Refresh)
			// Logout stays reachable with an expired access token; it only
			// revokes the presented refresh cookie and clears both cookies.
			r.Post("/logout", dep.Auth.Logout)
			r.With(authenticate, apiLimit).Get("/me", dep.Users.Me)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(apiLimit)

			r.Patch("/users/me", dep.Users.UpdateMe)
			r.Post("/password/change", dep.Users.ChangePassword)

			r.Route("/users", func(r chi.Router) {
				r.Use(middleware.RequireRole(domain.RoleAdmin))
				r.Get("/", dep.Users.List)
				r.Post("/", dep.Users.Create)
				r.Delete("/{id}", dep.Users.Delete)
			})

			r.Route("/todos", func(r chi.Router) {
				r.Get("/", dep.Todos.List)
				r.Post("/", dep.Todos.Create)
				r.Patch("/{id}", dep.Todos.Update)
				r.Post("/{id}/complete", dep.Todos.Complete)
				r.Delete("/{id}", dep.Todos.Delete)
			})
		})
	})

	return r
}

func limiterFor(dep Dependencies, scope string, limit int, window time.Duration, keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	return middleware.NewRateLimiter(middleware.RateLimiterOptions{
		Scope:   scope,
		Limit:   limit,
		Window:  window,
		Mode:    dep.Config.RateLimitFailureMode,
		Limiter: dep.Limiter,
		KeyFunc: keyFunc,
		Bypass:  dep.Bypass,
		Logger:  dep.Logger,
	}).Middleware()
}

func handleLive(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, map[string]any{"status": "ok"})
}

// handleReady reports ready only when the database answers a ping.
func handleReady(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(r.Context())
			}
			if err != nil {
				response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "database unreachable", nil)
				return
			}
		}
		response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready"})
	}
}
