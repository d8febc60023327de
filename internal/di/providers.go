package di

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/app"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/config"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/database"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/handler"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/middleware"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/router"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/observability"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/repository"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/security"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(provideLogger)

var RuntimeInfraSet = wire.NewSet(provideOpenDB, provideRedisClient, provideSharedLimiter)

var RepositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewRefreshTokenRepository,
	repository.NewTodoRepository,
)

var SecuritySet = wire.NewSet(providePasswordHasher, provideJWTManager, provideCookieManager)

var ServiceSet = wire.NewSet(
	service.NewAuthService,
	service.NewUserService,
	service.NewTodoService,
	provideTokenJanitor,
)

var HTTPSet = wire.NewSet(
	handler.NewAuthHandler,
	handler.NewUserHandler,
	handler.NewTodoHandler,
	provideRouterDependencies,
	router.New,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

func provideLogger(cfg *config.Config) *slog.Logger {
	logger := observability.NewLogger(cfg)
	slog.SetDefault(logger)
	return logger
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

// provideRedisClient is nil when no address is configured; admission limiting
// then runs on per-instance counters.
func provideRedisClient(cfg *config.Config) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	client.AddHook(observability.NewRedisMetricsHook())
	return client
}

func provideSharedLimiter(client redis.UniversalClient) middleware.Limiter {
	if client == nil {
		return nil
	}
	return middleware.NewRedisFixedWindowLimiter(client, "rl")
}

func providePasswordHasher(cfg *config.Config) *security.PasswordHasher {
	return security.NewPasswordHasher(cfg.BcryptCost)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
}

func provideTokenJanitor(cfg *config.Config, auth *service.AuthService, logger *slog.Logger) *service.TokenJanitor {
	return service.NewTokenJanitor(auth, cfg.TokenCleanupInterval, logger)
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite)
}

func provideRouterDependencies(
	cfg *config.Config,
	logger *slog.Logger,
	db *gorm.DB,
	jwtMgr *security.JWTManager,
	limiter middleware.Limiter,
	auth *handler.AuthHandler,
	users *handler.UserHandler,
	todos *handler.TodoHandler,
) router.Dependencies {
	return router.Dependencies{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		JWT:     jwtMgr,
		Limiter: limiter,
		Bypass: middleware.NewRequestBypassEvaluator(middleware.RequestBypassConfig{
			EnableInternalProbeBypass: cfg.RateLimitProbeBypass,
			EnableTrustedActorBypass:  len(cfg.RateLimitTrustedCIDRs) > 0 || len(cfg.RateLimitTrustedSubjects) > 0,
			TrustedActorCIDRs:         cfg.RateLimitTrustedCIDRs,
			TrustedActorSubjects:      cfg.RateLimitTrustedSubjects,
		}, jwtMgr),
		Auth:  auth,
		Users: users,
		Todos: todos,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// MigrationRunner applies the schema and the bootstrap seed against the
// configured database.
type MigrationRunner struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewMigrationRunner(cfg *config.Config, db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{cfg: cfg, db: db}
}

func (m *MigrationRunner) Run() error {
	if err := database.Migrate(m.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	report, err := database.SeedSync(m.db, m.cfg)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if report.CreatedAdmin {
		slog.Info("bootstrap admin created", slog.String("email", report.AdminEmail))
	}
	return nil
}
