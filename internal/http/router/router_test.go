package router

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/config"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/handler"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/repository"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/security"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/service"
)

func newTestRouter(t *testing.T) (http.Handler, *security.JWTManager, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.RefreshToken{}, &domain.Todo{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		JWTIssuer:            "test-issuer",
		JWTAudience:          "test-audience",
		JWTSecret:            "0123456789abcdef0123456789abcdef",
		AccessTokenTTL:       time.Minute,
		RefreshTokenTTL:      time.Hour,
		RefreshTokenPepper:   "test-pepper",
		BcryptCost:           4,
		CookieSameSite:       "lax",
		CORSAllowedOrigins:   []string{"http://localhost:3000"},
		LoginRateLimit:       3,
		LoginRateWindow:      time.Minute,
		RefreshRateLimit:     10,
		RefreshRateWindow:    time.Minute,
		APIRateLimit:         100,
		APIRateWindow:        time.Minute,
		RateLimitFailureMode: config.FailLocal,
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
	cookies := security.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite)

	users := repository.NewUserRepository(db)
	tokens := repository.NewRefreshTokenRepository(db)
	todos := repository.NewTodoRepository(db)

	authSvc := service.NewAuthService(users, tokens, hasher, jwtMgr, cfg, log)
	userSvc := service.NewUserService(users, tokens, hasher, log)
	todoSvc := service.NewTodoService(todos)

	h := New(Dependencies{
		Config: cfg,
		Logger: log,
		DB:     db,
		JWT:    jwtMgr,
		Auth:   handler.NewAuthHandler(authSvc, cookies, cfg),
		Users:  handler.NewUserHandler(userSvc),
		Todos:  handler.NewTodoHandler(todoSvc),
	})
	return h, jwtMgr, db
}

func seedUser(t *testing.T, db *gorm.DB, email string, role domain.Role) *domain.User {
	t.Helper()
	hasher := security.NewPasswordHasher(4)
	hash, err := hasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{Email: email, PasswordHash: hash, Role: role, Name: "Router Test"}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func bearer(t *testing.T, jwtMgr *security.JWTManager, u *domain.User) string {
	t.Helper()
	token, err := jwtMgr.SignAccessToken(u.ID, u.Role, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + token
}

func TestHealthEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("live: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d", rec.Code)
	}
}

func TestReadyReportsClosedDatabase(t *testing.T) {
	router, _, db := newTestRouter(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	_ = sqlDB.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for _, target := range []string{"/api/todos", "/api/auth/me", "/api/users"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, rec.Code)
		}
	}
}

func TestAdminRoutesRejectMembers(t *testing.T) {
	router, jwtMgr, db := newTestRouter(t)
	member := seedUser(t, db, "member@example.com", domain.RoleMember)
	admin := seedUser(t, db, "admin@example.com", domain.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", bearer(t, jwtMgr, member))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member on /api/users: expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", bearer(t, jwtMgr, admin))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin on /api/users: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginRateLimitCountsFailures(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body := `{"email":"nobody@example.com","password":"wrong"}`
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.RemoteAddr = "203.0.113.7:1000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:1000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// A different client address still gets through.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.RemoteAddr = "198.51.100.9:1000"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("other client: expected 401, got %d", rec.Code)
	}
}
