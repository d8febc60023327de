package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/config"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/middleware"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/repository"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/security"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/service"
)

type handlerFixture struct {
	auth    *AuthHandler
	users   *UserHandler
	todos   *TodoHandler
	jwtMgr  *security.JWTManager
	cfg     *config.Config
	db      *gorm.DB
	hasher  *security.PasswordHasher
	authSvc *service.AuthService
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.RefreshToken{}, &domain.Todo{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		JWTIssuer:          "test-issuer",
		JWTAudience:        "test-audience",
		JWTSecret:          "0123456789abcdef0123456789abcdef",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		RefreshTokenPepper: "test-pepper",
		BcryptCost:         4,
		CookieSameSite:     "lax",
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

	return &handlerFixture{
		auth:    NewAuthHandler(authSvc, cookies, cfg),
		users:   NewUserHandler(userSvc),
		todos:   NewTodoHandler(todoSvc),
		jwtMgr:  jwtMgr,
		cfg:     cfg,
		db:      db,
		hasher:  hasher,
		authSvc: authSvc,
	}
}

func (f *handlerFixture) createUser(t *testing.T, email, password string, role domain.Role) *domain.User {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{Email: email, PasswordHash: hash, Role: role, Name: "Test User"}
	if err := f.db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (f *handlerFixture) accessToken(t *testing.T, u *domain.User) string {
	t.Helper()
	token, err := f.jwtMgr.SignAccessToken(u.ID, u.Role, time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope, got body: %s", rec.Body.String())
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, rec)
	if env.Error == nil {
		t.Fatalf("expected error envelope, got body: %s", rec.Body.String())
	}
	return env.Error.Code
}

// serveAs routes one request through the real authenticator so handlers see
// claims in the context and chi URL params resolve.
func (f *handlerFixture) serveAs(t *testing.T, u *domain.User, method, pattern, target, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Use(middleware.Authenticator(f.jwtMgr))
	router.MethodFunc(method, pattern, h)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+f.accessToken(t, u))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
