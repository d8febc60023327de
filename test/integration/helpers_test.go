package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
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
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/router"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/repository"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/security"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/service"
)

type testServer struct {
	URL    string
	Client *http.Client
	DB     *gorm.DB
	Cfg    *config.Config
	Hasher *security.PasswordHasher
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newAuthTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
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
		LoginRateLimit:       100,
		LoginRateWindow:      time.Minute,
		RefreshRateLimit:     100,
		RefreshRateWindow:    time.Minute,
		APIRateLimit:         1000,
		APIRateWindow:        time.Minute,
		RateLimitFailureMode: config.FailLocal,
	}
	for _, m := range mutate {
		m(cfg)
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

	h := router.New(router.Dependencies{
		Config: cfg,
		Logger: log,
		DB:     db,
		JWT:    jwtMgr,
		Auth:   handler.NewAuthHandler(authSvc, cookies, cfg),
		Users:  handler.NewUserHandler(userSvc),
		Todos:  handler.NewTodoHandler(todoSvc),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}

	return &testServer{
		URL:    srv.URL,
		Client: &http.Client{Jar: jar},
		DB:     db,
		Cfg:    cfg,
		Hasher: hasher,
	}
}

func (ts *testServer) seedUser(t *testing.T, email, password string, role domain.Role) *domain.User {
	t.Helper()
	hash, err := ts.Hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{Email: email, PasswordHash: hash, Role: role, Name: "Integration User"}
	if err := ts.DB.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v\nbody: %s", err, raw)
		}
	}
	return resp, env
}

func (ts *testServer) login(t *testing.T, email, password string) (*http.Response, envelope) {
	t.Helper()
	return doJSON(t, ts.Client, http.MethodPost, ts.URL+"/api/auth/login",
		map[string]string{"email": email, "password": password}, nil)
}

func newCookieClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func cookieValue(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
