package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/security"
)

func TestNewRequestBypassEvaluatorCanReturnNil(t *testing.T) {
	eval := NewRequestBypassEvaluator(RequestBypassConfig{
		EnableTrustedActorBypass: true,
		TrustedActorCIDRs:        []string{"not-a-cidr", "", "300.1.1.1/8"},
	}, nil)
	if eval != nil {
		t.Fatal("expected nil evaluator when nothing can ever match")
	}
}

func TestRequestBypassEvaluatorProbePaths(t *testing.T) {
	eval := NewRequestBypassEvaluator(RequestBypassConfig{EnableInternalProbeBypass: true}, nil)
	if eval == nil {
		t.Fatal("expected evaluator")
	}

	if bypass, reason := eval(nil); bypass || reason != "" {
		t.Fatalf("nil request must not bypass, got bypass=%v reason=%q", bypass, reason)
	}

	req := httptest.NewRequest(http.MethodPost, "/health/live", nil)
	if bypass, reason := eval(req); !bypass || reason != "internal_probe_path" {
		t.Fatalf("/health/live should bypass, got bypass=%v reason=%q", bypass, reason)
	}

	req = httptest.NewRequest(http.MethodGet, "/Health/Ready", nil)
	if bypass, reason := eval(req); !bypass || reason != "internal_probe_path" {
		t.Fatalf("path match should be case-insensitive, got bypass=%v reason=%q", bypass, reason)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	if bypass, reason := eval(req); bypass || reason != "" {
		t.Fatalf("non-probe path must not bypass, got bypass=%v reason=%q", bypass, reason)
	}
}

func TestRequestBypassEvaluatorTrustedCIDR(t *testing.T) {
	eval := NewRequestBypassEvaluator(RequestBypassConfig{
		EnableTrustedActorBypass: true,
		TrustedActorCIDRs:        []string{"192.0.2.0/24"},
	}, nil)
	if eval == nil {
		t.Fatal("expected evaluator")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	if bypass, reason := eval(req); !bypass || reason != "trusted_actor_cidr" {
		t.Fatalf("expected CIDR bypass, got bypass=%v reason=%q", bypass, reason)
	}

	req.RemoteAddr = "203.0.113.10:5555"
	if bypass, _ := eval(req); bypass {
		t.Fatal("IP outside the CIDR must not bypass")
	}
}

func TestRequestBypassEvaluatorTrustedSubject(t *testing.T) {
	jwtMgr := security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	tok, err := jwtMgr.SignAccessToken(7, domain.RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	eval := NewRequestBypassEvaluator(RequestBypassConfig{
		EnableTrustedActorBypass: true,
		TrustedActorSubjects:     []string{" 7 ", ""},
	}, jwtMgr)
	if eval == nil {
		t.Fatal("expected evaluator")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	if bypass, reason := eval(req); !bypass || reason != "trusted_actor_subject" {
		t.Fatalf("expected trusted subject bypass, got bypass=%v reason=%q", bypass, reason)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer bad.token")
	if bypass, reason := eval(req); bypass || reason != "" {
		t.Fatalf("invalid token must not bypass, got bypass=%v reason=%q", bypass, reason)
	}
}

func FuzzRequestBypassEvaluatorRobustness(f *testing.F) {
	f.Add(true, true, "/health/live", "GET", "203.0.113.10:1234", "")
	f.Add(false, true, "/api/users", "POST", "198.51.100.2:8080", "198.51.100.0/24")
	f.Add(false, true, "/api/users", "POST", "bad-remote-addr", "bad-cidr")
	f.Add(true, false, "/api/me", "PATCH", "", "")

	f.Fuzz(func(t *testing.T, enableProbe, enableTrusted bool, path, method, remoteAddr, cidr string) {
		if len(path) > 1024 {
			path = path[:1024]
		}
		path = sanitizeFuzzPath(path)
		method = sanitizeFuzzMethod(method)

		eval := NewRequestBypassEvaluator(RequestBypassConfig{
			EnableInternalProbeBypass: enableProbe,
			EnableTrustedActorBypass:  enableTrusted,
			TrustedActorCIDRs:         []string{cidr},
		}, nil)
		if eval == nil {
			return
		}

		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = strings.TrimSpace(remoteAddr)

		b1, r1 := eval(req)
		b2, r2 := eval(req)
		if b1 != b2 || r1 != r2 {
			t.Fatalf("non-deterministic bypass result: first=(%v,%q) second=(%v,%q)", b1, r1, b2, r2)
		}
		switch r1 {
		case "", "internal_probe_path", "trusted_actor_cidr":
		default:
			t.Fatalf("unexpected bypass reason %q", r1)
		}
	})
}

func sanitizeFuzzPath(path string) string {
	var b strings.Builder
	b.WriteByte('/')
	for _, r := range path {
		if r > unicode.MaxASCII || unicode.IsControl(r) || r == ' ' || r == '?' || r == '#' || r == '%' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func sanitizeFuzzMethod(method string) string {
	var b strings.Builder
	for _, r := range method {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return http.MethodGet
	}
	return b.String()
}
