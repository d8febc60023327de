package security

import (
	"strings"
	"testing"
	"time"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
}

func TestJWTSignAndParse(t *testing.T) {
	mgr := newTestJWTManager()
	raw, err := mgr.SignAccessToken(42, domain.RoleAdmin, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := mgr.ParseAccessToken(raw)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "42" || claims.Role != domain.RoleAdmin || claims.TokenType != "access" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 {
		t.Fatalf("unexpected user id %d err %v", id, err)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestJWTExpiry(t *testing.T) {
	mgr := newTestJWTManager()
	raw, err := mgr.SignAccessToken(7, domain.RoleMember, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.ParseAccessToken(raw); err != nil {
		t.Fatalf("expected token valid before expiry: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, err := mgr.ParseAccessToken(raw); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired after ttl, got %v", err)
	}
}

func TestJWTParseAllowExpiredIdentifiesActor(t *testing.T) {
	mgr := newTestJWTManager()
	raw, err := mgr.SignAccessToken(9, domain.RoleMember, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.ParseAccessToken(raw); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired from the strict parse, got %v", err)
	}

	claims, err := mgr.ParseAccessTokenAllowExpired(raw)
	if err != nil {
		t.Fatalf("expected the expired token to still identify its subject: %v", err)
	}
	if id, err := claims.UserID(); err != nil || id != 9 {
		t.Fatalf("unexpected user id %d err %v", id, err)
	}

	other := NewJWTManager("iss", "aud", "zyxwvutsrqponmlkjihgfedcba654321")
	if _, err := other.ParseAccessTokenAllowExpired(raw); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
	wrongIssuer := NewJWTManager("someone-else", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	if _, err := wrongIssuer.ParseAccessTokenAllowExpired(raw); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	raw, err := newTestJWTManager().SignAccessToken(1, domain.RoleMember, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	other := NewJWTManager("iss", "aud", "zyxwvutsrqponmlkjihgfedcba654321")
	if _, err := other.ParseAccessToken(raw); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
}

func TestJWTRejectsWrongIssuerAudience(t *testing.T) {
	raw, err := newTestJWTManager().SignAccessToken(1, domain.RoleMember, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewJWTManager("other-iss", "aud", "abcdefghijklmnopqrstuvwxyz123456").ParseAccessToken(raw); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
	if _, err := NewJWTManager("iss", "other-aud", "abcdefghijklmnopqrstuvwxyz123456").ParseAccessToken(raw); err == nil {
		t.Fatal("expected audience mismatch to fail")
	}
}

func TestJWTRejectsGarbage(t *testing.T) {
	mgr := newTestJWTManager()
	for _, raw := range []string{"", "not-a-jwt", "a.b.c", strings.Repeat("x", 4096)} {
		if _, err := mgr.ParseAccessToken(raw); err == nil {
			t.Fatalf("expected parse failure for %q", raw)
		}
	}
}

func FuzzParseAccessTokenRobustness(f *testing.F) {
	mgr := newTestJWTManager()
	valid, _ := mgr.SignAccessToken(42, domain.RoleMember, time.Minute)

	f.Add(valid)
	f.Add("")
	f.Add("not-a-jwt")
	f.Add(strings.Repeat("a", 8192))

	f.Fuzz(func(t *testing.T, raw string) {
		if len(raw) > 16384 {
			raw = raw[:16384]
		}
		claims, err := mgr.ParseAccessToken(raw)
		if err == nil {
			if claims == nil {
				t.Fatal("expected non-nil claims on successful parse")
			}
			if claims.TokenType != "access" || claims.Subject == "" {
				t.Fatalf("accepted token with bad claims: %+v", claims)
			}
		}
	})
}
