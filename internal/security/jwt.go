package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
)

var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
)

// Claims is the self-contained access-token payload: principal id (subject),
// role, and the standard registered claims. Validity derives purely from the
// signature and the clock; there is no database lookup, so an access token
// cannot be revoked before its expiry.
type Claims struct {
	jwt.RegisteredClaims
	Role      domain.Role `json:"role"`
	TokenType string      `json:"token_type"`
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uint, error) {
	id64, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrTokenMalformed)
	}
	return uint(id64), nil
}

type JWTManager struct {
	issuer   string
	audience string
	secret   []byte
}

// NewJWTManager holds the process-wide signing secret. The secret is set once
// at startup; rotating it invalidates all outstanding access tokens.
func NewJWTManager(issuer, audience, secret string) *JWTManager {
	return &JWTManager{issuer: issuer, audience: audience, secret: []byte(secret)}
}

func (m *JWTManager) SignAccessToken(userID uint, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:      role,
		TokenType: "access",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ParseAccessToken verifies signing method, signature, structure, expiry,
// issuer and audience, in that order, failing closed on any mismatch.
func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !token.Valid || claims.TokenType != "access" || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	if !claims.Role.Valid() {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ParseAccessTokenAllowExpired verifies the signature and every structural
// claim but tolerates a past expiry. Audit attribution only; never use it to
// authorize a request.
func (m *JWTManager) ParseAccessTokenAllowExpired(raw string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if claims.TokenType != "access" || claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrTokenMalformed
	}
	if claims.Issuer != m.issuer {
		return nil, ErrTokenMalformed
	}
	audienceOK := false
	for _, aud := range claims.Audience {
		if aud == m.audience {
			audienceOK = true
			break
		}
	}
	if !audienceOK {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
