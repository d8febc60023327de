package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/config"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/observability"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/repository"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/security"
)

// TokenPair carries a freshly minted access token plus the raw opaque
// refresh token. The refresh value exists only here and in the cookie the
// handler sets; storage keeps the peppered hash.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService owns the session lifecycle: credential checks, token
// issuance, single-use refresh rotation and revocation.
type AuthService struct {
	users      repository.UserRepository
	tokens     repository.RefreshTokenRepository
	hasher     *security.PasswordHasher
	jwt        *security.JWTManager
	pepper     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	hasher *security.PasswordHasher,
	jwtManager *security.JWTManager,
	cfg *config.Config,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		hasher:     hasher,
		jwt:        jwtManager,
		pepper:     cfg.RefreshTokenPepper,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Login verifies the credentials and issues a fresh token pair. Unknown
// email and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(email, password string) (*domain.User, TokenPair, error) {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	raw, record, err := s.newRefreshRecord(user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.tokens.Create(record); err != nil {
		return nil, TokenPair{}, err
	}

	access, err := s.jwt.SignAccessToken(user.ID, user.Role, s.accessTTL)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, TokenPair{AccessToken: access, RefreshToken: raw}, nil
}

// Refresh rotates an opaque refresh token: the presented token is revoked
// and a replacement is issued in one transaction. Presenting an
// already-revoked token is treated as theft evidence and revokes every
// live token the owner has.
func (s *AuthService) Refresh(raw string) (*domain.User, TokenPair, error) {
	hash := security.HashRefreshToken(raw, s.pepper)

	record, err := s.tokens.FindByHash(hash)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, TokenPair{}, ErrTokenInvalid
		}
		return nil, TokenPair{}, err
	}

	now := s.now().UTC()
	if record.Revoked() {
		return nil, TokenPair{}, s.handleReuse(record, hash)
	}
	if record.Expired(now) {
		return nil, TokenPair{}, ErrTokenExpired
	}

	user, err := s.users.FindByID(record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, TokenPair{}, ErrTokenInvalid
		}
		return nil, TokenPair{}, err
	}

	newRaw, replacement, err := s.newRefreshRecord(user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.tokens.Rotate(hash, replacement); err != nil {
		if errors.Is(err, repository.ErrTokenRotated) {
			// Lost a same-cookie race: another request consumed the token
			// between our lookup and the rotation. Exactly one caller wins;
			// the loser just re-authenticates.
			return nil, TokenPair{}, ErrTokenInvalid
		}
		return nil, TokenPair{}, err
	}

	access, err := s.jwt.SignAccessToken(user.ID, user.Role, s.accessTTL)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, TokenPair{AccessToken: access, RefreshToken: newRaw}, nil
}

func (s *AuthService) handleReuse(record *domain.RefreshToken, hash string) error {
	revoked, err := s.tokens.RevokeAllByUserID(record.UserID)
	if err != nil {
		s.logger.Error("failed to revoke token family after reuse",
			slog.Uint64("user_id", uint64(record.UserID)),
			slog.String("error", err.Error()))
		return err
	}
	s.logger.Warn("refresh token reuse detected, revoked all live tokens",
		slog.Uint64("user_id", uint64(record.UserID)),
		slog.String("token_prefix", security.TokenPrefix(hash)),
		slog.Int64("revoked_count", revoked))
	observability.RecordTokensRevoked(context.Background(), revoked, "reuse_detected")
	return ErrTokenReuseDetected
}

// Logout revokes the presented refresh token. Missing or already-revoked
// tokens are a no-op so repeated logouts stay 200.
func (s *AuthService) Logout(raw string) error {
	if raw == "" {
		return nil
	}
	return s.tokens.RevokeByHash(security.HashRefreshToken(raw, s.pepper))
}

// IdentifyAccessToken resolves the principal behind an access token for
// audit attribution. The signature must verify but expiry is tolerated, so
// a logout arriving after the access token lapsed still names its actor.
func (s *AuthService) IdentifyAccessToken(raw string) (uint, bool) {
	if raw == "" {
		return 0, false
	}
	claims, err := s.jwt.ParseAccessTokenAllowExpired(raw)
	if err != nil {
		return 0, false
	}
	id, err := claims.UserID()
	if err != nil {
		return 0, false
	}
	return id, true
}

// CleanupExpired removes refresh token rows past their expiry. Revocation
// state never depends on this running; it only keeps the table small.
func (s *AuthService) CleanupExpired() (int64, error) {
	return s.tokens.DeleteExpired(s.now().UTC())
}

func (s *AuthService) newRefreshRecord(userID uint) (string, *domain.RefreshToken, error) {
	raw, err := security.NewOpaqueToken()
	if err != nil {
		return "", nil, err
	}
	record := &domain.RefreshToken{
		TokenHash: security.HashRefreshToken(raw, s.pepper),
		UserID:    userID,
		ExpiresAt: s.now().UTC().Add(s.refreshTTL),
	}
	return raw, record, nil
}
