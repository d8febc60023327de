package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/config"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/middleware"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/response"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/observability"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/security"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/service"
)

type AuthHandler struct {
	authSvc    *service.AuthService
	cookies    *security.CookieManager
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthHandler(authSvc *service.AuthService, cookies *security.CookieManager, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authSvc:    authSvc,
		cookies:    cookies,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email and password are required", nil)
		return
	}

	user, pair, err := h.authSvc.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			observability.EmitAudit(r, observability.AuditInput{
				EventName:   "auth.login",
				ActorUserID: observability.ActorUserID(0),
				TargetType:  "user",
				TargetID:    "unknown",
				Action:      "login",
				Outcome:     "failure",
				Reason:      "invalid_credentials",
			})
			observability.RecordAuthEvent(r.Context(), "login", "failure")
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid email or password", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "login failed", nil)
		return
	}

	h.setCookies(w, pair)
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "auth.login",
		ActorUserID: observability.ActorUserID(user.ID),
		TargetType:  "user",
		TargetID:    observability.ActorUserID(user.ID),
		Action:      "login",
		Outcome:     "success",
		Reason:      "credentials_ok",
	})
	observability.RecordAuthEvent(r.Context(), "login", "success")
	response.JSON(w, r, http.StatusOK, user)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := security.GetCookie(r, security.RefreshTokenCookie)
	if raw == "" {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "refresh token required", nil)
		return
	}

	user, pair, err := h.authSvc.Refresh(raw)
	if err != nil {
		h.cookies.ClearTokenCookies(w)
		switch {
		case errors.Is(err, service.ErrTokenReuseDetected):
			// The caller sees the same 401 as any invalid token; only the
			// audit trail and metrics know the difference.
			observability.EmitAudit(r, observability.AuditInput{
				EventName:   "auth.refresh",
				ActorUserID: observability.ActorUserID(0),
				TargetType:  "refresh_token",
				TargetID:    "redacted",
				Action:      "refresh",
				Outcome:     "denied",
				Reason:      "reuse_detected",
			})
			observability.RecordAuthEvent(r.Context(), "refresh", "reuse_detected")
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid refresh token", nil)
		case errors.Is(err, service.ErrTokenExpired):
			observability.RecordAuthEvent(r.Context(), "refresh", "expired")
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "refresh token expired", nil)
		case errors.Is(err, service.ErrTokenInvalid):
			observability.RecordAuthEvent(r.Context(), "refresh", "invalid")
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid refresh token", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "refresh failed", nil)
		}
		return
	}

	h.setCookies(w, pair)
	observability.RecordAuthEvent(r.Context(), "refresh", "success")
	response.JSON(w, r, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw := security.GetCookie(r, security.RefreshTokenCookie)
	if err := h.authSvc.Logout(raw); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "logout failed", nil)
		return
	}

	h.cookies.ClearTokenCookies(w)
	// Logout is routed outside the authenticator so an expired access token
	// can still end the session; attribute the actor best-effort from the
	// presented token instead of the (empty) auth context.
	actorID := uint(0)
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		if id, err := claims.UserID(); err == nil {
			actorID = id
		}
	} else if id, ok := h.authSvc.IdentifyAccessToken(middleware.ExtractAccessToken(r)); ok {
		actorID = id
	}
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "auth.logout",
		ActorUserID: observability.ActorUserID(actorID),
		TargetType:  "user",
		TargetID:    observability.ActorUserID(actorID),
		Action:      "logout",
		Outcome:     "success",
		Reason:      "session_ended",
	})
	observability.RecordAuthEvent(r.Context(), "logout", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"logged_out": true})
}

func (h *AuthHandler) setCookies(w http.ResponseWriter, pair service.TokenPair) {
	h.cookies.SetTokenCookies(w, pair.AccessToken, pair.RefreshToken, h.accessTTL, h.refreshTTL)
}

func authUserID(r *http.Request) (uint, error) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return 0, errors.New("missing auth context")
	}
	id64, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id64), nil
}
