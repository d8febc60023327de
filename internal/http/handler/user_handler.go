package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/response"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/observability"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/repository"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/service"
)

type UserHandler struct {
	userSvc *service.UserService
}

func NewUserHandler(userSvc *service.UserService) *UserHandler {
	return &UserHandler{userSvc: userSvc}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := authUserID(r)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid user", nil)
		return
	}
	u, err := h.userSvc.GetByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load user", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, u)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userSvc.List()
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list users", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"users": users})
}

type createUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Create registers an account and returns the generated initial password
// in this response only; it is never retrievable again.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, err := authUserID(r)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid user", nil)
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	role := domain.RoleMember
	if req.Role != "" {
		role = domain.Role(req.Role)
	}

	user, initialPassword, err := h.userSvc.Create(req.Email, req.Name, role)
	if err != nil {
		writeUserError(w, r, err, "failed to create user")
		return
	}

	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "user.create",
		ActorUserID: observability.ActorUserID(actorID),
		TargetType:  "user",
		TargetID:    observability.ActorUserID(user.ID),
		Action:      "create",
		Outcome:     "success",
		Reason:      "admin_created_user",
	}, "role", string(user.Role))
	response.JSON(w, r, http.StatusCreated, map[string]any{
		"user":             user,
		"initial_password": initialPassword,
	})
}

type updateProfileRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, err := authUserID(r)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid user", nil)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	user, err := h.userSvc.UpdateProfile(userID, req.Email, req.Name)
	if err != nil {
		writeUserError(w, r, err, "failed to update profile")
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword swaps the credential and revokes every refresh token the
// user holds, forcing other devices to log in again.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := authUserID(r)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid user", nil)
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	if err := h.userSvc.ChangePassword(userID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidPassword) {
			observability.EmitAudit(r, observability.AuditInput{
				EventName:   "user.password_change",
				ActorUserID: observability.ActorUserID(userID),
				TargetType:  "user",
				TargetID:    observability.ActorUserID(userID),
				Action:      "password_change",
				Outcome:     "failure",
				Reason:      "current_password_mismatch",
			})
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "current password is incorrect", nil)
			return
		}
		writeUserError(w, r, err, "failed to change password")
		return
	}

	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "user.password_change",
		ActorUserID: observability.ActorUserID(userID),
		TargetType:  "user",
		TargetID:    observability.ActorUserID(userID),
		Action:      "password_change",
		Outcome:     "success",
		Reason:      "sessions_revoked",
	})
	response.JSON(w, r, http.StatusOK, map[string]any{"changed": true})
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, err := authUserID(r)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid user", nil)
		return
	}

	id64, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid user id", nil)
		return
	}
	targetID := uint(id64)

	if err := h.userSvc.Delete(targetID); err != nil {
		if errors.Is(err, service.ErrCannotDeleteAdmin) {
			observability.EmitAudit(r, observability.AuditInput{
				EventName:   "user.delete",
				ActorUserID: observability.ActorUserID(actorID),
				TargetType:  "user",
				TargetID:    observability.ActorUserID(targetID),
				Action:      "delete",
				Outcome:     "denied",
				Reason:      "admin_undeletable",
			})
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "admin account cannot be deleted", nil)
			return
		}
		writeUserError(w, r, err, "failed to delete user")
		return
	}

	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "user.delete",
		ActorUserID: observability.ActorUserID(actorID),
		TargetType:  "user",
		TargetID:    observability.ActorUserID(targetID),
		Action:      "delete",
		Outcome:     "success",
		Reason:      "admin_deleted_user",
	})
	response.JSON(w, r, http.StatusOK, map[string]any{"deleted": true})
}

func writeUserError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, service.ErrEmailTaken):
		response.Error(w, r, http.StatusConflict, "CONFLICT", "email already registered", nil)
	case errors.Is(err, repository.ErrUserNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", fallback, nil)
	}
}
