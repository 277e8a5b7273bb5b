package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/handler/dto"
	"github.com/pulseboard/pulseboard/internal/model"
	"github.com/pulseboard/pulseboard/internal/service"
)

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: svc,
		logger:  logger.With("component", "auth_handler"),
	}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
		return
	}

	session, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeRegisterError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.tokenResponse(session))
}

func (h *AuthHandler) writeRegisterError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email address")
	case errors.Is(err, service.ErrPasswordTooShort):
		msg := fmt.Sprintf("Password must be at least %d characters", h.service.PasswordMinLength())
		writeError(w, http.StatusBadRequest, "PASSWORD_TOO_SHORT", msg)
	case errors.Is(err, service.ErrEmailExists):
		writeError(w, http.StatusBadRequest, "EMAIL_EXISTS", "Email already registered")
	default:
		h.logger.Error("registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// Login handles POST /auth/login. All credential failures share one
// status and message.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
			return
		}
		h.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, h.tokenResponse(session))
}

// Verify handles GET /auth/verify. The auth middleware has already
// resolved the token, so reaching this handler means it is valid.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing credentials")
		return
	}

	writeJSON(w, http.StatusOK, dto.VerifyResponse{
		Valid: true,
		User:  dto.NewUserResponse(user),
	})
}

// Profile handles GET /auth/profile.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing credentials")
		return
	}

	writeJSON(w, http.StatusOK, dto.NewUserResponse(user))
}

// UpdateProfile handles PUT /auth/profile. Only name fields are
// mutable; anything else in the body is ignored.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing credentials")
		return
	}

	var req dto.ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), user, model.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
			return
		}
		h.logger.Error("profile update failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, dto.NewUserResponse(updated))
}

// Deactivate handles DELETE /auth/users/{id}. Users may only target
// themselves; repeated calls succeed.
func (h *AuthHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing credentials")
		return
	}

	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_USER_ID", "User id must be an integer")
		return
	}

	if err := h.service.Deactivate(r.Context(), user, targetID); err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Cannot deactivate another user's account")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
		default:
			h.logger.Error("deactivation failed", "error", err, "user_id", user.ID)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "User account deactivated successfully"})
}

func (h *AuthHandler) tokenResponse(session *service.Session) dto.TokenResponse {
	return dto.TokenResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		ExpiresIn:   h.service.TokenTTL(),
		User:        dto.NewUserResponse(session.User),
	}
}
