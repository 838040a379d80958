// Copyright 2026 The Hangar Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hangar-aero/hangar/internal/audit"
	"github.com/hangar-aero/hangar/internal/identity"
	"github.com/hangar-aero/hangar/internal/observability/logger"
	"github.com/hangar-aero/hangar/internal/rbac"
	"github.com/hangar-aero/hangar/internal/session"
)

// RegisterRequest represents registration data
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254" example:"student@example.com"`
	Password string `json:"password" validate:"required,min=10,max=256" example:"Cessna172skyhawk"`
	FullName string `json:"full_name" validate:"max=200" example:"Amelia Earhart"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	HomeBase string `json:"home_base" validate:"omitempty,max=64" example:"LFPN"`
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254" example:"student@example.com"`
	Password string `json:"password" validate:"required,max=256" example:"Cessna172skyhawk"`
}

// TokenResponse carries a freshly issued credential.
type TokenResponse struct {
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresIn int         `json:"expires_in"`
	UserID    string      `json:"user_id"`
	Roles     []rbac.Role `json:"roles"`
}

func tokenResponse(subjectID string, cred *session.Credential) TokenResponse {
	return TokenResponse{
		Token:     cred.Token,
		TokenType: "Bearer",
		ExpiresIn: int(cred.ExpiresIn.Seconds()),
		UserID:    subjectID,
		Roles:     cred.Roles,
	}
}

// Register handles user registration
// @Summary Register a new member
// @Description Creates an account holding only the PROSPECT role and signs it in
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration Data"
// @Success 201 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, requestError(err))
		return
	}

	user, err := h.identityService.Register(r.Context(), req.Email, req.Password, identity.Profile{
		FullName: req.FullName,
		Phone:    req.Phone,
		HomeBase: req.HomeBase,
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "user already exists")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password must be at least 10 characters and mix letters and digits")
		default:
			slog.ErrorContext(r.Context(), "failed to register user", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	cred, err := h.sessionService.Issue(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue credential", logger.SubjectID(user.ID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setCookie(w, h.sessionConfig.CookieName, cred.Token, cred.ExpiresIn)
	respondJSON(w, http.StatusCreated, tokenResponse(user.ID, cred))
}

// Login handles user login
// @Summary Login
// @Description Verifies the password and issues a credential carrying the member's current roles
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 423 {object} ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, requestError(err))
		return
	}

	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrAccountDisabled):
			respondError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, identity.ErrAccountLocked):
			respondError(w, http.StatusLocked, "account temporarily locked")
		default:
			slog.ErrorContext(r.Context(), "login failed", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	cred, err := h.sessionService.Issue(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, session.ErrNoRoles) {
			respondError(w, http.StatusForbidden, "no roles assigned")
			return
		}
		slog.ErrorContext(r.Context(), "failed to issue credential", logger.SubjectID(user.ID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setCookie(w, h.sessionConfig.CookieName, cred.Token, cred.ExpiresIn)
	h.clearCookie(w, h.sessionConfig.ImpersonationCookieName)
	respondJSON(w, http.StatusOK, tokenResponse(user.ID, cred))
}

// Refresh rotates the caller's credential
// @Summary Refresh
// @Description Issues a new credential with roles re-read from the store
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} TokenResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, err := session.CurrentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if id.Impersonating() {
		respondError(w, http.StatusConflict, "stop impersonating before refreshing")
		return
	}

	if _, err := h.identityService.GetActiveUser(r.Context(), id.SubjectID); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) || errors.Is(err, identity.ErrAccountDisabled) {
			h.clearCookie(w, h.sessionConfig.CookieName)
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		slog.ErrorContext(r.Context(), "refresh lookup failed", logger.SubjectID(id.SubjectID), logger.Error(err))
		respondError(w, http.StatusServiceUnavailable, "try again later")
		return
	}

	cred, err := h.sessionService.Issue(r.Context(), id.SubjectID)
	if err != nil {
		if errors.Is(err, session.ErrNoRoles) {
			respondError(w, http.StatusForbidden, "no roles assigned")
			return
		}
		slog.ErrorContext(r.Context(), "failed to issue credential", logger.SubjectID(id.SubjectID), logger.Error(err))
		respondError(w, http.StatusServiceUnavailable, "try again later")
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeTokenRefreshed,
		ActorID:   id.SubjectID,
		SubjectID: id.SubjectID,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{"roles": rbac.Strings(cred.Roles)},
	})

	h.setCookie(w, h.sessionConfig.CookieName, cred.Token, cred.ExpiresIn)
	respondJSON(w, http.StatusOK, tokenResponse(id.SubjectID, cred))
}

// Logout handles user logout
// @Summary Logout
// @Description Clears the session and impersonation cookies. Bearer clients discard their token.
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]string
// @Failure 401 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, err := session.CurrentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLogout,
		ActorID:   id.ActorID(),
		SubjectID: id.SubjectID,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})

	h.clearCookie(w, h.sessionConfig.CookieName)
	h.clearCookie(w, h.sessionConfig.ImpersonationCookieName)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out successfully",
	})
}

// PasswordResetRequest starts a password reset
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

// PasswordResetConfirmRequest completes a password reset
type PasswordResetConfirmRequest struct {
	Token    string `json:"token" validate:"required,max=128"`
	Password string `json:"password" validate:"required,min=10,max=256"`
}

// RequestPasswordReset sends a reset link
// @Summary Request password reset
// @Description Always answers 202 so the response does not reveal whether the address is registered
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body PasswordResetRequest true "Email"
// @Success 202 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /auth/password-reset [post]
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, requestError(err))
		return
	}

	if err := h.identityService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, identity.ErrResetUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "password reset is not available")
			return
		}
		slog.ErrorContext(r.Context(), "password reset request failed", logger.Error(err))
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "if the address is registered, a reset link has been sent",
	})
}

// ConfirmPasswordReset sets a new password
// @Summary Confirm password reset
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body PasswordResetConfirmRequest true "Token and new password"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /auth/password-reset/confirm [post]
func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, requestError(err))
		return
	}

	err := h.identityService.ConfirmPasswordReset(r.Context(), req.Token, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidResetToken):
			respondError(w, http.StatusBadRequest, "invalid or expired reset token")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password must be at least 10 characters and mix letters and digits")
		case errors.Is(err, identity.ErrResetUnavailable):
			respondError(w, http.StatusServiceUnavailable, "password reset is not available")
		default:
			slog.ErrorContext(r.Context(), "password reset failed", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "password reset failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "password updated",
	})
}
