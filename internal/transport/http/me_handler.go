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

	"github.com/hangar-aero/hangar/internal/observability/logger"
	"github.com/hangar-aero/hangar/internal/rbac"
	"github.com/hangar-aero/hangar/internal/session"
)

// MeResponse describes the caller as the gate resolved it.
type MeResponse struct {
	ID             string      `json:"id"`
	Email          string      `json:"email,omitempty"`
	Roles          []rbac.Role `json:"roles"`
	Impersonating  bool        `json:"impersonating"`
	ImpersonatorID string      `json:"impersonator_id,omitempty"`
}

// GetCurrentUser returns the current user
// @Summary Current user
// @Description Returns the resolved subject. Roles are those carried by the credential.
// @Tags Session
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MeResponse
// @Failure 401 {object} ErrorResponse
// @Router /me [get]
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	id, err := session.CurrentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	resp := MeResponse{
		ID:             id.SubjectID,
		Roles:          id.Roles,
		Impersonating:  id.Impersonating(),
		ImpersonatorID: id.ImpersonatorID,
	}
	if user, err := h.identityService.GetUser(r.Context(), id.SubjectID); err == nil {
		resp.Email = user.Email
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetMyCapabilities lists the caller's effective capabilities
// @Summary My capabilities
// @Description Effective capabilities of the caller, read from the store. Explicit denials win over grants.
// @Tags Session
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string][]string
// @Failure 503 {object} ErrorResponse
// @Router /me/capabilities [get]
func (h *Handler) GetMyCapabilities(w http.ResponseWriter, r *http.Request) {
	id, err := session.CurrentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	caps, err := h.authzService.EffectiveCapabilities(r.Context(), id.SubjectID)
	if err != nil {
		slog.WarnContext(r.Context(), "capability lookup failed", logger.SubjectID(id.SubjectID), logger.Error(err))
		respondError(w, http.StatusServiceUnavailable, "capabilities unavailable")
		return
	}

	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.String()
	}
	respondJSON(w, http.StatusOK, map[string][]string{"capabilities": names})
}

// GetMyMenu lists the menu entries the caller may see
// @Summary My menu
// @Tags Session
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string][]string
// @Failure 503 {object} ErrorResponse
// @Router /me/menu [get]
func (h *Handler) GetMyMenu(w http.ResponseWriter, r *http.Request) {
	id, err := session.CurrentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	menus, err := h.authzService.VisibleMenus(r.Context(), id.SubjectID)
	if err != nil {
		slog.WarnContext(r.Context(), "menu lookup failed", logger.SubjectID(id.SubjectID), logger.Error(err))
		respondError(w, http.StatusServiceUnavailable, "menu unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"menus": menus})
}

// StopImpersonation ends the caller's impersonation
// @Summary Stop impersonation
// @Description Clears the impersonation cookie so the caller's own credential applies again
// @Tags Session
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]string
// @Failure 409 {object} ErrorResponse
// @Router /session/impersonation [delete]
func (h *Handler) StopImpersonation(w http.ResponseWriter, r *http.Request) {
	id, err := session.CurrentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.sessionService.StopImpersonation(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotImpersonating) {
			respondError(w, http.StatusConflict, "not impersonating")
			return
		}
		slog.ErrorContext(r.Context(), "failed to stop impersonation", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to stop impersonation")
		return
	}

	h.clearCookie(w, h.sessionConfig.ImpersonationCookieName)
	respondJSON(w, http.StatusOK, map[string]string{
		"message":    "impersonation stopped",
		"subject_id": id.ImpersonatorID,
	})
}
