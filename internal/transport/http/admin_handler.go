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
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hangar-aero/hangar/internal/authz"
	"github.com/hangar-aero/hangar/internal/identity"
	"github.com/hangar-aero/hangar/internal/observability/logger"
	"github.com/hangar-aero/hangar/internal/policy"
	"github.com/hangar-aero/hangar/internal/rbac"
	"github.com/hangar-aero/hangar/internal/session"
)

// Administration handlers run behind RequireFreshRoles, so the identity in
// context carries roles read from the store on this request.

// ListRoles returns the role catalogue
// @Summary List roles
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string][]authz.RoleInfo
// @Failure 403 {object} ErrorResponse
// @Router /admin/roles [get]
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.authzService.ListRoles(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list roles", logger.Error(err))
		respondError(w, http.StatusServiceUnavailable, "roles unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string][]authz.RoleInfo{"roles": roles})
}

// GetRoleCapabilities returns the capability rows of one role
// @Summary Role capabilities
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param role path string true "Role"
// @Success 200 {object} map[string][]authz.RoleCapability
// @Failure 404 {object} ErrorResponse
// @Router /admin/roles/{role}/capabilities [get]
func (h *Handler) GetRoleCapabilities(w http.ResponseWriter, r *http.Request) {
	role, ok := roleParam(r)
	if !ok {
		respondError(w, http.StatusNotFound, "role not found")
		return
	}

	rows, err := h.authzService.CapabilitiesForRole(r.Context(), role)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load role capabilities", logger.Error(err))
		respondError(w, http.StatusServiceUnavailable, "capabilities unavailable")
		return
	}
	if rows == nil {
		rows = []authz.RoleCapability{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"role": role, "capabilities": rows})
}

// SetRoleCapabilityRequest grants or denies one capability.
type SetRoleCapabilityRequest struct {
	Capability string `json:"capability" validate:"required,max=128" example:"fleet.aircraft.edit"`
	Granted    *bool  `json:"granted" validate:"required"`
}

// SetRoleCapability changes a role's capability row
// @Summary Set role capability
// @Description An explicit deny (granted=false) overrides grants from the subject's other roles
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param role path string true "Role"
// @Param request body SetRoleCapabilityRequest true "Capability"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/roles/{role}/capabilities [put]
func (h *Handler) SetRoleCapability(w http.ResponseWriter, r *http.Request) {
	id, err := session.CurrentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	role, ok := roleParam(r)
	if !ok {
		respondError(w, http.StatusNotFound, "role not found")
		return
	}

	var req SetRoleCapabilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, requestError(err))
		return
	}
	if !rbac.CanAssign(id.Roles, role) {
		h.deny(w, r, id, policy.KindAPI, reasonRole)
		return
	}

	err = h.authzService.SetRoleCapability(r.Context(), id.ActorID(), role, req.Capability, *req.Granted)
	if err != nil {
		switch {
		case errors.Is(err, authz.ErrInvalidCapability):
			respondError(w, http.StatusBadRequest, "invalid capability")
		case errors.Is(err, authz.ErrCapabilityNotFound):
			respondError(w, http.StatusNotFound, "capability not found")
		default:
			slog.ErrorContext(r.Context(), "failed to set role capability", logger.Error(err))
			respondError(w, http.StatusServiceUnavailable, "update failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "capability updated"})
}

// UserSummary is one row of the member list.
type UserSummary struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	Profile   identity.Profile `json:"profile"`
	Status    identity.Status  `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// ListUsers returns a page of members
// @Summary List users
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (max 200)"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]any
// @Router /admin/users [get]
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, err := h.identityService.ListUsers(r.Context(), limit, offset)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list users", logger.Error(err))
		respondError(w, http.StatusServiceUnavailable, "users unavailable")
		return
	}

	out := make([]UserSummary, len(users))
	for i, u := range users {
		out[i] = UserSummary{ID: u.ID, Email: u.Email, Profile: u.Profile, Status: u.Status, CreatedAt: u.CreatedAt}
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": out, "offset": max(offset, 0)})
}

// AssignmentResponse is one role held by a member.
type AssignmentResponse struct {
	Role      rbac.Role `json:"role"`
	GrantedBy string    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// GetUserRoles lists a member's role assignments
// @Summary User roles
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Success 200 {object} map[string][]AssignmentResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/users/{userID}/roles [get]
func (h *Handler) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, err := h.identityService.GetUser(r.Context(), userID); err != nil {
		h.userLookupError(w, r, err)
		return
	}

	assignments, err := h.authzService.ListAssignments(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list assignments", logger.Error(err))
		respondError(w, http.StatusServiceUnavailable, "roles unavailable")
		return
	}

	out := make([]AssignmentResponse, len(assignments))
	for i, a := range assignments {
		out[i] = AssignmentResponse{Role: a.Role, GrantedBy: a.GrantedBy, GrantedAt: a.GrantedAt}
	}
	respondJSON(w, http.StatusOK, map[string][]AssignmentResponse{"roles": out})
}

// GrantRoleRequest names the role to grant.
type GrantRoleRequest struct {
	Role string `json:"role" validate:"required,max=32" example:"PILOT"`
}

// GrantRole assigns a role to a member
// @Summary Grant role
// @Description The change reaches the member's coarse checks at their next login or refresh
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Param request body GrantRoleRequest true "Role"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/users/{userID}/roles [post]
func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	id, err := session.CurrentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	userID := chi.URLParam(r, "userID")

	var req GrantRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, requestError(err))
		return
	}
	role, err := rbac.Parse(req.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid role")
		return
	}
	if !rbac.CanAssign(id.Roles, role) {
		h.deny(w, r, id, policy.KindAPI, reasonRole)
		return
	}

	if err := h.authzService.Grant(r.Context(), id.ActorID(), userID, role); err != nil {
		h.assignmentError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "role granted",
		logger.SubjectID(userID),
		logger.String("role", role.String()),
		logger.String("actor_id", id.ActorID()),
	)
	respondJSON(w, http.StatusOK, map[string]string{"message": "role granted"})
}

// RevokeRole removes a role from a member
// @Summary Revoke role
// @Description Revoking the last role of a member is rejected
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Param role path string true "Role"
// @Success 200 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/users/{userID}/roles/{role} [delete]
func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	id, err := session.CurrentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	userID := chi.URLParam(r, "userID")
	role, ok := roleParam(r)
	if !ok {
		respondError(w, http.StatusNotFound, "role not found")
		return
	}
	if !rbac.CanAssign(id.Roles, role) {
		h.deny(w, r, id, policy.KindAPI, reasonRole)
		return
	}
	if _, err := h.identityService.GetUser(r.Context(), userID); err != nil {
		h.userLookupError(w, r, err)
		return
	}

	if err := h.authzService.Revoke(r.Context(), id.ActorID(), userID, role); err != nil {
		h.assignmentError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "role revoked",
		logger.SubjectID(userID),
		logger.String("role", role.String()),
		logger.String("actor_id", id.ActorID()),
	)
	respondJSON(w, http.StatusOK, map[string]string{"message": "role revoked"})
}

// SetUserStatusRequest enables or disables a member.
type SetUserStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active disabled"`
}

// SetUserStatus enables or disables a member
// @Summary Set user status
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Param request body SetUserStatusRequest true "Status"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/users/{userID}/status [patch]
func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	id, err := session.CurrentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	userID := chi.URLParam(r, "userID")

	var req SetUserStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, requestError(err))
		return
	}

	// Same rank rule as role grants: the caller must outrank or equal every
	// role the target holds.
	targetRoles, err := h.authzService.RolesForSubject(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to read target roles", logger.Error(err))
		respondError(w, http.StatusServiceUnavailable, "update failed")
		return
	}
	for _, role := range targetRoles {
		if !rbac.CanAssign(id.Roles, role) {
			h.deny(w, r, id, policy.KindAPI, reasonRole)
			return
		}
	}

	err = h.identityService.SetStatus(r.Context(), id.ActorID(), userID, identity.Status(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrSelfStatusChange):
			respondError(w, http.StatusBadRequest, "cannot change own status")
		case errors.Is(err, identity.ErrInvalidStatus):
			respondError(w, http.StatusBadRequest, "invalid status")
		case errors.Is(err, identity.ErrUserNotFound):
			respondError(w, http.StatusNotFound, "user not found")
		default:
			slog.ErrorContext(r.Context(), "failed to set status", logger.Error(err))
			respondError(w, http.StatusServiceUnavailable, "update failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "status updated", "status": req.Status})
}

// StartImpersonationRequest names the member to act as.
type StartImpersonationRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// StartImpersonation lets a super admin act as another member
// @Summary Start impersonation
// @Description Issues a short-lived credential carrying the target's roles and the caller as actor. It wins over the caller's own credential until it expires or is stopped.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body StartImpersonationRequest true "Target"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/impersonation [post]
func (h *Handler) StartImpersonation(w http.ResponseWriter, r *http.Request) {
	id, err := session.CurrentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req StartImpersonationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, requestError(err))
		return
	}
	if _, err := h.identityService.GetActiveUser(r.Context(), req.UserID); err != nil {
		h.userLookupError(w, r, err)
		return
	}

	cred, err := h.sessionService.StartImpersonation(r.Context(), id, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNestedImpersonation):
			respondError(w, http.StatusConflict, "already impersonating")
		case errors.Is(err, session.ErrSelfImpersonation):
			respondError(w, http.StatusBadRequest, "cannot impersonate yourself")
		case errors.Is(err, session.ErrImpersonationNotAllowed):
			respondError(w, http.StatusForbidden, "target cannot be impersonated")
		case errors.Is(err, session.ErrNoRoles):
			respondError(w, http.StatusConflict, "target holds no roles")
		default:
			slog.ErrorContext(r.Context(), "failed to start impersonation", logger.Error(err))
			respondError(w, http.StatusServiceUnavailable, "impersonation failed")
		}
		return
	}

	slog.InfoContext(r.Context(), "impersonation started",
		logger.SubjectID(req.UserID),
		logger.Impersonator(id.SubjectID),
		logger.Roles(cred.Roles),
	)
	h.setCookie(w, h.sessionConfig.ImpersonationCookieName, cred.Token, cred.ExpiresIn)
	respondJSON(w, http.StatusOK, tokenResponse(req.UserID, cred))
}

// GetPolicy returns the compiled route table
// @Summary Access policy
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Router /admin/policy [get]
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"rules":        h.policy.Table().Rules(),
		"capabilities": h.policy.Capabilities(),
	})
}

// roleParam parses the {role} URL parameter.
func roleParam(r *http.Request) (rbac.Role, bool) {
	role, err := rbac.Parse(chi.URLParam(r, "role"))
	return role, err == nil
}

func (h *Handler) userLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, identity.ErrAccountDisabled):
		respondError(w, http.StatusConflict, "user is disabled")
	default:
		slog.ErrorContext(r.Context(), "user lookup failed", logger.Error(err))
		respondError(w, http.StatusServiceUnavailable, "users unavailable")
	}
}

func (h *Handler) assignmentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrSubjectNotFound):
		respondError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, authz.ErrInvalidRole):
		respondError(w, http.StatusBadRequest, "invalid role")
	case errors.Is(err, authz.ErrLastRole):
		respondError(w, http.StatusConflict, "cannot revoke the last role")
	default:
		slog.ErrorContext(r.Context(), "role assignment failed", logger.Error(err))
		respondError(w, http.StatusServiceUnavailable, "update failed")
	}
}
