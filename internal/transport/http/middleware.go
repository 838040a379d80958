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
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/secure"

	"github.com/hangar-aero/hangar/internal/audit"
	"github.com/hangar-aero/hangar/internal/authz"
	"github.com/hangar-aero/hangar/internal/identity"
	"github.com/hangar-aero/hangar/internal/observability/logger"
	"github.com/hangar-aero/hangar/internal/policy"
	"github.com/hangar-aero/hangar/internal/session"
)

// Access Principles:
// 1. Every path is gated; only the policy's public list skips credentials.
// 2. The coarse check trusts the roles inside the credential.
// 3. Administrative routes re-read roles from the store (strong path).
// 4. Denials are 404 on UI routes and 403 on API routes.
//
// Anti-Patterns (FORBIDDEN):
// - Handlers deriving identity from anything but session.CurrentUser
// - Turning a store failure into an allow
// - Hardcoded role checks in handlers (use capabilities)

// Deny reasons recorded in metrics and audit events.
const (
	reasonUnauthenticated  = "unauthenticated"
	reasonRole             = "role"
	reasonStaleRole        = "stale_role"
	reasonCapability       = "capability"
	reasonStoreUnavailable = "store_unavailable"
	reasonAccountInactive  = "account_inactive"
	reasonAmbiguousPath    = "ambiguous_path"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				level := slog.LevelInfo
				if ww.Status() >= http.StatusInternalServerError {
					level = slog.LevelError
				}
				slog.LogAttrs(r.Context(), level, "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// SecureHeaders sets the standard browser hardening headers.
func SecureHeaders(development bool) func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; frame-ancestors 'none'",
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         development,
	}).Handler
}

// CSRFMiddleware protects cookie-authenticated state changes. Requests
// carrying the credential in the Authorization header are not exposed to
// CSRF and pass unchanged. Otherwise Origin (or Referer) must name the
// request's own host or one of allowedOrigins.
func (h *Handler) CSRFMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				next.ServeHTTP(w, r)
				return
			}
			if !h.resolver.FromCookie(r) && !h.hasImpersonationCookie(r) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = r.Header.Get("Referer")
			}
			if !sameOrigin(origin, r.Host, allowedOrigins) {
				slog.WarnContext(r.Context(), "cross-site request rejected",
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.String("origin", origin),
				)
				respondError(w, http.StatusForbidden, "cross-site request rejected")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) hasImpersonationCookie(r *http.Request) bool {
	if h.sessionConfig.ImpersonationCookieName == "" {
		return false
	}
	c, err := r.Cookie(h.sessionConfig.ImpersonationCookieName)
	return err == nil && c.Value != ""
}

func sameOrigin(origin, host string, allowed []string) bool {
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, host) {
		return true
	}
	base := u.Scheme + "://" + u.Host
	return slices.ContainsFunc(allowed, func(a string) bool {
		return strings.EqualFold(strings.TrimSuffix(a, "/"), base)
	})
}

// Gate is the route gate. Public paths pass untouched. Everything else
// needs a valid credential (401 otherwise) whose roles intersect the
// allow-list of the longest matching policy prefix. Paths outside the
// table only need a valid credential. The resolved identity is attached
// for session.CurrentUser.
func (h *Handler) Gate(next http.Handler) http.Handler {
	table := h.policy.Table()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ambiguousPath(r) {
			h.metrics.Decision(r.Context(), policy.OutcomeDeny.String(), string(policy.KindOf(r.URL.Path)), reasonAmbiguousPath)
			respondError(w, http.StatusBadRequest, "invalid path")
			return
		}

		match := table.Match(r.URL.Path)
		ctx := withMatch(r.Context(), match)
		r = r.WithContext(ctx)

		if match.Public() {
			h.metrics.Decision(ctx, policy.OutcomePublic.String(), string(match.Kind), "")
			next.ServeHTTP(w, r)
			return
		}

		id, err := h.resolver.Resolve(r)
		if err != nil {
			h.metrics.Decision(ctx, policy.OutcomeDeny.String(), string(match.Kind), reasonUnauthenticated)
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		outcome := match.Evaluate(id.Roles)
		if !outcome.Permitted() {
			h.deny(w, r, id, match.Kind, reasonRole)
			return
		}
		h.metrics.Decision(ctx, outcome.String(), string(match.Kind), "")

		next.ServeHTTP(w, r.WithContext(session.WithIdentity(ctx, id)))
	})
}

// ambiguousPath reports whether the router could dispatch r on a different
// path than the one the gate matches. chi routes on the escaped path while
// the table matches the decoded, cleaned one, so encoded separators, encoded
// dots, dot segments and empty segments are refused outright.
func ambiguousPath(r *http.Request) bool {
	escaped := strings.ToLower(r.URL.EscapedPath())
	for _, enc := range []string{"%2f", "%5c", "%2e"} {
		if strings.Contains(escaped, enc) {
			return true
		}
	}
	p := r.URL.Path
	if strings.Contains(p, `\`) || strings.Contains(p, "//") {
		return true
	}
	for seg := range strings.SplitSeq(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// RequireFreshRoles re-evaluates the gate's decision with roles read from
// the store instead of the credential, so a revocation takes effect before
// the credential expires. The subject, and the impersonator when there is
// one, must still be active. The identity passed on carries the fresh roles.
// A store failure denies.
func (h *Handler) RequireFreshRoles(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := session.CurrentUser(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		match, ok := matchFrom(r.Context())
		if !ok {
			match = h.policy.Table().Match(r.URL.Path)
		}

		for _, userID := range []string{id.SubjectID, id.ImpersonatorID} {
			if userID == "" {
				continue
			}
			if _, err := h.identityService.GetActiveUser(r.Context(), userID); err != nil {
				reason := reasonStoreUnavailable
				if errors.Is(err, identity.ErrAccountDisabled) || errors.Is(err, identity.ErrUserNotFound) {
					reason = reasonAccountInactive
				} else {
					slog.WarnContext(r.Context(), "account status lookup failed",
						logger.SubjectID(userID),
						logger.Error(err),
					)
				}
				h.deny(w, r, id, match.Kind, reason)
				return
			}
		}

		roles, err := h.authzService.RolesForSubject(r.Context(), id.SubjectID)
		if err != nil {
			slog.WarnContext(r.Context(), "fresh role lookup failed",
				logger.SubjectID(id.SubjectID),
				logger.Error(err),
			)
			h.deny(w, r, id, match.Kind, reasonStoreUnavailable)
			return
		}
		if !match.Evaluate(roles).Permitted() {
			h.deny(w, r, id, match.Kind, reasonStaleRole)
			return
		}

		fresh := *id
		fresh.Roles = roles
		next.ServeHTTP(w, r.WithContext(session.WithIdentity(r.Context(), &fresh)))
	})
}

// RequireCapability allows the request only when the caller currently holds
// capability according to the store.
func (h *Handler) RequireCapability(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := session.CurrentUser(r)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if err := h.authzService.CheckCapability(r.Context(), id.SubjectID, capability); err != nil {
				reason := reasonCapability
				if errors.Is(err, authz.ErrStoreUnavailable) {
					reason = reasonStoreUnavailable
				}
				h.deny(w, r, id, policy.KindOf(r.URL.Path), reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// deny rejects an authenticated request: 404 for UI routes so their
// existence is not confirmed, 403 for API routes.
func (h *Handler) deny(w http.ResponseWriter, r *http.Request, id *session.Identity, kind policy.Kind, reason string) {
	ctx := r.Context()
	h.metrics.Decision(ctx, policy.OutcomeDeny.String(), string(kind), reason)

	attrs := []any{
		logger.SubjectID(id.SubjectID),
		logger.Path(r.URL.Path),
		logger.Roles(id.Roles),
		logger.Reason(reason),
		logger.Namespace(GetNamespace(ctx)),
	}
	if id.Impersonating() {
		attrs = append(attrs, logger.Impersonator(id.ImpersonatorID))
	}
	slog.InfoContext(ctx, "access denied", attrs...)

	h.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeAccessDenied,
		ActorID:   id.ActorID(),
		SubjectID: id.SubjectID,
		Resource:  r.Method + " " + r.URL.Path,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{"reason": reason, "kind": string(kind), "namespace": GetNamespace(ctx)},
	})

	if kind == policy.KindUI {
		http.NotFound(w, r)
		return
	}
	respondError(w, http.StatusForbidden, "forbidden")
}
