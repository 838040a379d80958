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

package session

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hangar-aero/hangar/internal/observability/logger"
	"github.com/hangar-aero/hangar/internal/observability/metrics"
	"github.com/hangar-aero/hangar/internal/token"
)

// ImpersonationHeader carries an impersonation credential for API clients.
const ImpersonationHeader = "X-Impersonation-Token"

// Verifier checks a raw credential.
type Verifier interface {
	Verify(raw string) (*token.Claims, error)
}

// CookieConfig names the cookies that may carry credentials.
type CookieConfig struct {
	SessionCookie       string
	ImpersonationCookie string
}

// Resolver extracts and verifies the credential of a request.
type Resolver struct {
	verifier Verifier
	cookies  CookieConfig
	metrics  *metrics.Access
}

// NewResolver creates a resolver. m may be nil.
func NewResolver(verifier Verifier, cookies CookieConfig, m *metrics.Access) *Resolver {
	return &Resolver{verifier: verifier, cookies: cookies, metrics: m}
}

// Resolve returns the identity of r.
//
// A valid impersonation credential takes precedence over the subject's own
// credential. An invalid or expired one is ignored so that the impersonator
// falls back to their own identity. The own credential is read from the
// Authorization header, then the session cookie. Every failure is
// ErrUnauthenticated.
func (s *Resolver) Resolve(r *http.Request) (*Identity, error) {
	ctx := r.Context()

	if raw := s.impersonationCredential(r); raw != "" {
		claims, err := s.verifier.Verify(raw)
		switch {
		case err != nil:
			s.metrics.Verification(ctx, false)
			slog.DebugContext(ctx, "ignoring invalid impersonation credential")
		case !claims.Impersonating():
			s.metrics.Verification(ctx, false)
			slog.WarnContext(ctx, "impersonation slot carried a non-impersonation credential")
		default:
			s.metrics.Verification(ctx, true)
			return identityFrom(claims), nil
		}
	}

	raw := s.ownCredential(r)
	if raw == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := s.verifier.Verify(raw)
	if err != nil {
		s.metrics.Verification(ctx, false)
		slog.DebugContext(ctx, "credential rejected", logger.Path(r.URL.Path))
		return nil, ErrUnauthenticated
	}
	s.metrics.Verification(ctx, true)
	return identityFrom(claims), nil
}

func identityFrom(c *token.Claims) *Identity {
	return &Identity{
		SubjectID:      c.Subject,
		Roles:          c.Roles,
		ImpersonatorID: c.Actor,
	}
}

func (s *Resolver) impersonationCredential(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(ImpersonationHeader)); v != "" {
		return v
	}
	return cookieValue(r, s.cookies.ImpersonationCookie)
}

func (s *Resolver) ownCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
		return ""
	}
	return cookieValue(r, s.cookies.SessionCookie)
}

// FromCookie reports whether the own credential of r came from a cookie
// rather than the Authorization header. Cookie-authenticated mutations need
// CSRF protection.
func (s *Resolver) FromCookie(r *http.Request) bool {
	return r.Header.Get("Authorization") == "" && cookieValue(r, s.cookies.SessionCookie) != ""
}

func cookieValue(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
