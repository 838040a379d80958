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

// Package session turns bearer credentials into the identity of the current
// request and mints new credentials at login, refresh and impersonation.
package session

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/hangar-aero/hangar/internal/rbac"
)

// Domain errors
var (
	ErrUnauthenticated         = errors.New("unauthenticated")
	ErrNoRoles                 = errors.New("subject holds no roles")
	ErrNotImpersonating        = errors.New("not impersonating")
	ErrNestedImpersonation     = errors.New("already impersonating")
	ErrSelfImpersonation       = errors.New("cannot impersonate self")
	ErrImpersonationNotAllowed = errors.New("target cannot be impersonated")
)

// Identity is the resolved subject of a request. When ImpersonatorID is set,
// SubjectID and Roles are those of the impersonated subject.
type Identity struct {
	SubjectID      string
	Roles          []rbac.Role
	ImpersonatorID string
}

// Impersonating reports whether the identity comes from an impersonation
// credential.
func (i *Identity) Impersonating() bool {
	return i.ImpersonatorID != ""
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role rbac.Role) bool {
	return slices.Contains(i.Roles, role)
}

// ActorID is the subject responsible for actions taken under this identity:
// the impersonator when impersonating, otherwise the subject itself.
func (i *Identity) ActorID() string {
	if i.ImpersonatorID != "" {
		return i.ImpersonatorID
	}
	return i.SubjectID
}

type contextKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity attached by WithIdentity.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok && id != nil
}

// CurrentUser returns the identity the route gate attached to r.
func CurrentUser(r *http.Request) (*Identity, error) {
	id, ok := FromContext(r.Context())
	if !ok {
		return nil, ErrUnauthenticated
	}
	return id, nil
}
