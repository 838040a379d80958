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
	"context"
	"fmt"
	"time"

	"github.com/hangar-aero/hangar/internal/audit"
	"github.com/hangar-aero/hangar/internal/rbac"
)

// Issuer mints signed credentials.
type Issuer interface {
	Issue(subjectID string, roles []rbac.Role, ttl time.Duration) (string, error)
	IssueImpersonation(actorID, subjectID string, roles []rbac.Role, ttl time.Duration) (string, error)
}

// RoleSource is the authoritative store of role assignments.
type RoleSource interface {
	RolesForSubject(ctx context.Context, subjectID string) ([]rbac.Role, error)
}

// Credential is a freshly minted token.
type Credential struct {
	Token     string
	Roles     []rbac.Role
	ExpiresIn time.Duration
}

// Service mints credentials with roles read from the store at issuance.
type Service struct {
	issuer           Issuer
	roles            RoleSource
	auditLogger      audit.Logger
	ttl              time.Duration
	impersonationTTL time.Duration
}

// NewService creates a new session service
func NewService(issuer Issuer, roles RoleSource, auditLogger audit.Logger, ttl, impersonationTTL time.Duration) *Service {
	return &Service{
		issuer:           issuer,
		roles:            roles,
		auditLogger:      auditLogger,
		ttl:              ttl,
		impersonationTTL: impersonationTTL,
	}
}

// Issue mints a credential for subjectID carrying its current roles. It is
// used at login, registration and refresh; refresh is how role changes reach
// the coarse path before the old credential expires.
func (s *Service) Issue(ctx context.Context, subjectID string) (*Credential, error) {
	roles, err := s.roles.RolesForSubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles: %w", err)
	}
	if len(roles) == 0 {
		return nil, ErrNoRoles
	}

	raw, err := s.issuer.Issue(subjectID, roles, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to issue credential: %w", err)
	}
	return &Credential{Token: raw, Roles: roles, ExpiresIn: s.ttl}, nil
}

// StartImpersonation mints an impersonation credential letting actor act as
// subjectID with the subject's current roles. Nested impersonation, self
// impersonation and impersonating a SUPER_ADMIN are rejected.
func (s *Service) StartImpersonation(ctx context.Context, actor *Identity, subjectID string) (*Credential, error) {
	if actor.Impersonating() {
		return nil, ErrNestedImpersonation
	}
	if actor.SubjectID == subjectID {
		return nil, ErrSelfImpersonation
	}

	roles, err := s.roles.RolesForSubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles: %w", err)
	}
	if len(roles) == 0 {
		return nil, ErrNoRoles
	}
	target := &Identity{SubjectID: subjectID, Roles: roles}
	if target.HasRole(rbac.RoleSuperAdmin) {
		return nil, ErrImpersonationNotAllowed
	}

	raw, err := s.issuer.IssueImpersonation(actor.SubjectID, subjectID, roles, s.impersonationTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue credential: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeImpersonationStarted,
		ActorID:   actor.SubjectID,
		SubjectID: subjectID,
		Metadata:  map[string]any{"roles": rbac.Strings(roles), "ttl_seconds": int(s.impersonationTTL.Seconds())},
	})
	return &Credential{Token: raw, Roles: roles, ExpiresIn: s.impersonationTTL}, nil
}

// StopImpersonation records the end of an impersonation. Credentials are
// stateless, so the caller must also discard the impersonation credential.
func (s *Service) StopImpersonation(ctx context.Context, id *Identity) error {
	if !id.Impersonating() {
		return ErrNotImpersonating
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeImpersonationStopped,
		ActorID:   id.ImpersonatorID,
		SubjectID: id.SubjectID,
	})
	return nil
}
