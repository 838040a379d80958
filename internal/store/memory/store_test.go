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

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangar-aero/hangar/internal/authz"
	"github.com/hangar-aero/hangar/internal/identity"
	"github.com/hangar-aero/hangar/internal/policy"
	"github.com/hangar-aero/hangar/internal/rbac"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	pol, err := policy.Default()
	require.NoError(t, err)
	return NewSeeded(pol)
}

func createUser(t *testing.T, s *Store, id, email string) {
	t.Helper()
	now := time.Now().UTC()
	err := s.Create(context.Background(),
		&identity.User{ID: id, Email: email, Status: identity.StatusActive, CreatedAt: now},
		&identity.Credentials{UserID: id, PasswordHash: "x"},
		rbac.RoleProspect,
	)
	require.NoError(t, err)
}

func TestStore_UserLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	createUser(t, s, "u1", "a@example.com")

	err := s.Create(ctx, &identity.User{ID: "u2", Email: "a@example.com"}, &identity.Credentials{UserID: "u2"}, rbac.RoleProspect)
	assert.ErrorIs(t, err, identity.ErrUserAlreadyExists)

	u, err := s.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	u.Email = "mutated@example.com"

	again, err := s.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", again.Email)

	require.NoError(t, s.UpdateStatus(ctx, "u1", identity.StatusDisabled))
	assert.ErrorIs(t, s.UpdateStatus(ctx, "nope", identity.StatusDisabled), identity.ErrUserNotFound)

	roles, err := s.RolesForSubject(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []rbac.Role{rbac.RoleProspect}, roles)
}

func TestStore_Assignments(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	createUser(t, s, "u1", "a@example.com")

	require.NoError(t, s.Grant(ctx, authz.Assignment{SubjectID: "u1", Role: rbac.RolePilot, GrantedBy: "admin"}))
	require.NoError(t, s.Grant(ctx, authz.Assignment{SubjectID: "u1", Role: rbac.RolePilot, GrantedBy: "other"}))
	assert.ErrorIs(t, s.Grant(ctx, authz.Assignment{SubjectID: "ghost", Role: rbac.RolePilot}), authz.ErrSubjectNotFound)

	list, err := s.ListAssignments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, rbac.RolePilot, list[0].Role)
	assert.Equal(t, "admin", list[0].GrantedBy)

	require.NoError(t, s.Revoke(ctx, "u1", rbac.RoleProspect))
	require.NoError(t, s.Revoke(ctx, "u1", rbac.RoleProspect))
	roles, err := s.RolesForSubject(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []rbac.Role{rbac.RolePilot}, roles)
}

func TestStore_Capabilities(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	rows, err := s.CapabilitiesForRole(ctx, rbac.RolePilot)
	require.NoError(t, err)
	assert.True(t, authz.Decide(rows, authz.MustCapability("flight_logs.entry.create")))

	err = s.SetRoleCapability(ctx, authz.RoleCapability{Role: rbac.RolePilot, Capability: authz.MustCapability("flight_logs.entry.create"), IsGranted: false})
	require.NoError(t, err)
	rows, err = s.CapabilitiesForRole(ctx, rbac.RolePilot)
	require.NoError(t, err)
	assert.False(t, authz.Decide(rows, authz.MustCapability("flight_logs.entry.create")))

	err = s.SetRoleCapability(ctx, authz.RoleCapability{Role: rbac.RolePilot, Capability: authz.MustCapability("fleet.rocket.launch"), IsGranted: true})
	assert.ErrorIs(t, err, authz.ErrCapabilityNotFound)

	roles, err := s.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, len(rbac.All()))
	assert.NotEmpty(t, s.Capabilities())
}

func TestStore_ResetTokens(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.Save(ctx, "h1", "u1", time.Minute))
	id, err := s.Consume(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	_, err = s.Consume(ctx, "h1")
	assert.ErrorIs(t, err, identity.ErrInvalidResetToken)

	require.NoError(t, s.Save(ctx, "h2", "u1", time.Minute))
	now = now.Add(time.Minute)
	_, err = s.Consume(ctx, "h2")
	assert.ErrorIs(t, err, identity.ErrInvalidResetToken)
}

func TestStore_Failure(t *testing.T) {
	s := seeded(t)
	boom := errors.New("connection reset")
	s.SetFailure(boom)

	_, err := s.RolesForSubject(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
	_, err = s.CapabilitiesForRoles(context.Background(), []rbac.Role{rbac.RolePilot})
	assert.ErrorIs(t, err, boom)

	s.SetFailure(nil)
	_, err = s.RolesForSubject(context.Background(), "u1")
	assert.NoError(t, err)
}
