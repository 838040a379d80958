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

// Package memory is an in-process store implementing the identity and authz
// repositories. It backs handler and end-to-end tests and local runs without
// PostgreSQL.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hangar-aero/hangar/internal/authz"
	"github.com/hangar-aero/hangar/internal/identity"
	"github.com/hangar-aero/hangar/internal/policy"
	"github.com/hangar-aero/hangar/internal/rbac"
)

type resetEntry struct {
	userID    string
	expiresAt time.Time
}

// Store holds all state behind one mutex.
type Store struct {
	mu          sync.RWMutex
	users       map[string]*identity.User
	byEmail     map[string]string
	credentials map[string]*identity.Credentials
	assignments map[string]map[rbac.Role]authz.Assignment
	catalogue   map[authz.Capability]bool
	roleDesc    map[rbac.Role]string
	rows        map[rbac.Role]map[authz.Capability]bool
	resets      map[string]resetEntry
	fail        error
	now         func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]*identity.User),
		byEmail:     make(map[string]string),
		credentials: make(map[string]*identity.Credentials),
		assignments: make(map[string]map[rbac.Role]authz.Assignment),
		catalogue:   make(map[authz.Capability]bool),
		roleDesc:    make(map[rbac.Role]string),
		rows:        make(map[rbac.Role]map[authz.Capability]bool),
		resets:      make(map[string]resetEntry),
		now:         time.Now,
	}
}

// NewSeeded returns a store loaded with the capability catalogue and grants
// of pol.
func NewSeeded(pol *policy.Policy) *Store {
	s := New()
	s.SeedPolicy(pol)
	return s
}

// SeedPolicy replaces the capability catalogue and role rows with pol.
func (s *Store) SeedPolicy(pol *policy.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.catalogue = make(map[authz.Capability]bool)
	for _, c := range pol.Capabilities() {
		s.catalogue[authz.MustCapability(c.Name)] = true
	}
	s.rows = make(map[rbac.Role]map[authz.Capability]bool)
	for _, g := range pol.Grants() {
		s.setRow(g)
	}
	for _, r := range rbac.All() {
		s.roleDesc[r] = pol.RoleDescription(r)
	}
}

// SetFailure makes every subsequent call return err, simulating an
// unreachable database. Pass nil to recover.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// SetClock overrides the time source used for reset token expiry.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) setRow(rc authz.RoleCapability) {
	m, ok := s.rows[rc.Role]
	if !ok {
		m = make(map[authz.Capability]bool)
		s.rows[rc.Role] = m
	}
	m[rc.Capability] = rc.IsGranted
}

func copyUser(u *identity.User) *identity.User {
	c := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

// Create implements identity.UserRepository.
func (s *Store) Create(_ context.Context, user *identity.User, credentials *identity.Credentials, initialRole rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	if _, ok := s.byEmail[user.Email]; ok {
		return identity.ErrUserAlreadyExists
	}

	s.users[user.ID] = copyUser(user)
	s.byEmail[user.Email] = user.ID
	c := *credentials
	s.credentials[user.ID] = &c
	s.assignments[user.ID] = map[rbac.Role]authz.Assignment{
		initialRole: {SubjectID: user.ID, Role: initialRole, GrantedAt: user.CreatedAt},
	}
	return nil
}

// GetByID implements identity.UserRepository.
func (s *Store) GetByID(_ context.Context, id string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	u, ok := s.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return copyUser(u), nil
}

// GetByEmail implements identity.UserRepository.
func (s *Store) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	id, ok := s.byEmail[email]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return copyUser(s.users[id]), nil
}

// List implements identity.UserRepository.
func (s *Store) List(_ context.Context, limit, offset int) ([]*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	out := make([]*identity.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if offset >= len(out) {
		return []*identity.User{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) mutateUser(userID string, fn func(u *identity.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	u, ok := s.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = s.now().UTC()
	return nil
}

// UpdateLockout implements identity.UserRepository.
func (s *Store) UpdateLockout(_ context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	return s.mutateUser(userID, func(u *identity.User) {
		u.FailedLoginAttempts = failedAttempts
		u.LockedUntil = lockedUntil
	})
}

// UpdateStatus implements identity.UserRepository.
func (s *Store) UpdateStatus(_ context.Context, userID string, status identity.Status) error {
	return s.mutateUser(userID, func(u *identity.User) {
		u.Status = status
	})
}

// GetCredentials implements identity.UserRepository.
func (s *Store) GetCredentials(_ context.Context, userID string) (*identity.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	c, ok := s.credentials[userID]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *c
	return &cp, nil
}

// UpdatePassword implements identity.UserRepository.
func (s *Store) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	c, ok := s.credentials[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	c.PasswordHash = passwordHash
	c.UpdatedAt = s.now().UTC()
	return nil
}

// RolesForSubject implements authz.AssignmentRepository.
func (s *Store) RolesForSubject(_ context.Context, subjectID string) ([]rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	var roles []rbac.Role
	for r := range s.assignments[subjectID] {
		roles = append(roles, r)
	}
	return rbac.Normalize(roles), nil
}

// Grant implements authz.AssignmentRepository.
func (s *Store) Grant(_ context.Context, a authz.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	if _, ok := s.users[a.SubjectID]; !ok {
		return authz.ErrSubjectNotFound
	}
	held, ok := s.assignments[a.SubjectID]
	if !ok {
		held = make(map[rbac.Role]authz.Assignment)
		s.assignments[a.SubjectID] = held
	}
	if _, ok := held[a.Role]; !ok {
		held[a.Role] = a
	}
	return nil
}

// Revoke implements authz.AssignmentRepository.
func (s *Store) Revoke(_ context.Context, subjectID string, role rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	delete(s.assignments[subjectID], role)
	return nil
}

// ListAssignments implements authz.AssignmentRepository.
func (s *Store) ListAssignments(_ context.Context, subjectID string) ([]authz.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	out := make([]authz.Assignment, 0, len(s.assignments[subjectID]))
	for _, a := range s.assignments[subjectID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role.Rank() < out[j].Role.Rank() })
	return out, nil
}

// CapabilitiesForRole implements authz.CapabilityRepository.
func (s *Store) CapabilitiesForRole(ctx context.Context, role rbac.Role) ([]authz.RoleCapability, error) {
	return s.CapabilitiesForRoles(ctx, []rbac.Role{role})
}

// CapabilitiesForRoles implements authz.CapabilityRepository.
func (s *Store) CapabilitiesForRoles(_ context.Context, roles []rbac.Role) ([]authz.RoleCapability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	var out []authz.RoleCapability
	for _, r := range rbac.Normalize(roles) {
		for c, granted := range s.rows[r] {
			out = append(out, authz.RoleCapability{Role: r, Capability: c, IsGranted: granted})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role.Rank() < out[j].Role.Rank()
		}
		return out[i].Capability.String() < out[j].Capability.String()
	})
	return out, nil
}

// SetRoleCapability implements authz.CapabilityRepository.
func (s *Store) SetRoleCapability(_ context.Context, rc authz.RoleCapability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	if !s.catalogue[rc.Capability] {
		return authz.ErrCapabilityNotFound
	}
	s.setRow(rc)
	return nil
}

// ListRoles implements authz.CapabilityRepository.
func (s *Store) ListRoles(_ context.Context) ([]authz.RoleInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	out := make([]authz.RoleInfo, 0, len(rbac.All()))
	for _, r := range rbac.All() {
		out = append(out, authz.RoleInfo{Name: r, Description: s.roleDesc[r]})
	}
	return out, nil
}

// Save implements identity.ResetTokenStore.
func (s *Store) Save(_ context.Context, tokenHash, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.resets[tokenHash] = resetEntry{userID: userID, expiresAt: s.now().Add(ttl)}
	return nil
}

// Consume implements identity.ResetTokenStore.
func (s *Store) Consume(_ context.Context, tokenHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	e, ok := s.resets[tokenHash]
	delete(s.resets, tokenHash)
	if !ok || !s.now().Before(e.expiresAt) {
		return "", identity.ErrInvalidResetToken
	}
	return e.userID, nil
}

// Capabilities returns the seeded catalogue in sorted order.
func (s *Store) Capabilities() []authz.Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]authz.Capability, 0, len(s.catalogue))
	for c := range s.catalogue {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b authz.Capability) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})
	return out
}
