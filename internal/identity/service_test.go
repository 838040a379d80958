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

package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangar-aero/hangar/internal/audit"
	"github.com/hangar-aero/hangar/internal/rbac"
)

// MockUserRepository is a simple in-memory implementation of UserRepository
type MockUserRepository struct {
	mu          sync.Mutex
	users       map[string]*User
	credentials map[string]*Credentials
	roles       map[string]rbac.Role
	fail        error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:       make(map[string]*User),
		credentials: make(map[string]*Credentials),
		roles:       make(map[string]rbac.Role),
	}
}

func (m *MockUserRepository) Create(_ context.Context, user *User, creds *Credentials, role rbac.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return ErrUserAlreadyExists
		}
	}
	m.users[user.ID] = user
	m.credentials[user.ID] = creds
	m.roles[user.ID] = role
	return nil
}

func (m *MockUserRepository) GetByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *MockUserRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserRepository) List(_ context.Context, limit, offset int) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.users {
		out = append(out, u)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockUserRepository) UpdateLockout(_ context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockedUntil = lockedUntil
	return nil
}

func (m *MockUserRepository) UpdateStatus(_ context.Context, userID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Status = status
	return nil
}

func (m *MockUserRepository) GetCredentials(_ context.Context, userID string) (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return c, nil
}

func (m *MockUserRepository) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[userID]
	if !ok {
		return ErrUserNotFound
	}
	c.PasswordHash = passwordHash
	return nil
}

type mockResetStore struct {
	tokens map[string]string
}

func (m *mockResetStore) Save(_ context.Context, hash, userID string, _ time.Duration) error {
	m.tokens[hash] = userID
	return nil
}

func (m *mockResetStore) Consume(_ context.Context, hash string) (string, error) {
	id, ok := m.tokens[hash]
	if !ok {
		return "", ErrInvalidResetToken
	}
	delete(m.tokens, hash)
	return id, nil
}

type captureNotifier struct {
	token string
	calls int
}

func (c *captureNotifier) SendPasswordReset(_ context.Context, _ *User, token string) error {
	c.token = token
	c.calls++
	return nil
}

func testHasher() *PasswordHasher {
	return NewPasswordHasher(1024, 1, 1, 16, 32)
}

func newTestService(t *testing.T) (*Service, *MockUserRepository, *audit.Recorder) {
	t.Helper()
	repo := NewMockUserRepository()
	rec := &audit.Recorder{}
	return NewService(repo, testHasher(), rec, 3, 5*time.Minute), repo, rec
}

// TestPurpose: Validates that self-registration creates an active subject holding only PROSPECT.
// Scope: Unit Test
// Security: Default role assignment on registration
// Expected: Normalized email, PROSPECT as the only role, audited.
// Test Case ID: IDN-01
func TestIdentity_Service_Register(t *testing.T) {
	s, repo, rec := newTestService(t)
	ctx := context.Background()

	user, err := s.Register(ctx, "  New.Pilot@Example.com ", "SkyHawk172N", Profile{FullName: "New Pilot"})
	require.NoError(t, err)

	assert.Equal(t, "new.pilot@example.com", user.Email)
	assert.Equal(t, StatusActive, user.Status)
	assert.Equal(t, rbac.RoleProspect, repo.roles[user.ID])
	assert.NotEqual(t, "SkyHawk172N", repo.credentials[user.ID].PasswordHash)
	assert.Equal(t, []string{audit.TypeUserRegistered}, rec.Types())

	_, err = s.Register(ctx, "new.pilot@example.com", "SkyHawk172N", Profile{})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestIdentity_Service_Register_Validation(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"missing email", "", "SkyHawk172N", ErrInvalidEmail},
		{"malformed email", "not-an-address", "SkyHawk172N", ErrInvalidEmail},
		{"short password", "a@example.com", "abc123", ErrWeakPassword},
		{"letters only", "a@example.com", "abcdefghijkl", ErrWeakPassword},
		{"digits only", "a@example.com", "123456789012", ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(ctx, tt.email, tt.password, Profile{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// TestPurpose: Validates the user authentication flow, including success, failure, and account lockout after multiple failed attempts.
// Scope: Unit Test
// Security: Authentication mechanisms and Brute-force protection (lockout)
// Expected: Successful login for correct credentials, error for wrong credentials, and account lockout after the threshold.
// Test Case ID: IDN-02
func TestIdentity_Service_Authenticate(t *testing.T) {
	s, _, rec := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	user, err := s.Register(ctx, "test@example.com", "SecurePassword123", Profile{FullName: "Test User"})
	require.NoError(t, err)

	authed, err := s.Authenticate(ctx, "TEST@example.com", "SecurePassword123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	_, err = s.Authenticate(ctx, "test@example.com", "WrongPassword1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "test@example.com", "WrongPassword1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "test@example.com", "WrongPassword1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, rec.Types(), audit.TypeUserLocked)

	// locked even with the right password
	_, err = s.Authenticate(ctx, "test@example.com", "SecurePassword123")
	assert.ErrorIs(t, err, ErrAccountLocked)

	now = now.Add(6 * time.Minute)
	authed, err = s.Authenticate(ctx, "test@example.com", "SecurePassword123")
	require.NoError(t, err)
	assert.Zero(t, authed.FailedLoginAttempts)
	assert.Nil(t, authed.LockedUntil)
}

func TestIdentity_Service_Authenticate_UnknownAndDisabled(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.Authenticate(ctx, "nobody@example.com", "whatever123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	user, err := s.Register(ctx, "grounded@example.com", "SecurePassword123", Profile{})
	require.NoError(t, err)
	require.NoError(t, s.SetStatus(ctx, "admin-1", user.ID, StatusDisabled))

	_, err = s.Authenticate(ctx, "grounded@example.com", "SecurePassword123")
	assert.ErrorIs(t, err, ErrAccountDisabled)

	_, err = s.GetActiveUser(ctx, user.ID)
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestIdentity_Service_Authenticate_StoreError(t *testing.T) {
	s, repo, _ := newTestService(t)
	repo.fail = errors.New("connection refused")

	_, err := s.Authenticate(context.Background(), "a@example.com", "whatever123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestIdentity_Service_SetStatus(t *testing.T) {
	s, _, rec := newTestService(t)
	ctx := context.Background()

	user, err := s.Register(ctx, "member@example.com", "SecurePassword123", Profile{})
	require.NoError(t, err)

	assert.ErrorIs(t, s.SetStatus(ctx, user.ID, user.ID, StatusDisabled), ErrSelfStatusChange)
	assert.ErrorIs(t, s.SetStatus(ctx, "admin-1", user.ID, Status("deleted")), ErrInvalidStatus)
	assert.ErrorIs(t, s.SetStatus(ctx, "admin-1", "missing", StatusDisabled), ErrUserNotFound)

	require.NoError(t, s.SetStatus(ctx, "admin-1", user.ID, StatusDisabled))
	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, got.Status)

	events := rec.Events()
	last := events[len(events)-1]
	assert.Equal(t, audit.TypeUserStatusChanged, last.Type)
	assert.Equal(t, "admin-1", last.ActorID)
}

// TestPurpose: Validates the password reset flow end to end.
// Scope: Unit Test
// Security: Single-use reset tokens, no account enumeration
// Expected: Unknown emails succeed silently; a token works exactly once and clears lockout.
// Test Case ID: IDN-03
func TestIdentity_Service_PasswordReset(t *testing.T) {
	s, repo, rec := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.RequestPasswordReset(ctx, "x@example.com"), ErrResetUnavailable)

	store := &mockResetStore{tokens: make(map[string]string)}
	notifier := &captureNotifier{}
	s.EnablePasswordReset(store, notifier, 30*time.Minute)

	require.NoError(t, s.RequestPasswordReset(ctx, "nobody@example.com"))
	assert.Zero(t, notifier.calls)

	user, err := s.Register(ctx, "forgetful@example.com", "SecurePassword123", Profile{})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateLockout(ctx, user.ID, 3, nil))

	require.NoError(t, s.RequestPasswordReset(ctx, "Forgetful@example.com"))
	require.Equal(t, 1, notifier.calls)
	require.NotEmpty(t, notifier.token)
	for hash := range store.tokens {
		assert.NotEqual(t, notifier.token, hash)
	}

	assert.ErrorIs(t, s.ConfirmPasswordReset(ctx, notifier.token, "short"), ErrWeakPassword)
	require.NoError(t, s.ConfirmPasswordReset(ctx, notifier.token, "BrandNewPassword9"))
	assert.ErrorIs(t, s.ConfirmPasswordReset(ctx, notifier.token, "BrandNewPassword9"), ErrInvalidResetToken)

	_, err = s.Authenticate(ctx, "forgetful@example.com", "BrandNewPassword9")
	require.NoError(t, err)
	assert.Contains(t, rec.Types(), audit.TypePasswordResetCompleted)
}

func TestPasswordHasher(t *testing.T) {
	h := testHasher()
	hash, err := h.Hash("correct-horse-battery-staple")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := h.Verify("correct-horse-battery-staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("x", "$bcrypt$nope")
	assert.Error(t, err)
}

func TestListUsers_ClampsPaging(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	for _, e := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := s.Register(ctx, e, "SecurePassword123", Profile{})
		require.NoError(t, err)
	}

	users, err := s.ListUsers(ctx, 0, -5)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	users, err = s.ListUsers(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
