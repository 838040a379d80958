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
	"time"

	"github.com/hangar-aero/hangar/internal/rbac"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
	ErrAccountLocked      = errors.New("account is locked")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrSelfStatusChange   = errors.New("cannot change own status")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrResetUnavailable   = errors.New("password reset is not configured")
)

// Status is the lifecycle state of a subject. Subjects are never hard
// deleted; disabling is the soft removal.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusDisabled
}

// User represents a club member or staff account
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Profile             Profile    `json:"profile"`
	Status              Status     `json:"status"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Active reports whether the user may sign in.
func (u *User) Active() bool {
	return u.Status == StatusActive
}

// Profile represents user profile information
type Profile struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
	HomeBase string `json:"home_base,omitempty"`
}

// Credentials represents user authentication credentials
type Credentials struct {
	UserID       string
	PasswordHash string
	UpdatedAt    time.Time
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create stores a new user with its credentials and initial role in one
	// transaction, so no subject ever exists without a role.
	Create(ctx context.Context, user *User, credentials *Credentials, initialRole rbac.Role) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*User, error)

	// List returns users ordered by creation time.
	List(ctx context.Context, limit, offset int) ([]*User, error)

	// UpdateLockout updates user lockout status
	UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error

	// UpdateStatus enables or disables a user
	UpdateStatus(ctx context.Context, userID string, status Status) error

	// GetCredentials retrieves user credentials
	GetCredentials(ctx context.Context, userID string) (*Credentials, error)

	// UpdatePassword updates user password
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
}

// ResetTokenStore keeps single-use password reset tokens. Only token hashes
// are stored.
type ResetTokenStore interface {
	Save(ctx context.Context, tokenHash, userID string, ttl time.Duration) error
	// Consume returns the owner of tokenHash and deletes it atomically.
	Consume(ctx context.Context, tokenHash string) (string, error)
}

// ResetNotifier delivers reset tokens to the user, e.g. by email.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, user *User, token string) error
}
