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
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hangar-aero/hangar/internal/audit"
	"github.com/hangar-aero/hangar/internal/observability/logger"
	"github.com/hangar-aero/hangar/internal/rbac"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service provides identity-related business logic
type Service struct {
	repo               UserRepository
	hasher             *PasswordHasher
	auditLogger        audit.Logger
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
	now                func() time.Time

	resetTokens   ResetTokenStore
	resetNotifier ResetNotifier
	resetTTL      time.Duration
}

// NewService creates a new identity service
func NewService(
	repo UserRepository,
	hasher *PasswordHasher,
	auditLogger audit.Logger,
	lockoutMaxAttempts int,
	lockoutDuration time.Duration,
) *Service {
	return &Service{
		repo:               repo,
		hasher:             hasher,
		auditLogger:        auditLogger,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
		now:                time.Now,
	}
}

// EnablePasswordReset wires the reset token store and delivery channel.
func (s *Service) EnablePasswordReset(tokens ResetTokenStore, notifier ResetNotifier, ttl time.Duration) {
	s.resetTokens = tokens
	s.resetNotifier = notifier
	s.resetTTL = ttl
}

// SetClock overrides the time source; used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an active subject holding only the PROSPECT role.
func (s *Service) Register(ctx context.Context, email, password string, profile Profile) (*User, error) {
	email = NormalizeEmail(email)
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return nil, ErrInvalidEmail
	}
	if !isStrongPassword(password) {
		return nil, ErrWeakPassword
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &User{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Email:     email,
		Profile:   profile,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	creds := &Credentials{UserID: user.ID, PasswordHash: hash, UpdatedAt: now}

	if err := s.repo.Create(ctx, user, creds, rbac.RoleProspect); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeUserRegistered,
		ActorID:   user.ID,
		SubjectID: user.ID,
		Resource:  rbac.RoleProspect.String(),
	})
	return user, nil
}

// Authenticate authenticates a user with email and password
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Resource: "login",
			Metadata: map[string]any{"reason": "user_not_found", "email": email},
		})
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	now := s.now()
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:      audit.TypeLoginFailed,
			SubjectID: user.ID,
			Resource:  "login",
			Metadata:  map[string]any{"reason": "locked_out"},
		})
		return nil, ErrAccountLocked
	}

	credentials, err := s.repo.GetCredentials(ctx, user.ID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	valid, err := s.hasher.Verify(password, credentials.PasswordHash)
	if err != nil || !valid {
		attempts := user.FailedLoginAttempts + 1
		var lockedUntil *time.Time

		if attempts >= s.lockoutMaxAttempts {
			until := now.Add(s.lockoutDuration)
			lockedUntil = &until
			s.auditLogger.Log(ctx, audit.Event{
				Type:      audit.TypeUserLocked,
				SubjectID: user.ID,
				Resource:  "login",
				Metadata:  map[string]any{"attempts": attempts},
			})
		}

		if err := s.repo.UpdateLockout(ctx, user.ID, attempts, lockedUntil); err != nil {
			slog.WarnContext(ctx, "failed to record login failure", logger.SubjectID(user.ID), logger.Error(err))
		}

		s.auditLogger.Log(ctx, audit.Event{
			Type:      audit.TypeLoginFailed,
			SubjectID: user.ID,
			Resource:  "login",
			Metadata:  map[string]any{"reason": "invalid_password", "attempts": attempts},
		})
		return nil, ErrInvalidCredentials
	}

	if !user.Active() {
		s.auditLogger.Log(ctx, audit.Event{
			Type:      audit.TypeLoginFailed,
			SubjectID: user.ID,
			Resource:  "login",
			Metadata:  map[string]any{"reason": "disabled"},
		})
		return nil, ErrAccountDisabled
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		if err := s.repo.UpdateLockout(ctx, user.ID, 0, nil); err != nil {
			slog.WarnContext(ctx, "failed to reset lockout", logger.SubjectID(user.ID), logger.Error(err))
		}
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeLoginSuccess,
		ActorID:   user.ID,
		SubjectID: user.ID,
		Resource:  "login",
	})
	return user, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetActiveUser is GetUser that also rejects disabled accounts.
func (s *Service) GetActiveUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Active() {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

// ListUsers returns a page of users.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// SetStatus enables or disables a subject. Admins cannot change their own status.
func (s *Service) SetStatus(ctx context.Context, actorID, userID string, status Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	if actorID == userID {
		return ErrSelfStatusChange
	}
	if err := s.repo.UpdateStatus(ctx, userID, status); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to update status: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeUserStatusChanged,
		ActorID:   actorID,
		SubjectID: userID,
		Metadata:  map[string]any{"status": string(status)},
	})
	return nil
}

// RequestPasswordReset issues a reset token for email and hands it to the
// notifier. Unknown or disabled addresses succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s.resetTokens == nil || s.resetNotifier == nil {
		return ErrResetUnavailable
	}

	user, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.Active() {
		return nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	if err := s.resetTokens.Save(ctx, hashResetToken(token), user.ID, s.resetTTL); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	if err := s.resetNotifier.SendPasswordReset(ctx, user, token); err != nil {
		return fmt.Errorf("failed to send reset token: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypePasswordResetRequested,
		SubjectID: user.ID,
	})
	return nil
}

// ConfirmPasswordReset consumes a reset token and sets a new password. A
// successful reset also clears any lockout.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if s.resetTokens == nil {
		return ErrResetUnavailable
	}
	if !isStrongPassword(newPassword) {
		return ErrWeakPassword
	}

	userID, err := s.resetTokens.Consume(ctx, hashResetToken(token))
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.repo.UpdateLockout(ctx, userID, 0, nil); err != nil {
		slog.WarnContext(ctx, "failed to reset lockout", logger.SubjectID(userID), logger.Error(err))
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypePasswordResetCompleted,
		ActorID:   userID,
		SubjectID: userID,
	})
	return nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// LogNotifier writes reset links to the log. It stands in for an email
// sender in development.
type LogNotifier struct {
	BaseURL string
}

// SendPasswordReset implements ResetNotifier.
func (n LogNotifier) SendPasswordReset(ctx context.Context, user *User, token string) error {
	slog.InfoContext(ctx, "password reset link issued",
		logger.SubjectID(user.ID),
		logger.String("link", n.BaseURL+"/reset-password?token="+token),
	)
	return nil
}
