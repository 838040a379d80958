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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hangar-aero/hangar/internal/identity"
	"github.com/hangar-aero/hangar/internal/rbac"
)

const userColumns = `id, email, full_name, phone, home_base, status,
	failed_login_attempts, locked_until, created_at, updated_at`

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user, its credentials and its initial role in one
// transaction.
func (r *UserRepository) Create(ctx context.Context, user *identity.User, credentials *identity.Credentials, initialRole rbac.Role) error {
	return pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (
				id, email, full_name, phone, home_base, status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			user.ID, user.Email, user.Profile.FullName, user.Profile.Phone, user.Profile.HomeBase,
			string(user.Status), user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			if pgCode(err) == codeUniqueViolation {
				return identity.ErrUserAlreadyExists
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO credentials (user_id, password_hash, updated_at)
			VALUES ($1, $2, $3)
		`, credentials.UserID, credentials.PasswordHash, credentials.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert credentials: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role, granted_by, granted_at)
			VALUES ($1, $2, '', $3)
		`, user.ID, string(initialRole), user.CreatedAt); err != nil {
			return fmt.Errorf("failed to assign initial role: %w", err)
		}
		return nil
	})
}

func scanUser(row pgx.Row) (*identity.User, error) {
	var user identity.User
	var status string
	err := row.Scan(
		&user.ID, &user.Email, &user.Profile.FullName, &user.Profile.Phone, &user.Profile.HomeBase,
		&status, &user.FailedLoginAttempts, &user.LockedUntil, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Status = identity.Status(status)
	return &user, nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*identity.User, error) {
	user, err := scanUser(r.db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	return r.getOne(ctx, `lower(email) = lower($1)`, email)
}

// List returns users ordered by creation time.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*identity.User, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*identity.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) execOne(ctx context.Context, sql string, args ...any) error {
	result, err := r.db.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// UpdateLockout updates user lockout status
func (r *UserRepository) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	err := r.execOne(ctx, `
		UPDATE users SET failed_login_attempts = $2, locked_until = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, failedAttempts, lockedUntil)
	if err != nil && !errors.Is(err, identity.ErrUserNotFound) {
		return fmt.Errorf("failed to update lockout: %w", err)
	}
	return err
}

// UpdateStatus enables or disables a user
func (r *UserRepository) UpdateStatus(ctx context.Context, userID string, status identity.Status) error {
	err := r.execOne(ctx, `
		UPDATE users SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, string(status))
	if err != nil && !errors.Is(err, identity.ErrUserNotFound) {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return err
}

// GetCredentials retrieves user credentials
func (r *UserRepository) GetCredentials(ctx context.Context, userID string) (*identity.Credentials, error) {
	var c identity.Credentials
	err := r.db.pool.QueryRow(ctx, `
		SELECT user_id, password_hash, updated_at
		FROM credentials
		WHERE user_id = $1
	`, userID).Scan(&c.UserID, &c.PasswordHash, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return &c, nil
}

// UpdatePassword updates user password
func (r *UserRepository) UpdatePassword(ctx context.Context, userID string, passwordHash string) error {
	err := r.execOne(ctx, `
		UPDATE credentials SET password_hash = $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, passwordHash)
	if err != nil && !errors.Is(err, identity.ErrUserNotFound) {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return err
}
