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
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hangar-aero/hangar/internal/authz"
	"github.com/hangar-aero/hangar/internal/rbac"
)

// AuthzRepository implements authz.AssignmentRepository and
// authz.CapabilityRepository over user_roles, roles, capabilities and
// role_capabilities.
type AuthzRepository struct {
	db *DB
}

// NewAuthzRepository creates a new authorization repository
func NewAuthzRepository(db *DB) *AuthzRepository {
	return &AuthzRepository{db: db}
}

// RolesForSubject returns the roles currently assigned to a subject.
func (r *AuthzRepository) RolesForSubject(ctx context.Context, subjectID string) ([]rbac.Role, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT ur.role
		FROM user_roles ur
		JOIN roles ro ON ro.name = ur.role
		WHERE ur.user_id = $1
		ORDER BY ro.rank
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan roles: %w", err)
	}

	roles := make([]rbac.Role, 0, len(names))
	for _, n := range names {
		// rows outside the closed set are ignored rather than trusted
		if role := rbac.Role(n); role.Valid() {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

// Grant assigns a role. Granting an already held role is a no-op.
func (r *AuthzRepository) Grant(ctx context.Context, a authz.Assignment) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role, granted_by, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role) DO NOTHING
	`, a.SubjectID, string(a.Role), a.GrantedBy, a.GrantedAt)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return authz.ErrSubjectNotFound
		}
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// Revoke removes a role. Revoking a role that is not held is a no-op.
func (r *AuthzRepository) Revoke(ctx context.Context, subjectID string, role rbac.Role) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM user_roles WHERE user_id = $1 AND role = $2
	`, subjectID, string(role))
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

// ListAssignments returns the assignments of a subject with grant metadata.
func (r *AuthzRepository) ListAssignments(ctx context.Context, subjectID string) ([]authz.Assignment, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT ur.user_id, ur.role, ur.granted_by, ur.granted_at
		FROM user_roles ur
		JOIN roles ro ON ro.name = ur.role
		WHERE ur.user_id = $1
		ORDER BY ro.rank
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (authz.Assignment, error) {
		var a authz.Assignment
		var role string
		err := row.Scan(&a.SubjectID, &role, &a.GrantedBy, &a.GrantedAt)
		a.Role = rbac.Role(role)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan assignments: %w", err)
	}
	return out, nil
}

// CapabilitiesForRole returns every row for a role, granted or denied.
func (r *AuthzRepository) CapabilitiesForRole(ctx context.Context, role rbac.Role) ([]authz.RoleCapability, error) {
	return r.CapabilitiesForRoles(ctx, []rbac.Role{role})
}

// CapabilitiesForRoles returns the rows of all given roles in one query.
func (r *AuthzRepository) CapabilitiesForRoles(ctx context.Context, roles []rbac.Role) ([]authz.RoleCapability, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT rc.role, rc.resource_type, rc.resource_name, rc.action, rc.is_granted
		FROM role_capabilities rc
		JOIN roles ro ON ro.name = rc.role
		WHERE rc.role = ANY($1)
		ORDER BY ro.rank, rc.resource_type, rc.resource_name, rc.action
	`, rbac.Strings(roles))
	if err != nil {
		return nil, fmt.Errorf("failed to query role capabilities: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (authz.RoleCapability, error) {
		var rc authz.RoleCapability
		var role string
		err := row.Scan(&role, &rc.Capability.ResourceType, &rc.Capability.ResourceName, &rc.Capability.Action, &rc.IsGranted)
		rc.Role = rbac.Role(role)
		return rc, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan role capabilities: %w", err)
	}
	return out, nil
}

// SetRoleCapability upserts a row. The capability must exist.
func (r *AuthzRepository) SetRoleCapability(ctx context.Context, rc authz.RoleCapability) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO role_capabilities (role, resource_type, resource_name, action, is_granted)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (role, resource_type, resource_name, action)
		DO UPDATE SET is_granted = EXCLUDED.is_granted
	`, string(rc.Role), rc.Capability.ResourceType, rc.Capability.ResourceName, rc.Capability.Action, rc.IsGranted)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return authz.ErrCapabilityNotFound
		}
		return fmt.Errorf("failed to set role capability: %w", err)
	}
	return nil
}

// ListRoles returns the role catalogue with descriptions.
func (r *AuthzRepository) ListRoles(ctx context.Context) ([]authz.RoleInfo, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT name, description FROM roles ORDER BY rank
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (authz.RoleInfo, error) {
		var info authz.RoleInfo
		var name string
		err := row.Scan(&name, &info.Description)
		info.Name = rbac.Role(name)
		return info, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan roles: %w", err)
	}
	return out, nil
}
