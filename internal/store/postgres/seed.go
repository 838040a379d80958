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
	"github.com/hangar-aero/hangar/internal/policy"
	"github.com/hangar-aero/hangar/internal/rbac"
)

// SeedPolicy writes the role descriptions, capability catalogue and role
// capability rows of pol. Existing rows are upserted; with replace set, rows
// not in pol are removed first so the store mirrors the document exactly.
func SeedPolicy(ctx context.Context, db *DB, pol *policy.Policy, replace bool) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if replace {
			if _, err := tx.Exec(ctx, `DELETE FROM role_capabilities`); err != nil {
				return fmt.Errorf("failed to clear role capabilities: %w", err)
			}
		}

		batch := &pgx.Batch{}
		for _, role := range rbac.All() {
			batch.Queue(`
				INSERT INTO roles (name, description, rank) VALUES ($1, $2, $3)
				ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, rank = EXCLUDED.rank
			`, string(role), pol.RoleDescription(role), role.Rank())
		}
		for _, def := range pol.Capabilities() {
			c := authz.MustCapability(def.Name)
			batch.Queue(`
				INSERT INTO capabilities (resource_type, resource_name, action, description)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (resource_type, resource_name, action) DO UPDATE SET description = EXCLUDED.description
			`, c.ResourceType, c.ResourceName, c.Action, def.Description)
		}
		for _, g := range pol.Grants() {
			batch.Queue(`
				INSERT INTO role_capabilities (role, resource_type, resource_name, action, is_granted)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (role, resource_type, resource_name, action) DO UPDATE SET is_granted = EXCLUDED.is_granted
			`, string(g.Role), g.Capability.ResourceType, g.Capability.ResourceName, g.Capability.Action, g.IsGranted)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to seed policy: %w", err)
		}
		return nil
	})
}
