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

// Package rbac defines the closed set of roles a subject can hold.
package rbac

import (
	"fmt"
	"slices"
	"strings"
)

// Role is a named policy bucket assigned to subjects.
type Role string

// System roles. These names are stored in the roles table and embedded in
// bearer credentials; they must remain stable.
const (
	// RoleSuperAdmin can do everything, including impersonation.
	RoleSuperAdmin Role = "SUPER_ADMIN"

	// RoleAdmin administers users, roles and club data.
	RoleAdmin Role = "ADMIN"

	// RoleBaseManager runs a single base: fleet, bookings, invoices.
	RoleBaseManager Role = "BASE_MANAGER"

	// RoleInstructor supervises students and signs off flights.
	RoleInstructor Role = "INSTRUCTOR"

	// RolePilot is a licensed club member.
	RolePilot Role = "PILOT"

	// RoleStudent is a member in training.
	RoleStudent Role = "STUDENT"

	// RoleProspect is assigned at registration until the subject is verified.
	RoleProspect Role = "PROSPECT"
)

// all is ordered from most to least privileged.
var all = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleBaseManager,
	RoleInstructor,
	RolePilot,
	RoleStudent,
	RoleProspect,
}

// All returns every known role, most privileged first.
func All() []Role {
	return slices.Clone(all)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return slices.Contains(all, r)
}

// Rank is the position of r in the privilege order, 0 being the most
// privileged. Unknown roles rank last.
func (r Role) Rank() int {
	if i := slices.Index(all, r); i >= 0 {
		return i
	}
	return len(all)
}

// CanAssign reports whether a holder of actor may grant or revoke target:
// nobody hands out a role more privileged than their own best role.
func CanAssign(actor []Role, target Role) bool {
	if !target.Valid() {
		return false
	}
	best := len(all)
	for _, r := range actor {
		best = min(best, r.Rank())
	}
	return best <= target.Rank()
}

func (r Role) String() string {
	return string(r)
}

// Parse converts a role name into a Role. Matching is case-insensitive.
func Parse(name string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(name)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", name)
	}
	return r, nil
}

// ParseAll parses every name, failing on the first unknown one.
func ParseAll(names []string) ([]Role, error) {
	roles := make([]Role, 0, len(names))
	for _, n := range names {
		r, err := Parse(n)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// Normalize returns the distinct roles of in, ordered most privileged first.
func Normalize(in []Role) []Role {
	out := make([]Role, 0, len(in))
	for _, r := range all {
		if slices.Contains(in, r) {
			out = append(out, r)
		}
	}
	return out
}

// Intersects reports whether any role in have is also in allowed.
func Intersects(have, allowed []Role) bool {
	for _, r := range have {
		if slices.Contains(allowed, r) {
			return true
		}
	}
	return false
}

// Strings converts roles to their names.
func Strings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
