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

package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	r, err := Parse(" pilot ")
	require.NoError(t, err)
	assert.Equal(t, RolePilot, r)

	_, err = Parse("CAPTAIN")
	assert.Error(t, err)

	_, err = Parse("")
	assert.Error(t, err)
}

func TestParseAll_RejectsUnknown(t *testing.T) {
	roles, err := ParseAll([]string{"ADMIN", "STUDENT"})
	require.NoError(t, err)
	assert.Equal(t, []Role{RoleAdmin, RoleStudent}, roles)

	_, err = ParseAll([]string{"ADMIN", "root"})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	got := Normalize([]Role{RoleProspect, RoleAdmin, RoleProspect, Role("BOGUS")})
	assert.Equal(t, []Role{RoleAdmin, RoleProspect}, got)
}

func TestIntersects(t *testing.T) {
	assert.True(t, Intersects([]Role{RoleStudent}, []Role{RolePilot, RoleStudent}))
	assert.False(t, Intersects([]Role{RoleProspect}, []Role{RolePilot, RoleStudent}))
	assert.False(t, Intersects(nil, []Role{RolePilot}))
}

func TestAll_ReturnsCopy(t *testing.T) {
	roles := All()
	roles[0] = RoleProspect
	assert.Equal(t, RoleSuperAdmin, All()[0])
}

func TestRank(t *testing.T) {
	assert.Equal(t, 0, RoleSuperAdmin.Rank())
	assert.Less(t, RolePilot.Rank(), RoleStudent.Rank())
	assert.Equal(t, len(All()), Role("BOGUS").Rank())
}

func TestCanAssign(t *testing.T) {
	tests := []struct {
		actor  []Role
		target Role
		want   bool
	}{
		{[]Role{RoleSuperAdmin}, RoleSuperAdmin, true},
		{[]Role{RoleAdmin}, RoleAdmin, true},
		{[]Role{RoleAdmin}, RoleSuperAdmin, false},
		{[]Role{RolePilot, RoleAdmin}, RoleBaseManager, true},
		{[]Role{RoleBaseManager}, RoleAdmin, false},
		{nil, RoleProspect, false},
		{[]Role{RoleSuperAdmin}, Role("CAPTAIN"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanAssign(tt.actor, tt.target), "%v -> %s", tt.actor, tt.target)
	}
}
