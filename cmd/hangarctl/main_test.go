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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPolicyValidate_BuiltIn(t *testing.T) {
	out, err := execute(t, "policy", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "built-in policy is valid")
}

func TestPolicyValidate_File(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
version: 1
namespaces:
  - name: fleet
    prefixes: [{path: /fleet, wildcard: true}]
    roles: [CAPTAIN]
    exception: none
`), 0o600))

	_, err := execute(t, "policy", "validate", "--file", bad)
	assert.Error(t, err)

	_, err = execute(t, "policy", "validate", "--file", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestPolicyShow(t *testing.T) {
	out, err := execute(t, "policy", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "PREFIX")
	assert.Contains(t, out, "/api/admin/impersonation")
	assert.Contains(t, out, "(public)")
}

func TestRolesGrant_RejectsUnknownRole(t *testing.T) {
	_, err := execute(t, "roles", "grant", "user-1", "CAPTAIN")
	assert.ErrorContains(t, err, "unknown role")
}

func TestRolesGrant_NeedsArguments(t *testing.T) {
	_, err := execute(t, "roles", "grant", "user-1")
	assert.Error(t, err)
}
