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

package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccess_Disabled(t *testing.T) {
	ctx := context.Background()
	m, err := New(ctx, Config{Enabled: false}, "hangar")
	require.NoError(t, err)

	a, err := NewAccess(m)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		a.Decision(ctx, "deny", "api", "no_role")
		a.Verification(ctx, false)
		a.StoreQuery(ctx, "roles_for_subject", time.Now(), errors.New("down"))
	})
}

func TestAccess_NilSafe(t *testing.T) {
	var a *Access
	assert.NotPanics(t, func() {
		a.Decision(context.Background(), "allow", "ui", "")
		a.Verification(context.Background(), true)
		a.StoreQuery(context.Background(), "x", time.Now(), nil)
	})
	assert.NotNil(t, NoopAccess())
}
