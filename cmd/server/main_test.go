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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hangar-aero/hangar/internal/config"
	"github.com/hangar-aero/hangar/internal/identity"
)

// TestPurpose: Validates that reset links reach the log only when explicitly enabled.
// Scope: Unit Test
// Security: Live reset tokens stay out of production logs
// Expected: No notifier by default, the log notifier only with LogResetLinks.
// Test Case ID: SRV-01
func TestResetNotifier(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: "8080"}}
	assert.Nil(t, resetNotifier(cfg))

	cfg.Security.LogResetLinks = true
	assert.Equal(t, identity.LogNotifier{BaseURL: "http://127.0.0.1:8080"}, resetNotifier(cfg))
}

func TestStaticFS(t *testing.T) {
	assert.Nil(t, staticFS(""))
	assert.Nil(t, staticFS(t.TempDir()+"/missing"))
	assert.NotNil(t, staticFS(t.TempDir()))
}
