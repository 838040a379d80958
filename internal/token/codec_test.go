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

package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangar-aero/hangar/internal/rbac"
)

const testSecret = "test-secret-that-is-long-enough-32b"

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCodec(t *testing.T) (*Codec, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	c, err := NewCodec(testSecret, "hangar", "hangar-web", WithClock(clock.Now))
	require.NoError(t, err)
	return c, clock
}

// TestPurpose: Validates that a freshly issued token verifies and carries the subject and roles it was issued with.
// Scope: Unit Test
// Security: Credential integrity
// Expected: Verify returns the same subject id and role set.
// Test Case ID: TOK-01
func TestCodec_IssueVerifyRoundTrip(t *testing.T) {
	c, _ := newTestCodec(t)

	raw, err := c.Issue("user-1", []rbac.Role{rbac.RoleStudent, rbac.RolePilot}, 15*time.Minute)
	require.NoError(t, err)

	claims, err := c.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, []rbac.Role{rbac.RolePilot, rbac.RoleStudent}, claims.Roles)
	assert.Equal(t, "hangar", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"hangar-web"}, claims.Audience)
	assert.False(t, claims.Impersonating())
	assert.NotEmpty(t, claims.ID)
}

// TestPurpose: Validates that expiry is enforced without any grace window.
// Scope: Unit Test
// Security: Bounded credential lifetime
// Expected: Valid one second before ttl, rejected at and after ttl.
// Test Case ID: TOK-02
func TestCodec_Expiry(t *testing.T) {
	c, clock := newTestCodec(t)

	raw, err := c.Issue("user-1", []rbac.Role{rbac.RolePilot}, time.Minute)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, err = c.Verify(raw)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = c.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	clock.Advance(time.Millisecond)
	_, err = c.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

// TestPurpose: Validates that a token issued mid-second is valid for its whole ttl.
// Scope: Unit Test
// Security: Bounded credential lifetime
// Expected: Verifies immediately and just before ttl, rejected once the rounded expiry passes; ttl under one second is refused.
// Test Case ID: TOK-05
func TestCodec_SubSecondClock(t *testing.T) {
	c, clock := newTestCodec(t)
	clock.Advance(300 * time.Millisecond)

	_, err := c.Issue("user-1", []rbac.Role{rbac.RolePilot}, 500*time.Millisecond)
	assert.Error(t, err)

	short, err := c.Issue("user-1", []rbac.Role{rbac.RolePilot}, MinTTL)
	require.NoError(t, err)
	_, err = c.Verify(short)
	require.NoError(t, err)

	raw, err := c.Issue("user-1", []rbac.Role{rbac.RolePilot}, 1500*time.Millisecond)
	require.NoError(t, err)

	_, err = c.Verify(raw)
	require.NoError(t, err, "valid immediately after issuance")

	clock.Advance(1400 * time.Millisecond)
	_, err = c.Verify(raw)
	require.NoError(t, err, "valid until ttl has elapsed")

	clock.Advance(301 * time.Millisecond)
	_, err = c.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		now  time.Time
		ttl  time.Duration
		want time.Time
	}{
		{"whole second", base, time.Minute, base.Add(time.Minute)},
		{"rounds up", base.Add(300 * time.Millisecond), 1500 * time.Millisecond, base.Add(2 * time.Second)},
		{"lands on a second", base.Add(500 * time.Millisecond), 1500 * time.Millisecond, base.Add(2 * time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expiry(tt.now, tt.ttl)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.False(t, got.Before(tt.now.Add(tt.ttl)))
		})
	}
}

// TestPurpose: Validates that every verification failure collapses into one indistinguishable error.
// Scope: Unit Test
// Security: No failure-reason oracle
// Expected: Tampered, expired, wrong issuer, wrong audience and garbage tokens all return exactly ErrInvalidCredential.
// Test Case ID: TOK-03
func TestCodec_FailuresAreIndistinguishable(t *testing.T) {
	c, clock := newTestCodec(t)

	good, err := c.Issue("user-1", []rbac.Role{rbac.RolePilot}, time.Minute)
	require.NoError(t, err)

	otherIssuer, err := NewCodec(testSecret, "someone-else", "hangar-web", WithClock(clock.Now))
	require.NoError(t, err)
	wrongIss, err := otherIssuer.Issue("user-1", []rbac.Role{rbac.RolePilot}, time.Minute)
	require.NoError(t, err)

	otherAudience, err := NewCodec(testSecret, "hangar", "mobile", WithClock(clock.Now))
	require.NoError(t, err)
	wrongAud, err := otherAudience.Issue("user-1", []rbac.Role{rbac.RolePilot}, time.Minute)
	require.NoError(t, err)

	otherKey, err := NewCodec("another-secret-that-is-long-enough", "hangar", "hangar-web", WithClock(clock.Now))
	require.NoError(t, err)
	wrongKey, err := otherKey.Issue("user-1", []rbac.Role{rbac.RolePilot}, time.Minute)
	require.NoError(t, err)

	expiring, err := c.Issue("user-1", []rbac.Role{rbac.RolePilot}, time.Second)
	require.NoError(t, err)

	cases := map[string]string{
		"tampered signature": tamperSignature(t, good),
		"tampered payload":   tamperPayload(t, good),
		"wrong issuer":       wrongIss,
		"wrong audience":     wrongAud,
		"wrong key":          wrongKey,
		"garbage":            "not-a-token",
		"empty":              "",
	}

	var errs []error
	for name, raw := range cases {
		_, err := c.Verify(raw)
		assert.Equal(t, ErrInvalidCredential, err, name)
		errs = append(errs, err)
	}

	clock.Advance(2 * time.Second)
	_, err = c.Verify(expiring)
	assert.Equal(t, ErrInvalidCredential, err, "expired")

	for _, e := range errs {
		assert.Equal(t, err.Error(), e.Error())
	}
}

func TestCodec_RejectsOtherAlgorithms(t *testing.T) {
	c, clock := newTestCodec(t)

	claims := &Claims{
		Roles: []rbac.Role{rbac.RoleSuperAdmin},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "hangar",
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"hangar-web"},
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = c.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

// TestPurpose: Validates that malformed role claims are rejected at the codec boundary instead of propagating.
// Scope: Unit Test
// Security: Typed claims
// Expected: Tokens with unknown, empty or mistyped roles, or no subject, fail verification.
// Test Case ID: TOK-04
func TestCodec_RejectsMalformedClaims(t *testing.T) {
	c, clock := newTestCodec(t)

	sign := func(mc jwt.MapClaims) string {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return raw
	}
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":   "hangar",
			"aud":   "hangar-web",
			"sub":   "user-1",
			"iat":   clock.Now().Unix(),
			"exp":   clock.Now().Add(time.Hour).Unix(),
			"roles": []string{"PILOT"},
		}
	}

	ok := sign(base())
	_, err := c.Verify(ok)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{"unknown role", func(m jwt.MapClaims) { m["roles"] = []string{"CAPTAIN"} }},
		{"no roles", func(m jwt.MapClaims) { delete(m, "roles") }},
		{"empty roles", func(m jwt.MapClaims) { m["roles"] = []string{} }},
		{"roles not a list", func(m jwt.MapClaims) { m["roles"] = "PILOT" }},
		{"numeric role", func(m jwt.MapClaims) { m["roles"] = []int{1} }},
		{"no subject", func(m jwt.MapClaims) { delete(m, "sub") }},
		{"no expiry", func(m jwt.MapClaims) { delete(m, "exp") }},
		{"issued in the future", func(m jwt.MapClaims) { m["iat"] = clock.Now().Add(time.Minute).Unix() }},
		{"actor is subject", func(m jwt.MapClaims) { m["act"] = "user-1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := base()
			tt.mutate(mc)
			_, err := c.Verify(sign(mc))
			assert.ErrorIs(t, err, ErrInvalidCredential)
		})
	}
}

func TestCodec_Impersonation(t *testing.T) {
	c, _ := newTestCodec(t)

	raw, err := c.IssueImpersonation("admin-1", "user-2", []rbac.Role{rbac.RoleStudent}, 5*time.Minute)
	require.NoError(t, err)

	claims, err := c.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-2", claims.Subject)
	assert.Equal(t, "admin-1", claims.Actor)
	assert.True(t, claims.Impersonating())

	_, err = c.IssueImpersonation("", "user-2", []rbac.Role{rbac.RoleStudent}, time.Minute)
	assert.Error(t, err)
}

func TestCodec_IssueValidation(t *testing.T) {
	c, _ := newTestCodec(t)

	_, err := c.Issue("user-1", []rbac.Role{rbac.RolePilot}, 0)
	assert.Error(t, err)

	_, err = c.Issue("", []rbac.Role{rbac.RolePilot}, time.Minute)
	assert.Error(t, err)

	_, err = c.Issue("user-1", nil, time.Minute)
	assert.Error(t, err)

	_, err = c.Issue("user-1", []rbac.Role{"CAPTAIN", rbac.RolePilot}, time.Minute)
	assert.Error(t, err)

	_, err = NewCodec("short", "hangar", "hangar-web")
	assert.Error(t, err)
}

func tamperSignature(t *testing.T, raw string) string {
	t.Helper()
	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	sig[len(sig)/2] ^= 0x01
	parts[2] = base64.RawURLEncoding.EncodeToString(sig)
	return strings.Join(parts, ".")
}

func tamperPayload(t *testing.T, raw string) string {
	t.Helper()
	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	forged := strings.Replace(string(payload), `"PILOT"`, `"ADMIN"`, 1)
	require.NotEqual(t, string(payload), forged)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))
	return strings.Join(parts, ".")
}
