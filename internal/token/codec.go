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

// Package token signs and verifies the bearer credentials carried by every
// authenticated request.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hangar-aero/hangar/internal/rbac"
)

// ErrInvalidCredential is returned by Verify for every rejected token.
// The underlying reason (signature, issuer, audience, expiry, claims) is
// intentionally not distinguishable by callers.
var ErrInvalidCredential = errors.New("invalid credential")

// MinSecretLength is the minimum HMAC key length accepted by NewCodec.
const MinSecretLength = 32

// Claims is the typed payload of a hangar bearer token.
type Claims struct {
	// Roles is the subject's role set at issuance.
	Roles []rbac.Role `json:"roles"`
	// Actor is set on impersonation tokens to the privileged subject acting
	// as Subject.
	Actor string `json:"act,omitempty"`
	jwt.RegisteredClaims
}

// Validate is called by the parser after the registered claims checks.
func (c *Claims) Validate() error {
	if c.Subject == "" {
		return errors.New("missing subject")
	}
	if len(c.Roles) == 0 {
		return errors.New("missing roles")
	}
	for _, r := range c.Roles {
		if !r.Valid() {
			return fmt.Errorf("unknown role %q", r)
		}
	}
	if c.Actor != "" && c.Actor == c.Subject {
		return errors.New("actor equals subject")
	}
	return nil
}

// Impersonating reports whether the token was issued for impersonation.
func (c *Claims) Impersonating() bool {
	return c.Actor != ""
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// Codec issues and verifies HS256 tokens. It is safe for concurrent use;
// nothing in it is mutated after construction.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
	parser   *jwt.Parser
}

// NewCodec creates a codec bound to a signing secret, issuer and audience.
func NewCodec(secret, issuer, audience string, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("token issuer and audience are required")
	}

	c := &Codec{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	// No leeway: a token is rejected from the instant it expires.
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// Issue signs a token for subjectID carrying roles, valid for ttl.
func (c *Codec) Issue(subjectID string, roles []rbac.Role, ttl time.Duration) (string, error) {
	return c.issue(subjectID, "", roles, ttl)
}

// IssueImpersonation signs a token that lets actorID act as subjectID.
func (c *Codec) IssueImpersonation(actorID, subjectID string, roles []rbac.Role, ttl time.Duration) (string, error) {
	if actorID == "" {
		return "", errors.New("impersonation requires an actor")
	}
	return c.issue(subjectID, actorID, roles, ttl)
}

// MinTTL is the shortest lifetime Issue accepts. The exp claim has
// whole-second resolution.
const MinTTL = time.Second

func (c *Codec) issue(subjectID, actorID string, roles []rbac.Role, ttl time.Duration) (string, error) {
	if ttl < MinTTL {
		return "", fmt.Errorf("token ttl must be at least %s", MinTTL)
	}
	for _, r := range roles {
		if !r.Valid() {
			return "", fmt.Errorf("refusing to issue token: unknown role %q", r)
		}
	}

	now := c.now()
	claims := &Claims{
		Roles: rbac.Normalize(roles),
		Actor: actorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subjectID,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry(now, ttl)),
			ID:        uuid.NewString(),
		},
	}
	if err := claims.Validate(); err != nil {
		return "", fmt.Errorf("refusing to issue token: %w", err)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// expiry rounds now+ttl up to a whole second, so the token never dies
// before ttl has elapsed.
func expiry(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if t := exp.Truncate(time.Second); t.Before(exp) {
		return t.Add(time.Second)
	}
	return exp
}

// Verify checks signature, issuer, audience, expiry and claim shape. Any
// failure yields ErrInvalidCredential.
func (c *Codec) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidCredential
	}

	claims := &Claims{}
	tok, err := c.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}
