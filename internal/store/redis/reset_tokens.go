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

// Package redis keeps short-lived, single-use secrets in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hangar-aero/hangar/internal/identity"
)

const resetKeyPrefix = "hangar:reset:"

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// ResetTokenStore implements identity.ResetTokenStore. Keys are token
// hashes; the raw token never reaches Redis.
type ResetTokenStore struct {
	client goredis.UniversalClient
}

// NewResetTokenStore creates a store over client.
func NewResetTokenStore(client goredis.UniversalClient) *ResetTokenStore {
	return &ResetTokenStore{client: client}
}

// Save stores tokenHash for userID until ttl elapses. A colliding hash is
// rejected rather than overwritten.
func (s *ResetTokenStore) Save(ctx context.Context, tokenHash, userID string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, resetKeyPrefix+tokenHash, userID, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	if !ok {
		return errors.New("reset token already exists")
	}
	return nil
}

// Consume returns the owner of tokenHash and deletes it in one step, so a
// token can be redeemed at most once.
func (s *ResetTokenStore) Consume(ctx context.Context, tokenHash string) (string, error) {
	userID, err := s.client.GetDel(ctx, resetKeyPrefix+tokenHash).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", identity.ErrInvalidResetToken
		}
		return "", fmt.Errorf("failed to consume reset token: %w", err)
	}
	return userID, nil
}
