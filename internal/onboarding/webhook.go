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

// Package onboarding promotes prospects once the external identity
// verification provider reports a decision. Decisions arrive as signed
// webhooks and only ever change role assignments in the store.
package onboarding

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hangar-aero/hangar/internal/audit"
	"github.com/hangar-aero/hangar/internal/observability/logger"
	"github.com/hangar-aero/hangar/internal/rbac"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Hmac-Signature"

// ActorID is recorded as the granter of roles assigned by the webhook.
const ActorID = "verification-webhook"

// Domain errors
var (
	ErrNotConfigured    = errors.New("verification webhook not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidEvent     = errors.New("invalid verification event")
)

// Decision statuses reported by the provider.
const (
	StatusApproved  = "approved"
	StatusDeclined  = "declined"
	StatusInReview  = "in_review"
	StatusAbandoned = "abandoned"
	StatusExpired   = "expired"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Event is a verification decision. VendorData is the subject id that was
// handed to the provider when the verification session was created.
type Event struct {
	ID         string `json:"id" validate:"required,max=128"`
	Status     string `json:"status" validate:"required,max=32"`
	VendorData string `json:"vendor_data" validate:"required,max=128"`
}

// RoleManager applies role changes. authz.Service satisfies it.
type RoleManager interface {
	Grant(ctx context.Context, actorID, subjectID string, role rbac.Role) error
	Revoke(ctx context.Context, actorID, subjectID string, role rbac.Role) error
}

// Result describes what a processed event changed.
type Result struct {
	EventID   string      `json:"event_id"`
	SubjectID string      `json:"subject_id"`
	Status    string      `json:"status"`
	Granted   []rbac.Role `json:"granted"`
}

// Service verifies and applies verification decisions.
type Service struct {
	secret        []byte
	roles         RoleManager
	approvedRoles []rbac.Role
	auditLogger   audit.Logger
}

// NewService creates a webhook processor. approvedRoles are granted on
// approval and must not include PROSPECT.
func NewService(secret string, roles RoleManager, approvedRoles []rbac.Role, auditLogger audit.Logger) (*Service, error) {
	if len(approvedRoles) == 0 {
		return nil, errors.New("at least one approved role is required")
	}
	for _, r := range approvedRoles {
		if !r.Valid() {
			return nil, fmt.Errorf("invalid approved role %q", r)
		}
		if r == rbac.RoleProspect {
			return nil, errors.New("PROSPECT cannot be an approved role")
		}
	}
	return &Service{
		secret:        []byte(secret),
		roles:         roles,
		approvedRoles: rbac.Normalize(approvedRoles),
		auditLogger:   auditLogger,
	}, nil
}

// Verify checks signature against body in constant time.
func (s *Service) Verify(body []byte, signature string) error {
	if len(s.secret) == 0 {
		return ErrNotConfigured
	}
	expected, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(expected) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the signature Verify accepts for body.
func (s *Service) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Handle verifies, decodes and applies a raw webhook delivery.
func (s *Service) Handle(ctx context.Context, body []byte, signature string) (*Result, error) {
	if err := s.Verify(body, signature); err != nil {
		return nil, err
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return s.Process(ctx, ev)
}

// Process applies a verified decision. Approval grants the approved roles
// before revoking PROSPECT so the subject never ends up without a role.
// Redelivery of the same event is harmless because grants and revokes of
// already applied changes are no-ops.
func (s *Service) Process(ctx context.Context, ev Event) (*Result, error) {
	status := strings.ToLower(strings.TrimSpace(ev.Status))
	res := &Result{EventID: ev.ID, SubjectID: ev.VendorData, Status: status, Granted: []rbac.Role{}}

	if status != StatusApproved {
		eventType := audit.TypeVerificationProcessed
		if status == StatusDeclined {
			eventType = audit.TypeVerificationRejected
		}
		s.auditLogger.Log(ctx, audit.Event{
			Type:      eventType,
			ActorID:   ActorID,
			SubjectID: ev.VendorData,
			Resource:  ev.ID,
			Metadata:  map[string]any{"status": status},
		})
		return res, nil
	}

	for _, role := range s.approvedRoles {
		if err := s.roles.Grant(ctx, ActorID, ev.VendorData, role); err != nil {
			return nil, fmt.Errorf("failed to apply verification %s: %w", ev.ID, err)
		}
		res.Granted = append(res.Granted, role)
	}
	if err := s.roles.Revoke(ctx, ActorID, ev.VendorData, rbac.RoleProspect); err != nil {
		return nil, fmt.Errorf("failed to apply verification %s: %w", ev.ID, err)
	}

	slog.InfoContext(ctx, "verification approved",
		logger.SubjectID(ev.VendorData),
		logger.Roles(res.Granted),
	)
	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeVerificationProcessed,
		ActorID:   ActorID,
		SubjectID: ev.VendorData,
		Resource:  ev.ID,
		Metadata:  map[string]any{"status": status, "granted": rbac.Strings(res.Granted)},
	})
	return res, nil
}
