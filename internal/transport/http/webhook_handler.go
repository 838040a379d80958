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

package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hangar-aero/hangar/internal/authz"
	"github.com/hangar-aero/hangar/internal/observability/logger"
	"github.com/hangar-aero/hangar/internal/onboarding"
)

const maxWebhookBytes = 64 << 10

// VerificationWebhook applies an identity verification decision
// @Summary Verification webhook
// @Description Called by the identity verification provider. The raw body must be signed with the shared secret in the X-Hmac-Signature header. An approval promotes the PROSPECT named in vendor_data.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param X-Hmac-Signature header string true "hex HMAC-SHA256 of the body"
// @Success 200 {object} onboarding.Result
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /webhooks/verification [post]
func (h *Handler) VerificationWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhooks == nil {
		respondError(w, http.StatusServiceUnavailable, "verification webhook not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	result, err := h.webhooks.Handle(r.Context(), body, r.Header.Get(onboarding.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, onboarding.ErrNotConfigured):
			respondError(w, http.StatusServiceUnavailable, "verification webhook not configured")
		case errors.Is(err, onboarding.ErrInvalidSignature):
			slog.WarnContext(r.Context(), "webhook signature rejected", logger.RemoteAddr(r.RemoteAddr))
			respondError(w, http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, onboarding.ErrInvalidEvent):
			respondError(w, http.StatusBadRequest, "invalid event")
		case errors.Is(err, authz.ErrSubjectNotFound):
			respondError(w, http.StatusNotFound, "subject not found")
		default:
			slog.ErrorContext(r.Context(), "webhook processing failed", logger.Error(err))
			respondError(w, http.StatusServiceUnavailable, "processing failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}
