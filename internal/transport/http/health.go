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
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hangar-aero/hangar/internal/observability/logger"
)

// Health states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const readinessTimeout = 3 * time.Second

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the probe result of one dependency.
type DependencyStatus struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

// Dependency is a backing service probed by the readiness endpoint. An
// optional dependency that is down degrades readiness instead of failing it.
type Dependency struct {
	Name     string
	Ping     func(ctx context.Context) error
	Optional bool
}

// Readiness probes every dependency
// @Summary Readiness
// @Description Reports whether the database and token store answer
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health/ready [get]
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:       StatusHealthy,
		Service:      h.info.Service,
		Dependencies: make(map[string]DependencyStatus, len(h.dependencies)),
	}
	for _, d := range h.dependencies {
		start := time.Now()
		err := d.Ping(ctx)
		st := DependencyStatus{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
		if err != nil {
			slog.WarnContext(ctx, "dependency unavailable", logger.Component(d.Name), logger.Error(err))
			st.Status = StatusUnhealthy
			switch {
			case !d.Optional:
				resp.Status = StatusUnhealthy
			case resp.Status == StatusHealthy:
				resp.Status = StatusDegraded
			}
		}
		resp.Dependencies[d.Name] = st
	}

	status := http.StatusOK
	if resp.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}
