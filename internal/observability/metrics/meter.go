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
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance. A disabled meter records nothing.
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{meter: noop.NewMeterProvider().Meter(serviceName)}, nil
	}

	// The global provider is configured by the process (exporter wiring lives in cmd).
	return &Meter{meter: otel.Meter(serviceName)}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}

// Access holds the instruments recorded by the access-control path.
type Access struct {
	decisions     metric.Int64Counter
	verifications metric.Int64Counter
	storeLatency  metric.Float64Histogram
}

// NewAccess registers the access-control instruments on m.
func NewAccess(m *Meter) (*Access, error) {
	decisions, err := m.CreateCounter("hangar.access.decisions", "Route gate and capability decisions")
	verifications, err2 := m.CreateCounter("hangar.token.verifications", "Bearer credential verifications")
	latency, err3 := m.CreateHistogram("hangar.store.latency", "Role/capability store query latency", "ms")
	if err := errors.Join(err, err2, err3); err != nil {
		return nil, err
	}
	return &Access{
		decisions:     decisions,
		verifications: verifications,
		storeLatency:  latency,
	}, nil
}

// NoopAccess returns instruments that record nothing, for tests and tools.
func NoopAccess() *Access {
	a, _ := NewAccess(&Meter{meter: noop.NewMeterProvider().Meter("noop")})
	return a
}

// Decision records one allow/deny outcome. kind is "ui", "api" or "capability".
func (a *Access) Decision(ctx context.Context, outcome, kind, reason string) {
	if a == nil {
		return
	}
	a.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("kind", kind),
		attribute.String("reason", reason),
	))
}

// Verification records a token verification result.
func (a *Access) Verification(ctx context.Context, ok bool) {
	if a == nil {
		return
	}
	a.verifications.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", ok)))
}

// StoreQuery records how long a store round-trip took.
func (a *Access) StoreQuery(ctx context.Context, op string, start time.Time, err error) {
	if a == nil {
		return
	}
	a.storeLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.Bool("error", err != nil),
		))
}
