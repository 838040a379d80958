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

	"github.com/hangar-aero/hangar/internal/policy"
)

type contextKey string

const matchKey contextKey = "policy_match"

func withMatch(ctx context.Context, m policy.Match) context.Context {
	return context.WithValue(ctx, matchKey, m)
}

func matchFrom(ctx context.Context) (policy.Match, bool) {
	m, ok := ctx.Value(matchKey).(policy.Match)
	return m, ok
}

// GetNamespace returns the policy namespace the gate matched, or "" for
// paths outside the table.
func GetNamespace(ctx context.Context) string {
	if m, ok := matchFrom(ctx); ok {
		return m.Rule.Namespace
	}
	return ""
}
