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

package policy

import (
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/hangar-aero/hangar/internal/rbac"
)

// Kind distinguishes browser navigation from API calls. Denials are
// reported as 404 on UI routes and 403 on API routes.
type Kind string

const (
	KindUI  Kind = "ui"
	KindAPI Kind = "api"
)

// APIPrefix marks API routes.
const APIPrefix = "/api"

// KindOf classifies a request path.
func KindOf(p string) Kind {
	p = NormalizePath(p)
	if p == APIPrefix || strings.HasPrefix(p, APIPrefix+"/") {
		return KindAPI
	}
	return KindUI
}

// NormalizePath cleans p for matching: rooted, no dot segments, no
// trailing slash, lower case.
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.ToLower(path.Clean(p))
}

// Rule is one compiled prefix entry.
type Rule struct {
	Namespace string      `json:"namespace,omitempty"`
	Prefix    string      `json:"prefix"`
	Wildcard  bool        `json:"wildcard"`
	Public    bool        `json:"public"`
	Roles     []rbac.Role `json:"roles,omitempty"`
}

// matches reports whether the normalized path p falls under the rule.
// Wildcard rules match whole path segments only, so /api/fleet does not
// cover /api/fleetwood.
func (r Rule) matches(p string) bool {
	if p == r.Prefix {
		return true
	}
	if !r.Wildcard {
		return false
	}
	if r.Prefix == "/" {
		return true
	}
	return strings.HasPrefix(p, r.Prefix+"/")
}

// Outcome is the result of a coarse evaluation.
type Outcome int

const (
	// OutcomeDeny: the path is registered and no caller role is allowed.
	OutcomeDeny Outcome = iota
	// OutcomeAllow: the path is registered and a caller role is allowed.
	OutcomeAllow
	// OutcomeAuthenticated: the path is not registered; any valid credential passes.
	OutcomeAuthenticated
	// OutcomePublic: no credential required.
	OutcomePublic
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomePublic:
		return "public"
	default:
		return "deny"
	}
}

// Permitted reports whether the request may proceed.
func (o Outcome) Permitted() bool {
	return o != OutcomeDeny
}

// Match is the rule selected for a path.
type Match struct {
	Rule       Rule
	Registered bool
	Kind       Kind
}

// Public reports whether the path needs no credential.
func (m Match) Public() bool {
	return m.Registered && m.Rule.Public
}

// Evaluate intersects roles with the matched rule's allow-list.
func (m Match) Evaluate(roles []rbac.Role) Outcome {
	switch {
	case !m.Registered:
		return OutcomeAuthenticated
	case m.Rule.Public:
		return OutcomePublic
	case rbac.Intersects(roles, m.Rule.Roles):
		return OutcomeAllow
	default:
		return OutcomeDeny
	}
}

// Table is the immutable coarse route table. It is safe for concurrent use.
type Table struct {
	rules []Rule
}

func newTable(rules []Rule) *Table {
	sorted := slices.Clone(rules)
	// Longest prefix first; on equal length exact rules win over wildcards.
	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i].Prefix) != len(sorted[j].Prefix) {
			return len(sorted[i].Prefix) > len(sorted[j].Prefix)
		}
		return !sorted[i].Wildcard && sorted[j].Wildcard
	})
	return &Table{rules: sorted}
}

// Match returns the longest registered rule covering p.
func (t *Table) Match(p string) Match {
	n := NormalizePath(p)
	m := Match{Kind: KindOf(n)}
	for _, r := range t.rules {
		if r.matches(n) {
			m.Rule = r
			m.Registered = true
			return m
		}
	}
	return m
}

// Evaluate is Match followed by Match.Evaluate.
func (t *Table) Evaluate(p string, roles []rbac.Role) Outcome {
	return t.Match(p).Evaluate(roles)
}

// Rules returns a copy of the compiled rules in match order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		r.Roles = slices.Clone(r.Roles)
		out[i] = r
	}
	return out
}

// Namespace returns the roles allowed on a namespace, if registered.
func (t *Table) Namespace(name string) ([]rbac.Role, bool) {
	for _, r := range t.rules {
		if r.Namespace == name {
			return slices.Clone(r.Roles), true
		}
	}
	return nil, false
}
