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

// Package policy loads the access policy document: the coarse route table
// consulted by the gate and the role to capability grants seeded into the
// store. Both are validated against each other when loaded and are read-only
// afterwards.
package policy

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hangar-aero/hangar/internal/authz"
	"github.com/hangar-aero/hangar/internal/rbac"
)

//go:embed default_policy.yaml
var defaultPolicy []byte

// AllCapabilities in a role's allow list expands to the whole catalogue.
const AllCapabilities = "*"

// Prefix is a path entry in the document.
type Prefix struct {
	Path     string `yaml:"path"`
	Wildcard bool   `yaml:"wildcard"`
}

// Namespace groups prefixes that share a role allow-list.
type Namespace struct {
	Name         string   `yaml:"name"`
	Prefixes     []Prefix `yaml:"prefixes"`
	Roles        []string `yaml:"roles"`
	Capabilities []string `yaml:"capabilities"`
	// Exception documents why a namespace has no backing capabilities.
	Exception string `yaml:"exception"`
}

// CapabilityDef is a catalogue entry.
type CapabilityDef struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// RoleGrants lists the capability rows of one role.
type RoleGrants struct {
	Description string   `yaml:"description"`
	Allow       []string `yaml:"allow"`
	Deny        []string `yaml:"deny"`
}

// Document is the raw policy file.
type Document struct {
	Version      int                   `yaml:"version"`
	Public       []Prefix              `yaml:"public"`
	Namespaces   []Namespace           `yaml:"namespaces"`
	Capabilities []CapabilityDef       `yaml:"capabilities"`
	Roles        map[string]RoleGrants `yaml:"roles"`
}

// Policy is a validated document with its compiled route table.
type Policy struct {
	table        *Table
	capabilities []CapabilityDef
	grants       []authz.RoleCapability
	descriptions map[rbac.Role]string
}

// Default returns the policy compiled into the binary.
func Default() (*Policy, error) {
	return Parse(defaultPolicy)
}

// Load reads a policy file, or the built-in policy when path is empty.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a policy document. Unknown fields are rejected.
func Parse(data []byte) (*Policy, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	return Compile(doc)
}

// Compile validates doc and builds the read-only policy.
func Compile(doc Document) (*Policy, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	var rules []Rule
	for _, p := range doc.Public {
		rules = append(rules, Rule{Prefix: NormalizePath(p.Path), Wildcard: p.Wildcard, Public: true})
	}
	for _, ns := range doc.Namespaces {
		roles, _ := rbac.ParseAll(ns.Roles)
		for _, p := range ns.Prefixes {
			rules = append(rules, Rule{
				Namespace: ns.Name,
				Prefix:    NormalizePath(p.Path),
				Wildcard:  p.Wildcard,
				Roles:     rbac.Normalize(roles),
			})
		}
	}

	pol := &Policy{
		table:        newTable(rules),
		capabilities: slices.Clone(doc.Capabilities),
		descriptions: make(map[rbac.Role]string),
	}
	for name, g := range doc.Roles {
		role, _ := rbac.Parse(name)
		pol.descriptions[role] = g.Description
		for _, c := range doc.expandAllow(g.Allow) {
			pol.grants = append(pol.grants, authz.RoleCapability{Role: role, Capability: authz.MustCapability(c), IsGranted: true})
		}
		for _, c := range g.Deny {
			pol.grants = append(pol.grants, authz.RoleCapability{Role: role, Capability: authz.MustCapability(c), IsGranted: false})
		}
	}
	sort.Slice(pol.grants, func(i, j int) bool {
		a, b := pol.grants[i], pol.grants[j]
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		return a.Capability.String() < b.Capability.String()
	})
	return pol, nil
}

// Table returns the coarse route table.
func (p *Policy) Table() *Table {
	return p.table
}

// Capabilities returns a copy of the capability catalogue.
func (p *Policy) Capabilities() []CapabilityDef {
	return slices.Clone(p.capabilities)
}

// Grants returns a copy of the role capability rows.
func (p *Policy) Grants() []authz.RoleCapability {
	return slices.Clone(p.grants)
}

// RoleDescription returns the human description of a role.
func (p *Policy) RoleDescription(r rbac.Role) string {
	return p.descriptions[r]
}

func (d Document) expandAllow(allow []string) []string {
	if slices.Contains(allow, AllCapabilities) {
		all := make([]string, len(d.Capabilities))
		for i, c := range d.Capabilities {
			all[i] = c.Name
		}
		return all
	}
	return allow
}

// Validate checks the document for internal consistency and reports every
// problem found.
//
// Beyond syntax it requires that the two tables agree: each role allowed on a
// namespace must be granted at least one of the namespace's capabilities,
// and each role granted one of them must be on the namespace's allow-list.
// A namespace without capabilities must carry an exception.
func (d Document) Validate() error {
	var errs []error
	addf := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if d.Version != 1 {
		addf("unsupported policy version %d", d.Version)
	}

	catalogue := make(map[string]bool)
	for _, c := range d.Capabilities {
		if _, err := authz.ParseCapability(c.Name); err != nil {
			errs = append(errs, err)
			continue
		}
		if catalogue[c.Name] {
			addf("capability %q declared twice", c.Name)
		}
		catalogue[c.Name] = true
	}

	// effective grants per role, used for the cross-table checks below
	granted := make(map[rbac.Role]map[string]bool)
	for name, g := range d.Roles {
		role, err := rbac.Parse(name)
		if err != nil {
			addf("roles: %w", err)
			continue
		}
		if string(role) != name {
			addf("roles: %q must be written as %q", name, role)
		}
		if slices.Contains(g.Allow, AllCapabilities) && len(g.Allow) > 1 {
			addf("role %s: %q must be the only allow entry", role, AllCapabilities)
		}

		allow := d.expandAllow(g.Allow)
		set := make(map[string]bool)
		for _, c := range allow {
			if !catalogue[c] {
				addf("role %s allows unknown capability %q", role, c)
			}
			set[c] = true
		}
		for _, c := range g.Deny {
			if !catalogue[c] {
				addf("role %s denies unknown capability %q", role, c)
			}
			if set[c] {
				addf("role %s both allows and denies %q", role, c)
			}
		}
		for _, c := range g.Deny {
			delete(set, c)
		}
		granted[role] = set
	}

	seen := make(map[string]string)
	claim := func(owner string, p Prefix) {
		if !strings.HasPrefix(p.Path, "/") {
			addf("%s: path %q must start with /", owner, p.Path)
			return
		}
		n := NormalizePath(p.Path)
		if prev, ok := seen[n]; ok {
			addf("%s: path %q already registered by %s", owner, n, prev)
			return
		}
		seen[n] = owner
	}

	for _, p := range d.Public {
		claim("public", p)
	}

	names := make(map[string]bool)
	for _, ns := range d.Namespaces {
		owner := fmt.Sprintf("namespace %q", ns.Name)
		if ns.Name == "" {
			addf("namespace without a name")
		}
		if names[ns.Name] {
			addf("%s declared twice", owner)
		}
		names[ns.Name] = true

		if len(ns.Prefixes) == 0 {
			addf("%s has no prefixes", owner)
		}
		for _, p := range ns.Prefixes {
			claim(owner, p)
		}

		roles, err := rbac.ParseAll(ns.Roles)
		if err != nil {
			addf("%s: %w", owner, err)
		}
		if len(ns.Roles) == 0 {
			addf("%s has an empty role allow-list", owner)
		}

		if len(ns.Capabilities) == 0 {
			if strings.TrimSpace(ns.Exception) == "" {
				addf("%s has no capabilities and no documented exception", owner)
			}
			continue
		}
		for _, c := range ns.Capabilities {
			if !catalogue[c] {
				addf("%s references unknown capability %q", owner, c)
			}
		}

		for _, r := range roles {
			if !grantsAny(granted[r], ns.Capabilities) {
				addf("%s allows %s but that role holds none of its capabilities", owner, r)
			}
		}
		for r, set := range granted {
			if grantsAny(set, ns.Capabilities) && !slices.Contains(roles, r) {
				addf("%s does not allow %s although that role holds one of its capabilities", owner, r)
			}
		}
	}

	return errors.Join(errs...)
}

func grantsAny(set map[string]bool, caps []string) bool {
	for _, c := range caps {
		if set[c] {
			return true
		}
	}
	return false
}
