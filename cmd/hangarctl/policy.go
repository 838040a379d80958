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

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hangar-aero/hangar/internal/policy"
	"github.com/hangar-aero/hangar/internal/rbac"
	"github.com/hangar-aero/hangar/internal/store/postgres"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Validate, inspect and seed the access policy",
	}
	cmd.AddCommand(newPolicyValidateCmd())
	cmd.AddCommand(newPolicyShowCmd())
	cmd.AddCommand(newPolicySeedCmd())
	return cmd
}

func newPolicyValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a policy document without touching the store",
		Long: `Check a policy document: every role is known, every capability is
catalogued, namespaces do not overlap and every namespace is backed by a
capability or carries an exception.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := loadPolicy(file)
			if err != nil {
				return err
			}
			name := file
			if name == "" {
				name = "built-in policy"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d rules, %d capabilities\n",
				name, len(pol.Table().Rules()), len(pol.Capabilities()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Policy file (default: built-in)")
	return cmd
}

func newPolicyShowCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the compiled route table",
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := loadPolicy(file)
			if err != nil {
				return err
			}
			printRules(cmd, pol)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Policy file (default: built-in)")
	return cmd
}

func printRules(cmd *cobra.Command, pol *policy.Policy) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PREFIX\tNAMESPACE\tROLES")
	for _, r := range pol.Table().Rules() {
		prefix := r.Prefix
		if r.Wildcard {
			prefix += "/*"
		}
		roles := strings.Join(rbac.Strings(r.Roles), ",")
		if r.Public {
			roles = "(public)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", prefix, r.Namespace, roles)
	}
	w.Flush()
}

func newPolicySeedCmd() *cobra.Command {
	var (
		file    string
		replace bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write roles, capabilities and role capability rows to the store",
		Long: `Write the policy's roles, capability catalogue and role capability rows.
Rows are upserted. With --replace, role capability rows absent from the
policy are removed, including explicit denies added by administrators.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := loadPolicy(file)
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := postgres.SeedPolicy(cmd.Context(), e.db, pol, replace); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d capabilities and %d role capability rows\n",
				len(pol.Capabilities()), len(pol.Grants()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Policy file (default: built-in)")
	cmd.Flags().BoolVar(&replace, "replace", false, "Remove role capability rows not in the policy")
	return cmd
}
