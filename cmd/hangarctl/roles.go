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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hangar-aero/hangar/internal/rbac"
)

// Role changes made here skip the rank check applied to the admin API; the
// operator is trusted. This is how the first SUPER_ADMIN is created.
func newRolesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Inspect and change role assignments",
	}
	cmd.AddCommand(newRolesListCmd())
	cmd.AddCommand(newRolesChangeCmd("grant", "Assign a role to a subject"))
	cmd.AddCommand(newRolesChangeCmd("revoke", "Remove a role from a subject"))
	return cmd
}

func newRolesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list SUBJECT_ID",
		Short: "List the roles held by a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			assignments, err := e.authz.ListAssignments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ROLE\tGRANTED BY\tGRANTED AT")
			for _, a := range assignments {
				fmt.Fprintf(w, "%s\t%s\t%s\n", a.Role, a.GrantedBy, a.GrantedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newRolesChangeCmd(verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " SUBJECT_ID ROLE",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := rbac.Parse(args[1])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if verb == "grant" {
				err = e.authz.Grant(cmd.Context(), actorID, args[0], role)
			} else {
				err = e.authz.Revoke(cmd.Context(), actorID, args[0], role)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", verb, role, args[0])
			return nil
		},
	}
}
