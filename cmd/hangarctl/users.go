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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hangar-aero/hangar/internal/identity"
	"github.com/hangar-aero/hangar/internal/rbac"
	"github.com/hangar-aero/hangar/internal/store/postgres"
)

// passwordEnv supplies the password of users create so it stays out of
// shell history.
const passwordEnv = "HANGAR_BOOTSTRAP_PASSWORD"

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage member accounts",
	}
	cmd.AddCommand(newUsersCreateCmd())
	return cmd
}

func newUsersCreateCmd() *cobra.Command {
	var (
		email    string
		fullName string
		roleName string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account and replace its PROSPECT role",
		Long: `Create an account the way registration does, then grant --role and
revoke PROSPECT. The password is read from ` + passwordEnv + `.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv(passwordEnv)
			if password == "" {
				return errors.New(passwordEnv + " is not set")
			}
			role, err := rbac.Parse(roleName)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			sec := e.cfg.Security
			identityService := identity.NewService(
				postgres.NewUserRepository(e.db),
				identity.NewPasswordHasher(sec.Argon2Memory, sec.Argon2Iterations, sec.Argon2Parallelism, sec.Argon2SaltLength, sec.Argon2KeyLength),
				e.audit,
				sec.LockoutMaxAttempts,
				sec.LockoutDuration,
			)

			user, err := identityService.Register(cmd.Context(), email, password, identity.Profile{FullName: fullName})
			if err != nil {
				return err
			}
			if role != rbac.RoleProspect {
				if err := e.authz.Grant(cmd.Context(), actorID, user.ID, role); err != nil {
					return err
				}
				if err := e.authz.Revoke(cmd.Context(), actorID, user.ID, rbac.RoleProspect); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s) with role %s\n", user.Email, user.ID, role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&fullName, "name", "", "Full name")
	cmd.Flags().StringVar(&roleName, "role", string(rbac.RoleProspect), "Role to hold")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
