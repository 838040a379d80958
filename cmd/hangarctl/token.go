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
	"time"

	"github.com/spf13/cobra"

	"github.com/hangar-aero/hangar/internal/session"
	"github.com/hangar-aero/hangar/internal/token"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint credentials for scripting and smoke tests",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue SUBJECT_ID",
		Short: "Issue a bearer credential carrying the subject's current roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			tc := e.cfg.Token
			if ttl <= 0 {
				ttl = tc.TTL
			}
			codec, err := token.NewCodec(tc.Secret, tc.Issuer, tc.Audience)
			if err != nil {
				return err
			}
			cred, err := session.NewService(codec, e.authz, e.audit, ttl, tc.ImpersonationTTL).Issue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cred.Token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Lifetime (default: HANGAR_TOKEN_TTL)")
	return cmd
}
