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

// Command hangarctl is the operator tool for the access store: schema,
// policy seeding, role assignments and credentials for scripting.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hangar-aero/hangar/internal/audit"
	"github.com/hangar-aero/hangar/internal/authz"
	"github.com/hangar-aero/hangar/internal/config"
	"github.com/hangar-aero/hangar/internal/observability/logger"
	"github.com/hangar-aero/hangar/internal/policy"
	"github.com/hangar-aero/hangar/internal/store/postgres"
)

var version = "dev"

// actorID is recorded as the granter of changes made from the command line.
const actorID = "hangarctl"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "hangarctl",
		Short: "Operator tool for the Hangar access store",
		Long: `hangarctl manages the Hangar access store directly.

Database commands read the same HANGAR_* environment as the server.
Policy validation works offline.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.InitLogger(logger.Config{Level: logLevel, Format: "text", ServiceName: "hangarctl", Output: cmd.ErrOrStderr()})
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newPolicyCmd())
	rootCmd.AddCommand(newRolesCmd())
	rootCmd.AddCommand(newUsersCmd())
	rootCmd.AddCommand(newTokenCmd())

	return rootCmd
}

// env is the database-backed state shared by store commands.
type env struct {
	cfg   *config.Config
	db    *postgres.DB
	authz *authz.Service
	audit audit.Logger
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := postgres.New(ctx, postgres.Config{DSN: cfg.Database.DSN()})
	if err != nil {
		return nil, err
	}
	auditLogger := audit.NewSlogLogger(nil)
	repo := postgres.NewAuthzRepository(db)
	return &env{
		cfg:   cfg,
		db:    db,
		authz: authz.NewService(repo, repo, auditLogger, nil),
		audit: auditLogger,
	}, nil
}

func (e *env) Close() {
	e.db.Close()
}

// loadPolicy reads file, or the built-in policy when file is empty.
func loadPolicy(file string) (*policy.Policy, error) {
	if file == "" {
		return policy.Default()
	}
	pol, err := policy.Load(file)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", file, err)
	}
	return pol, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			sqlDB, err := postgres.OpenSQL(cmd.Context(), cfg.Database.DSN())
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			applied, err := postgres.Migrate(cmd.Context(), sqlDB)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %s\n", v)
			}
			return nil
		},
	}
}
