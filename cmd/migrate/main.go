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

// Command migrate applies the schema and seeds the access policy.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hangar-aero/hangar/internal/config"
	"github.com/hangar-aero/hangar/internal/observability/logger"
	"github.com/hangar-aero/hangar/internal/policy"
	"github.com/hangar-aero/hangar/internal/store/postgres"
)

func main() {
	skipSeed := flag.Bool("skip-seed", false, "apply migrations without seeding the policy")
	replace := flag.Bool("replace", false, "remove role capability rows that are not in the policy")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      "text",
		ServiceName: cfg.Observability.ServiceName,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, *skipSeed, *replace); err != nil {
		slog.Error("migration failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, skipSeed, replace bool) error {
	sqlDB, err := postgres.OpenSQL(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	applied, err := postgres.Migrate(ctx, sqlDB)
	if err != nil {
		return err
	}
	slog.Info("schema up to date", logger.String("applied", fmt.Sprint(applied)))

	if skipSeed {
		return nil
	}

	pol, err := policy.Default()
	if cfg.Policy.File != "" {
		pol, err = policy.Load(cfg.Policy.File)
	}
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	db, err := postgres.New(ctx, postgres.Config{DSN: cfg.Database.DSN()})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.SeedPolicy(ctx, db, pol, replace); err != nil {
		return err
	}
	slog.Info("access policy seeded", logger.String("mode", seedMode(replace)))
	return nil
}

func seedMode(replace bool) string {
	if replace {
		return "replace"
	}
	return "upsert"
}
