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

// Command clean-db drops every table owned by the schema. Development only.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/hangar-aero/hangar/internal/config"
	"github.com/hangar-aero/hangar/internal/store/postgres"
)

func main() {
	force := flag.Bool("force", false, "required; confirms that all data will be lost")
	flag.Parse()

	if !*force {
		fmt.Fprintln(os.Stderr, "Refusing to drop tables without --force")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.OpenSQL(ctx, cfg.Database.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("Dropping tables...")
	if err := postgres.DropAll(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "Drop failed: %v\n", err)
		os.Exit(1)
	}
	for _, table := range postgres.Tables {
		fmt.Printf("Dropped %s\n", table)
	}
}
