/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package main provides the CLI commands for managing the schema of the Postgres
ledger. This includes commands for applying and rolling back migrations.
*/

package main

import (
	"fmt"
	"log"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/paysync"
	"github.com/blnkfinance/paysync/config"
	"github.com/blnkfinance/paysync/database"
)

// migrateCommands groups the schema commands of the Postgres ledger.
// The DynamoDB table is provisioned outside paysync.
func migrateCommands(p *paysyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run paysync ledger migrations",
	}

	// Add subcommands for migrating up and down.
	cmd.AddCommand(migrationCommand(p, "up", migrate.Up, "Applied"))
	cmd.AddCommand(migrationCommand(p, "down", migrate.Down, "Rolled back"))

	return cmd
}

/*
migrationCommand creates the command that runs the embedded migrations in one
direction. done is the verb printed with the number of migrations executed.
*/
func migrationCommand(p *paysyncInstance, use string, direction migrate.MigrationDirection, done string) *cobra.Command {
	return &cobra.Command{
		Use: use,
		Run: func(cmd *cobra.Command, args []string) {
			// The DynamoDB ledger has no schema to migrate.
			if p.cnf.DataSource.Driver == config.DriverDynamoDB {
				fmt.Println("dynamodb ledger: nothing to migrate")
				return
			}

			// Define the source of the migrations.
			migrations := migrate.EmbedFileSystemMigrationSource{
				FileSystem: paysync.SQLFiles,
				Root:       "sql",
			}

			// Connect to the database.
			db, err := database.ConnectDB(p.cnf.DataSource.Dns)
			if err != nil {
				log.Printf("Error connecting to database: %v", err)
				return
			}
			defer db.Close()

			// Set the schema for the migrations and run them.
			migrate.SetSchema("paysync")
			n, err := migrate.Exec(db, "postgres", migrations, direction)
			if err != nil {
				log.Printf("Error migrating %s: %v", use, err)
				return
			}
			fmt.Printf("%s %d migrations!\n", done, n)
		},
	}
}
