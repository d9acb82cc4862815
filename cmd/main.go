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

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/paysync"
	"github.com/blnkfinance/paysync/config"
	"github.com/blnkfinance/paysync/database"
	"github.com/blnkfinance/paysync/database/dynamo"
	"github.com/blnkfinance/paysync/gateway"
	"github.com/blnkfinance/paysync/internal/notification"
)

// PaySync is the command line application.
type PaySync struct {
	cmd *cobra.Command
}

// paysyncInstance holds what every command shares once the configuration is loaded.
type paysyncInstance struct {
	cnf      *config.Configuration
	ledger   database.LedgerStore
	registry *gateway.Registry
	service  *paysync.PaySync
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and wires the ledger and gateway clients before any command runs.
func preRun(app *paysyncInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		instance, err := setupPaySync(cmd.Context(), cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		*app = *instance
		return nil
	}
}

// newLedger opens the ledger store selected by data_source.driver.
func newLedger(ctx context.Context, cnf *config.Configuration) (database.LedgerStore, error) {
	switch cnf.DataSource.Driver {
	case config.DriverDynamoDB:
		return dynamo.NewDataSource(ctx, cnf)
	default:
		return database.NewDataSource(cnf)
	}
}

func setupPaySync(ctx context.Context, cnf *config.Configuration) (*paysyncInstance, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ledger, err := newLedger(ctx, cnf)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	registry, err := paysync.NewGatewayRegistry(cnf)
	if err != nil {
		return nil, fmt.Errorf("error creating gateway clients: %v", err)
	}
	logrus.WithField("tenants", registry.Tenants()).Info("gateway clients ready")

	classifier, err := paysync.NewClassifierFromConfig(cnf)
	if err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("error loading classification overrides: %v", err)
	}

	return &paysyncInstance{
		cnf:      cnf,
		ledger:   ledger,
		registry: registry,
		service:  paysync.NewPaySync(ledger, paysync.NewCallExecutor(registry, classifier)),
	}, nil
}

func (p *paysyncInstance) close() {
	if p.registry != nil {
		if err := p.registry.Close(); err != nil {
			log.Printf("Error closing gateway clients: %v", err)
		}
	}
}

// NewCLI creates the root command and its start, workers, migrate and config subcommands.
func NewCLI() *PaySync {
	var configFile string
	p := &paysyncInstance{}

	var rootCmd = &cobra.Command{
		Use:   "paysync",
		Short: "Payment gateway call classification and notification reconciliation",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./paysync.json", "Configuration file for paysync")
	rootCmd.PersistentPreRunE = preRun(p, &configFile)
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) { p.close() }

	rootCmd.AddCommand(serverCommands(p))
	rootCmd.AddCommand(workerCommands(p))
	rootCmd.AddCommand(migrateCommands(p))
	rootCmd.AddCommand(configCommands(p))

	return &PaySync{cmd: rootCmd}
}

func (w PaySync) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
