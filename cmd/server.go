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
	"net/http"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/paysync"
	"github.com/blnkfinance/paysync/api"
	"github.com/blnkfinance/paysync/config"
	redis_db "github.com/blnkfinance/paysync/internal/redis-db"
	trace "github.com/blnkfinance/paysync/internal/traces"
)

/*
serveTLS starts an HTTPS server with certificates managed by CertMagic.
If no domain is specified, the server will default to running on localhost.
*/
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	// ACME account used for issuing and renewing certificates
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "certmagic"}

	// Define domain(s) for the certificate
	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	// Obtain or load certificates before accepting connections
	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + conf.Port,
		Handler:           r,
		TLSConfig:         cfg.TLSConfig(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTPS server: %w", err)
	}
	return nil
}

// initializeObservability sets up tracing when telemetry is enabled and returns its shutdown hook.
func initializeObservability(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}
	shutdown, err := trace.SetupOTelSDK(ctx, cfg.ProjectName)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

// startServer serves the router over HTTPS when SSL is configured, plain HTTP otherwise.
func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

/*
serverCommands returns the Cobra command that starts the paysync HTTP server.
It sets up tracing, the notification queue and the Redis health check, then
serves the notification webhook and the ledger read API.
*/
func serverCommands(p *paysyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start paysync server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			cfg := p.cnf

			// Initialize observability (tracing)
			shutdown, err := initializeObservability(ctx, cfg)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			// Queue that accepted notifications are handed to
			queue, err := paysync.NewQueue(cfg)
			if err != nil {
				log.Fatal(err)
			}
			defer queue.Close()

			// Readiness depends on Redis being reachable
			health := func(ctx context.Context) error {
				return redis_db.Ping(ctx, cfg.Redis.Dns, cfg.Redis.SkipTLSVerify, time.Second)
			}

			// Build the router and start serving
			router := api.NewAPI(p.service, queue, health).Router()
			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
