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
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/paysync"
	"github.com/blnkfinance/paysync/config"
	"github.com/blnkfinance/paysync/internal/notification"
	redis_db "github.com/blnkfinance/paysync/internal/redis-db"
	"github.com/blnkfinance/paysync/model"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

type reconciler interface {
	Reconcile(ctx context.Context, n model.Notification) (paysync.ReconcileAction, error)
}

// notificationWorker consumes queued gateway notifications.
type notificationWorker struct {
	reconciler reconciler
	dropped    func(n *model.Notification, reason error)
}

func newNotificationWorker(r reconciler) *notificationWorker {
	return &notificationWorker{reconciler: r, dropped: notification.NotifyDroppedNotification}
}

// permanent reports errors that no retry can fix.
func permanent(err error) bool {
	return errors.Is(err, paysync.ErrUnknownStatusCode) || errors.Is(err, paysync.ErrConflictingResolution)
}

func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= maxRetry
}

// processNotification reconciles one notification. Permanent failures are
// reported to operators and not retried; anything else goes back to the queue
// until asynq runs out of retries.
func (w *notificationWorker) processNotification(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("paysync.notifications.worker").Start(ctx, "Process Notification From Redis Queue")
	defer span.End()

	n, err := paysync.ParseNotificationTask(t.Payload())
	if err != nil {
		notification.NotifyError(err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	fields := logrus.Fields{
		"tenant_id":              n.TenantID,
		"notification_id":        n.NotificationID,
		"gateway_transaction_id": n.GatewayTransactionID,
	}

	action, err := w.reconciler.Reconcile(ctx, *n)
	if err != nil {
		span.RecordError(err)
		if permanent(err) {
			w.dropped(n, err)
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		if lastAttempt(ctx) {
			w.dropped(n, err)
		}
		logrus.WithFields(fields).WithError(err).Info("notification pushed back for retry")
		return err
	}

	logrus.WithFields(fields).WithField("action", action).Info(" [*] Notification Processed")
	return nil
}

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	redisOption, err := redis_db.AsynqOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(redisOption, asynq.Config{
		Concurrency: conf.Queue.WorkerConcurrency,
		Queues:      map[string]int{conf.Queue.NotificationQueue: 1},
	}), nil
}

func startMonitoring(conf *config.Configuration) error {
	redisOption, err := redis_db.AsynqOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return err
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOption,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
		log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			log.Fatalf("could not start asynqmon server: %v", err)
		}
	}()
	return nil
}

// workerCommands returns the `workers` command, which reconciles queued gateway notifications.
func workerCommands(p *paysyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start paysync notification workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := p.cnf

			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			billingClient, err := paysync.NewBillingClient(conf)
			if err != nil {
				log.Fatal("Error creating billing client: ", err)
			}
			worker := newNotificationWorker(paysync.NewNotificationReconciler(p.ledger, billingClient))

			srv, err := initializeWorkerServer(conf)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			mux.HandleFunc(paysync.TypeNotification, worker.processNotification)

			if err := startMonitoring(conf); err != nil {
				log.Fatal(err)
			}

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
