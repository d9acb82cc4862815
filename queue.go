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

package paysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/blnkfinance/paysync/config"
	redis_db "github.com/blnkfinance/paysync/internal/redis-db"
	"github.com/blnkfinance/paysync/model"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// TypeNotification is the asynq task type of a gateway notification.
const TypeNotification = "paysync:notification"

// Queue hands gateway notifications to the workers.
type Queue struct {
	Client    *asynq.Client
	queueName string
	maxRetry  int
}

// NewQueue connects to the Redis instance of the configuration.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	queueOptions, err := redis_db.AsynqOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %w", err)
	}

	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		queueName: conf.Queue.NotificationQueue,
		maxRetry:  conf.Queue.MaxRetries,
	}, nil
}

// EnqueueNotification queues n for reconciliation. Notifications are keyed by
// their id, so a redelivered notification that is still queued is accepted
// without being enqueued twice.
func (q *Queue) EnqueueNotification(ctx context.Context, n *model.Notification) error {
	ctx, span := tracer.Start(ctx, "Adding Notification To Redis Queue")
	defer span.End()

	if n.NotificationID == "" {
		n.NotificationID = uuid.NewString()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeNotification, payload,
		asynq.TaskID(n.NotificationID),
		asynq.Queue(q.queueName),
		asynq.MaxRetry(q.maxRetry),
	)
	info, err := q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logrus.WithField("notification_id", n.NotificationID).Info("notification already queued")
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	logrus.WithFields(logrus.Fields{
		"notification_id": n.NotificationID,
		"queue":           info.Queue,
	}).Info("notification queued")
	return nil
}

// ParseNotificationTask decodes the payload of a notification task.
func ParseNotificationTask(payload []byte) (*model.Notification, error) {
	var n model.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("invalid notification payload: %w", err)
	}
	return &n, nil
}

func (q *Queue) Close() error {
	return q.Client.Close()
}
