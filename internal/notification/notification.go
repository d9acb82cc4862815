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

// Package notification alerts operators about gateway notifications that
// will not be reconciled.
package notification

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/blnkfinance/paysync/config"
	"github.com/blnkfinance/paysync/internal/request"
	"github.com/blnkfinance/paysync/model"
	"github.com/sirupsen/logrus"
)

var slackClient = &http.Client{Timeout: 10 * time.Second}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func buildMessage(project string, err error, fields map[string]string, at time.Time) slackMessage {
	fieldBlock := []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Error:*\n%v", err)}}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fieldBlock = append(fieldBlock, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", k, fields[k])})
	}

	return slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("Error From %s 🐞", project), Emoji: true}},
		{Type: "section", Fields: fieldBlock},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%v", at.Format(time.RFC822))}}},
	}}
}

// SlackNotification posts err and its context fields to a Slack incoming webhook.
func SlackNotification(ctx context.Context, webhookURL, project string, err error, fields map[string]string) error {
	payload, marshalErr := request.ToJsonReq(buildMessage(project, err, fields, time.Now()))
	if marshalErr != nil {
		return marshalErr
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, payload)
	if reqErr != nil {
		return reqErr
	}
	_, callErr := request.Call(slackClient, req, nil)
	return callErr
}

// NotifyError logs systemError and, when a Slack webhook is configured,
// forwards it there. The Slack call runs in the background.
func NotifyError(systemError error) {
	notify(systemError, nil)
}

// NotifyDroppedNotification reports a gateway notification that will not be
// retried, with enough context to replay it by hand.
func NotifyDroppedNotification(n *model.Notification, reason error) {
	notify(reason, map[string]string{
		"Tenant":              n.TenantID,
		"Notification":        n.NotificationID,
		"Gateway transaction": n.GatewayTransactionID,
		"Status code":         n.StatusCode,
	})
}

func notify(systemError error, fields map[string]string) {
	entry := logrus.WithError(systemError)
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Error("operator alert")

	conf, err := config.Fetch()
	if err != nil {
		logrus.Error(err)
		return
	}
	if conf.Notification.Slack.WebhookUrl == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), slackClient.Timeout)
		defer cancel()
		if err := SlackNotification(ctx, conf.Notification.Slack.WebhookUrl, conf.ProjectName, systemError, fields); err != nil {
			logrus.WithError(err).Warn("slack notification failed")
		}
	}()
}
