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

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/blnkfinance/paysync/config"
	"github.com/blnkfinance/paysync/model"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookURL = "https://hooks.slack.test/services/T000/B000/XXXX"

func TestBuildMessage(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := buildMessage("PaySync", errors.New("unknown status code \"WEIRD\""), map[string]string{
		"Tenant":       "tenant-1",
		"Notification": "ntf-1",
	}, at)

	require.Len(t, msg.Blocks, 3)
	assert.Equal(t, "Error From PaySync 🐞", msg.Blocks[0].Text.Text)

	fields := msg.Blocks[1].Fields
	require.Len(t, fields, 3)
	assert.Equal(t, "*Error:*\nunknown status code \"WEIRD\"", fields[0].Text)
	assert.Equal(t, "*Notification:*\nntf-1", fields[1].Text)
	assert.Equal(t, "*Tenant:*\ntenant-1", fields[2].Text)

	assert.Equal(t, "*Time:*\n"+at.Format(time.RFC822), msg.Blocks[2].Fields[0].Text)
}

func TestSlackNotification(t *testing.T) {
	httpmock.ActivateNonDefault(slackClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	var body slackMessage
	httpmock.RegisterResponder(http.MethodPost, webhookURL, func(req *http.Request) (*http.Response, error) {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	err := SlackNotification(context.Background(), webhookURL, "PaySync", errors.New("boom"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	require.Len(t, body.Blocks, 3)
	assert.True(t, strings.Contains(body.Blocks[1].Fields[0].Text, "boom"))
}

func TestSlackNotification_Rejected(t *testing.T) {
	httpmock.ActivateNonDefault(slackClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, webhookURL,
		httpmock.NewStringResponder(http.StatusForbidden, "invalid_token"))

	err := SlackNotification(context.Background(), webhookURL, "PaySync", errors.New("boom"), nil)
	assert.Error(t, err)
}

func TestNotifyDroppedNotification_NoWebhook(t *testing.T) {
	httpmock.ActivateNonDefault(slackClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	config.MockConfig(&config.Configuration{ProjectName: "PaySync"})

	NotifyDroppedNotification(&model.Notification{NotificationID: "ntf-1", TenantID: "tenant-1", StatusCode: "WEIRD"}, errors.New("unknown status code"))

	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}
