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
package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/paysync/model"
)

// GatewayNotification is the webhook body posted by the gateway adapter.
// StatusCode is a pointer because an empty status is meaningful: the gateway
// reports a cancelled settlement that way.
type GatewayNotification struct {
	NotificationID       string                 `json:"notification_id"`
	GatewayTransactionID string                 `json:"gateway_transaction_id"`
	StatusCode           *string                `json:"status_code"`
	BusinessResult       string                 `json:"business_result"`
	TransactionID        string                 `json:"transaction_id"`
	TransactionType      string                 `json:"transaction_type"`
	PaymentID            string                 `json:"payment_id"`
	AccountID            string                 `json:"account_id"`
	Amount               decimal.Decimal        `json:"amount"`
	Currency             string                 `json:"currency"`
	AuthorizationCode    string                 `json:"authorization_code"`
	AdditionalData       map[string]interface{} `json:"additional_data"`
}

var businessResults = []interface{}{
	string(model.Authorised), string(model.Received), string(model.Pending), string(model.Refused),
	string(model.Error), string(model.Cancelled), string(model.RedirectRequired),
}

var transactionTypes = []interface{}{
	string(model.Authorize), string(model.Purchase), string(model.Capture), string(model.Void),
	string(model.Refund), string(model.Credit), string(model.Chargeback), string(model.ChargebackReversal),
}

func notNegative(value interface{}) error {
	if amount, ok := value.(decimal.Decimal); ok && amount.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

func (n *GatewayNotification) ValidateGatewayNotification() error {
	return validation.ValidateStruct(n,
		validation.Field(&n.GatewayTransactionID, validation.When(n.TransactionID == "", validation.Required.Error("is required without transaction_id"))),
		validation.Field(&n.StatusCode, validation.NotNil),
		validation.Field(&n.BusinessResult, validation.In(businessResults...)),
		validation.Field(&n.TransactionType, validation.In(transactionTypes...)),
		validation.Field(&n.Currency, validation.Length(3, 3)),
		validation.Field(&n.Amount, validation.By(notNegative)),
	)
}

// ToNotification converts a validated body into the queued notification.
func (n *GatewayNotification) ToNotification(tenantID string, receivedAt time.Time) *model.Notification {
	out := &model.Notification{
		NotificationID:       n.NotificationID,
		TenantID:             tenantID,
		GatewayTransactionID: n.GatewayTransactionID,
		TransactionID:        n.TransactionID,
		TransactionType:      model.TransactionType(n.TransactionType),
		PaymentID:            n.PaymentID,
		AccountID:            n.AccountID,
		Amount:               n.Amount,
		Currency:             n.Currency,
		AuthorizationCode:    n.AuthorizationCode,
		AdditionalData:       n.AdditionalData,
		ReceivedAt:           receivedAt,
	}
	if n.StatusCode != nil {
		out.StatusCode = *n.StatusCode
	}
	if n.BusinessResult != "" {
		result := model.BusinessResult(n.BusinessResult)
		out.BusinessResult = &result
	}
	return out
}
