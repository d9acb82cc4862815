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
	"time"

	"github.com/shopspring/decimal"
)

// ErrorCategory describes what happened to a gateway call that did not produce a well formed answer.
type ErrorCategory string

const (
	RequestNotSent          ErrorCategory = "REQUEST_NOT_SENT"
	ResponseNotReceived     ErrorCategory = "RESPONSE_NOT_RECEIVED"
	ResponseInvalid         ErrorCategory = "RESPONSE_INVALID"
	ResponseRejectedRequest ErrorCategory = "RESPONSE_REJECTED_REQUEST"
	UnknownFailure          ErrorCategory = "UNKNOWN_FAILURE"
)

// ErrorCategories lists every category, in classification priority order.
var ErrorCategories = []ErrorCategory{RequestNotSent, ResponseNotReceived, ResponseInvalid, ResponseRejectedRequest, UnknownFailure}

// Valid reports whether c is one of the known categories.
func (c ErrorCategory) Valid() bool {
	for _, known := range ErrorCategories {
		if c == known {
			return true
		}
	}
	return false
}

// BusinessResult is the gateway's settlement verdict on a well formed response.
type BusinessResult string

const (
	Authorised       BusinessResult = "AUTHORISED"
	Received         BusinessResult = "RECEIVED"
	Pending          BusinessResult = "PENDING"
	Refused          BusinessResult = "REFUSED"
	Error            BusinessResult = "ERROR"
	Cancelled        BusinessResult = "CANCELLED"
	RedirectRequired BusinessResult = "REDIRECT_REQUIRED"
)

// StatusCode returns a gateway status code that resolves back to r. The gateway
// reports a cancelled settlement with an empty status, while "CANCELLED" is the
// successful outcome of a cancel call.
func (r BusinessResult) StatusCode() string {
	if r == Cancelled {
		return ""
	}
	return string(r)
}

// PluginStatus is the unified status handed back to the billing platform.
type PluginStatus string

const (
	StatusProcessed PluginStatus = "PROCESSED"
	StatusPending   PluginStatus = "PENDING"
	StatusError     PluginStatus = "ERROR"
	StatusCanceled  PluginStatus = "CANCELED"
	StatusUndefined PluginStatus = "UNDEFINED"
)

// Terminal reports whether the status settles the transaction.
func (s PluginStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusError || s == StatusCanceled
}

type TransactionType string

const (
	Authorize          TransactionType = "AUTHORIZE"
	Purchase           TransactionType = "PURCHASE"
	Capture            TransactionType = "CAPTURE"
	Void               TransactionType = "VOID"
	Refund             TransactionType = "REFUND"
	Credit             TransactionType = "CREDIT"
	Chargeback         TransactionType = "CHARGEBACK"
	ChargebackReversal TransactionType = "CHARGEBACK_REVERSAL"
)

// TransactionRecord is one ledger row, written once per gateway call attempt.
type TransactionRecord struct {
	RecordID             int64                  `json:"record_id"`
	TenantID             string                 `json:"tenant_id"`
	AccountID            string                 `json:"account_id"`
	PaymentID            string                 `json:"payment_id"`
	TransactionID        string                 `json:"transaction_id"`
	TransactionType      TransactionType        `json:"transaction_type"`
	Amount               decimal.Decimal        `json:"amount"`
	Currency             string                 `json:"currency"`
	GatewayTransactionID string                 `json:"gateway_transaction_id,omitempty"`
	AuthorizationCode    string                 `json:"authorization_code,omitempty"`
	GatewayStatus        string                 `json:"gateway_status,omitempty"`
	BusinessResult       BusinessResult         `json:"business_result,omitempty"`
	ErrorCategory        ErrorCategory          `json:"error_category,omitempty"`
	ErrorCode            string                 `json:"error_code,omitempty"`
	ErrorMessage         string                 `json:"error_message,omitempty"`
	AdditionalData       map[string]interface{} `json:"additional_data"`
	CreatedAt            time.Time              `json:"created_at"`
}

// Outcome rebuilds the call outcome a stored row was written from. A success
// row whose status code had no business result keeps the raw code, so deriving
// its status fails the same way it did when the row was written. Rows that carry
// nothing at all are treated as unknown failures.
func (r *TransactionRecord) Outcome() CallOutcome {
	if r.BusinessResult != "" {
		return &CallSuccess{
			GatewayTransactionID: r.GatewayTransactionID,
			AuthorizationCode:    r.AuthorizationCode,
			BusinessStatusCode:   r.BusinessResult.StatusCode(),
		}
	}
	if r.ErrorCategory == "" && r.GatewayStatus != "" {
		return &CallSuccess{
			GatewayTransactionID: r.GatewayTransactionID,
			AuthorizationCode:    r.AuthorizationCode,
			BusinessStatusCode:   r.GatewayStatus,
		}
	}
	category := r.ErrorCategory
	if !category.Valid() {
		category = UnknownFailure
	}
	return &CallFailure{
		Category:         category,
		RootErrorClass:   r.ErrorCode,
		RootErrorMessage: r.ErrorMessage,
	}
}

// StatusUpdate carries the status columns a merge-update may set.
type StatusUpdate struct {
	GatewayStatus  string
	BusinessResult BusinessResult
}

// TransactionInfo is what a synchronous payment operation reports to its caller.
type TransactionInfo struct {
	TransactionID        string          `json:"transaction_id"`
	PaymentID            string          `json:"payment_id"`
	TransactionType      TransactionType `json:"transaction_type"`
	Status               PluginStatus    `json:"status"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	AuthorizationCode    string          `json:"authorization_code,omitempty"`
	ErrorCode            string          `json:"error_code,omitempty"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Notification is an asynchronous gateway event, already parsed from its transport.
type Notification struct {
	NotificationID       string                 `json:"notification_id"`
	TenantID             string                 `json:"tenant_id"`
	GatewayTransactionID string                 `json:"gateway_transaction_id"`
	StatusCode           string                 `json:"status_code"`
	BusinessResult       *BusinessResult        `json:"business_result,omitempty"`
	TransactionID        string                 `json:"transaction_id,omitempty"`
	TransactionType      TransactionType        `json:"transaction_type,omitempty"`
	PaymentID            string                 `json:"payment_id,omitempty"`
	AccountID            string                 `json:"account_id,omitempty"`
	Amount               decimal.Decimal        `json:"amount"`
	Currency             string                 `json:"currency"`
	AuthorizationCode    string                 `json:"authorization_code,omitempty"`
	AdditionalData       map[string]interface{} `json:"additional_data,omitempty"`
	ReceivedAt           time.Time              `json:"received_at"`
}

var chargebackEventCodes = map[string]bool{
	"CHARGEBACKED": true,
	"REVERSED":     true,
}

var eventCodeTransactionTypes = map[string]TransactionType{
	"CANCELLED":    Void,
	"REFUNDED":     Refund,
	"CAPTURED":     Capture,
	"CHARGEBACKED": Chargeback,
	"REVERSED":     Chargeback,
}

// IsChargeback reports whether the event describes a cardholder-initiated reversal.
func (n Notification) IsChargeback() bool {
	return chargebackEventCodes[n.StatusCode] || n.TransactionType == Chargeback || n.TransactionType == ChargebackReversal
}

// ExpectedTransactionType is the transaction type the event code implies, if any.
// Authorisation events map to either AUTHORIZE or PURCHASE and return false.
func (n Notification) ExpectedTransactionType() (TransactionType, bool) {
	if n.TransactionType != "" {
		return n.TransactionType, true
	}
	t, ok := eventCodeTransactionTypes[n.StatusCode]
	return t, ok
}

// Outcome turns the notification into the call outcome it reports.
// An explicit business result takes precedence over the status code.
func (n Notification) Outcome() CallOutcome {
	code := n.StatusCode
	if n.BusinessResult != nil {
		code = n.BusinessResult.StatusCode()
	}
	return &CallSuccess{
		GatewayTransactionID: n.GatewayTransactionID,
		AuthorizationCode:    n.AuthorizationCode,
		BusinessStatusCode:   code,
	}
}

// TransactionStatus is the billing platform's own view of a transaction.
type TransactionStatus string

const (
	TxnSuccess        TransactionStatus = "SUCCESS"
	TxnPending        TransactionStatus = "PENDING"
	TxnPaymentFailure TransactionStatus = "PAYMENT_FAILURE"
	TxnPluginFailure  TransactionStatus = "PLUGIN_FAILURE"
	TxnUnknown        TransactionStatus = "UNKNOWN"
)

// PluginStatus maps the platform status back to the plugin vocabulary.
func (s TransactionStatus) PluginStatus() PluginStatus {
	switch s {
	case TxnSuccess:
		return StatusProcessed
	case TxnPending:
		return StatusPending
	case TxnPaymentFailure:
		return StatusError
	case TxnPluginFailure:
		return StatusCanceled
	default:
		return StatusUndefined
	}
}

// TransactionStatusFor is the inverse of TransactionStatus.PluginStatus.
func TransactionStatusFor(status PluginStatus) TransactionStatus {
	switch status {
	case StatusProcessed:
		return TxnSuccess
	case StatusPending:
		return TxnPending
	case StatusError:
		return TxnPaymentFailure
	case StatusCanceled:
		return TxnPluginFailure
	default:
		return TxnUnknown
	}
}

// Payment is the authoritative payment as read from the billing platform.
type Payment struct {
	ID           string               `json:"paymentId"`
	AccountID    string               `json:"accountId"`
	ExternalKey  string               `json:"paymentExternalKey"`
	Currency     string               `json:"currency"`
	Transactions []PaymentTransaction `json:"transactions"`
}

type PaymentTransaction struct {
	ID                string            `json:"transactionId"`
	ExternalKey       string            `json:"transactionExternalKey"`
	Type              TransactionType   `json:"transactionType"`
	Status            TransactionStatus `json:"status"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	SecondReferenceID string            `json:"secondPaymentReferenceId,omitempty"`
	EffectiveDate     time.Time         `json:"effectiveDate"`
}

// Transaction returns the payment transaction with the given id.
func (p *Payment) Transaction(id string) (*PaymentTransaction, bool) {
	for i := range p.Transactions {
		if p.Transactions[i].ID == id {
			return &p.Transactions[i], true
		}
	}
	return nil, false
}

// OpenChargeback returns the most recent chargeback that has not been reversed.
// Transactions are expected in creation order.
func (p *Payment) OpenChargeback() (*PaymentTransaction, bool) {
	var open *PaymentTransaction
	for i := range p.Transactions {
		txn := &p.Transactions[i]
		if txn.Status != TxnSuccess {
			continue
		}
		switch txn.Type {
		case Chargeback:
			open = txn
		case ChargebackReversal:
			open = nil
		}
	}
	return open, open != nil
}

// ChargebackRequest asks the billing platform to record a chargeback against a payment.
type ChargebackRequest struct {
	AccountID     string          `json:"-"`
	PaymentID     string          `json:"-"`
	ExternalKey   string          `json:"transactionExternalKey"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	EffectiveDate time.Time       `json:"effectiveDate"`
}

type ChargebackReversalRequest struct {
	AccountID     string    `json:"-"`
	PaymentID     string    `json:"-"`
	ExternalKey   string    `json:"transactionExternalKey"`
	EffectiveDate time.Time `json:"effectiveDate"`
}

// LatestSuccessful returns the most recent successful transaction of txnType.
func (p *Payment) LatestSuccessful(txnType TransactionType) (*PaymentTransaction, bool) {
	for i := len(p.Transactions) - 1; i >= 0; i-- {
		txn := &p.Transactions[i]
		if txn.Type == txnType && txn.Status == TxnSuccess {
			return txn, true
		}
	}
	return nil, false
}

// LatestTransaction returns the most recent transaction of the given type and external key.
func (p *Payment) LatestTransaction(txnType TransactionType, externalKey string) (*PaymentTransaction, bool) {
	for i := len(p.Transactions) - 1; i >= 0; i-- {
		txn := &p.Transactions[i]
		if txn.Type == txnType && txn.ExternalKey == externalKey {
			return txn, true
		}
	}
	return nil, false
}
