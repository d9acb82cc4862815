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

package database

import (
	"context"

	"github.com/blnkfinance/paysync/model"
)

// LedgerStore persists one row per gateway call attempt. Lookups that find
// nothing return an apierror.APIError with code apierror.ErrNotFound.
type LedgerStore interface {
	// InsertRow appends a row and fills its record id and timestamp.
	InsertRow(ctx context.Context, record *model.TransactionRecord) (*model.TransactionRecord, error)
	FindLatestRow(ctx context.Context, tenantID, transactionID string) (*model.TransactionRecord, error)
	// FindLatestRowByGatewayTransaction restricts the lookup to txnType unless it is empty.
	FindLatestRowByGatewayTransaction(ctx context.Context, tenantID, gatewayTransactionID string, txnType model.TransactionType) (*model.TransactionRecord, error)
	// FindSuccessfulAuthorization returns the latest AUTHORIZE or PURCHASE row the gateway accepted.
	FindSuccessfulAuthorization(ctx context.Context, tenantID, paymentID string) (*model.TransactionRecord, error)
	// ListRowsByPayment returns the rows of a payment, oldest first.
	ListRowsByPayment(ctx context.Context, tenantID, paymentID string) ([]model.TransactionRecord, error)
	// MergeUpdateLatest patches the latest row of a transaction. Additional data
	// is merged key by key and empty status fields are left untouched.
	MergeUpdateLatest(ctx context.Context, tenantID, transactionID string, update model.StatusUpdate, additionalData map[string]interface{}) error
}
