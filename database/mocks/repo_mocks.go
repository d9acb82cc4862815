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
package mocks

import (
	"context"

	"github.com/blnkfinance/paysync/model"
	"github.com/stretchr/testify/mock"
)

// MockLedgerStore is a mock implementation of the LedgerStore interface
type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) InsertRow(ctx context.Context, record *model.TransactionRecord) (*model.TransactionRecord, error) {
	args := m.Called(ctx, record)
	if fn, ok := args.Get(0).(func(*model.TransactionRecord) *model.TransactionRecord); ok {
		return fn(record), args.Error(1)
	}
	saved, _ := args.Get(0).(*model.TransactionRecord)
	return saved, args.Error(1)
}

func (m *MockLedgerStore) FindLatestRow(ctx context.Context, tenantID, transactionID string) (*model.TransactionRecord, error) {
	args := m.Called(ctx, tenantID, transactionID)
	record, _ := args.Get(0).(*model.TransactionRecord)
	return record, args.Error(1)
}

func (m *MockLedgerStore) FindLatestRowByGatewayTransaction(ctx context.Context, tenantID, gatewayTransactionID string, txnType model.TransactionType) (*model.TransactionRecord, error) {
	args := m.Called(ctx, tenantID, gatewayTransactionID, txnType)
	record, _ := args.Get(0).(*model.TransactionRecord)
	return record, args.Error(1)
}

func (m *MockLedgerStore) FindSuccessfulAuthorization(ctx context.Context, tenantID, paymentID string) (*model.TransactionRecord, error) {
	args := m.Called(ctx, tenantID, paymentID)
	record, _ := args.Get(0).(*model.TransactionRecord)
	return record, args.Error(1)
}

func (m *MockLedgerStore) ListRowsByPayment(ctx context.Context, tenantID, paymentID string) ([]model.TransactionRecord, error) {
	args := m.Called(ctx, tenantID, paymentID)
	records, _ := args.Get(0).([]model.TransactionRecord)
	return records, args.Error(1)
}

func (m *MockLedgerStore) MergeUpdateLatest(ctx context.Context, tenantID, transactionID string, update model.StatusUpdate, additionalData map[string]interface{}) error {
	args := m.Called(ctx, tenantID, transactionID, update, additionalData)
	return args.Error(0)
}
