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

	"github.com/blnkfinance/paysync/model"
	"github.com/stretchr/testify/mock"
)

// MockPaymentAPI is a mock implementation of the PaymentAPI interface
type MockPaymentAPI struct {
	mock.Mock
}

var _ PaymentAPI = (*MockPaymentAPI)(nil)

func (m *MockPaymentAPI) GetPayment(ctx context.Context, tenantID, paymentID string) (*model.Payment, error) {
	args := m.Called(ctx, tenantID, paymentID)
	payment, _ := args.Get(0).(*model.Payment)
	return payment, args.Error(1)
}

func (m *MockPaymentAPI) FixTransactionState(ctx context.Context, tenantID, paymentID, transactionID string, status model.TransactionStatus, stateName string) error {
	args := m.Called(ctx, tenantID, paymentID, transactionID, status, stateName)
	return args.Error(0)
}

func (m *MockPaymentAPI) NotifyPendingTransactionResolved(ctx context.Context, tenantID, accountID, paymentID, transactionID string, success bool) error {
	args := m.Called(ctx, tenantID, accountID, paymentID, transactionID, success)
	return args.Error(0)
}

func (m *MockPaymentAPI) CreateChargeback(ctx context.Context, tenantID string, req model.ChargebackRequest) (*model.PaymentTransaction, error) {
	args := m.Called(ctx, tenantID, req)
	txn, _ := args.Get(0).(*model.PaymentTransaction)
	return txn, args.Error(1)
}

func (m *MockPaymentAPI) CreateChargebackReversal(ctx context.Context, tenantID string, req model.ChargebackReversalRequest) (*model.PaymentTransaction, error) {
	args := m.Called(ctx, tenantID, req)
	txn, _ := args.Get(0).(*model.PaymentTransaction)
	return txn, args.Error(1)
}
