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

	"github.com/blnkfinance/paysync/gateway"
	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of the gateway.Client interface
type MockClient struct {
	mock.Mock
}

var _ gateway.Client = (*MockClient)(nil)

func (m *MockClient) CreatePayment(ctx context.Context, req *gateway.CreatePaymentRequest) (*gateway.CreatePaymentResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*gateway.CreatePaymentResponse)
	return resp, args.Error(1)
}

func (m *MockClient) ApprovePayment(ctx context.Context, paymentID string, req *gateway.ApprovePaymentRequest) (*gateway.PaymentResponse, error) {
	args := m.Called(ctx, paymentID, req)
	resp, _ := args.Get(0).(*gateway.PaymentResponse)
	return resp, args.Error(1)
}

func (m *MockClient) CancelPayment(ctx context.Context, paymentID string) (*gateway.PaymentResponse, error) {
	args := m.Called(ctx, paymentID)
	resp, _ := args.Get(0).(*gateway.PaymentResponse)
	return resp, args.Error(1)
}

func (m *MockClient) RefundPayment(ctx context.Context, paymentID string, req *gateway.RefundRequest) (*gateway.RefundResponse, error) {
	args := m.Called(ctx, paymentID, req)
	resp, _ := args.Get(0).(*gateway.RefundResponse)
	return resp, args.Error(1)
}

func (m *MockClient) CreatePayout(ctx context.Context, req *gateway.PayoutRequest) (*gateway.PayoutResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*gateway.PayoutResponse)
	return resp, args.Error(1)
}

func (m *MockClient) CreateToken(ctx context.Context, req *gateway.CreateTokenRequest) (*gateway.CreateTokenResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*gateway.CreateTokenResponse)
	return resp, args.Error(1)
}

func (m *MockClient) GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	args := m.Called(ctx, paymentID)
	resp, _ := args.Get(0).(*gateway.Payment)
	return resp, args.Error(1)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}
