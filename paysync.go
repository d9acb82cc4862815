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
	"embed"
	"fmt"
	"time"

	"github.com/blnkfinance/paysync/billing"
	"github.com/blnkfinance/paysync/config"
	"github.com/blnkfinance/paysync/database"
	"github.com/blnkfinance/paysync/gateway"
	"github.com/blnkfinance/paysync/model"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("paysync")

//go:embed sql/*.sql
var SQLFiles embed.FS

// PaymentAPI is the billing platform's view of payments. It is the authority
// on transaction state; the ledger only mirrors gateway calls.
type PaymentAPI interface {
	GetPayment(ctx context.Context, tenantID, paymentID string) (*model.Payment, error)
	FixTransactionState(ctx context.Context, tenantID, paymentID, transactionID string, status model.TransactionStatus, stateName string) error
	NotifyPendingTransactionResolved(ctx context.Context, tenantID, accountID, paymentID, transactionID string, success bool) error
	CreateChargeback(ctx context.Context, tenantID string, req model.ChargebackRequest) (*model.PaymentTransaction, error)
	CreateChargebackReversal(ctx context.Context, tenantID string, req model.ChargebackReversalRequest) (*model.PaymentTransaction, error)
}

// PaySync runs payment operations against the gateway and records every call in the ledger.
type PaySync struct {
	ledger   database.LedgerStore
	executor *CallExecutor
}

func NewPaySync(ledger database.LedgerStore, executor *CallExecutor) *PaySync {
	return &PaySync{ledger: ledger, executor: executor}
}

// NewGatewayRegistry builds one HTTP client per configured tenant.
func NewGatewayRegistry(cnf *config.Configuration) (*gateway.Registry, error) {
	registry := gateway.NewRegistry()
	for _, tenant := range cnf.Tenants {
		settings := cnf.GatewayFor(tenant)
		client, err := gateway.NewHTTPClient(gateway.Config{
			Endpoint:          settings.Endpoint,
			MerchantID:        tenant.MerchantID,
			APIKeyID:          tenant.APIKeyID,
			SecretAPIKey:      tenant.SecretAPIKey,
			AuthorizationType: settings.AuthorizationType,
			Integrator:        settings.Integrator,
			ConnectTimeout:    settings.ConnectTimeout(),
			SocketTimeout:     settings.SocketTimeout(),
			MaxConnections:    settings.MaxConnections,
		})
		if err == nil {
			err = registry.Register(tenant.ID, client)
		}
		if err != nil {
			_ = registry.Close()
			return nil, fmt.Errorf("tenant %s: %w", tenant.ID, err)
		}
	}
	return registry, nil
}

// NewBillingClient builds the billing platform client with every tenant's credentials.
func NewBillingClient(cnf *config.Configuration) (*billing.Client, error) {
	tenants := make(map[string]billing.TenantCredentials, len(cnf.Tenants))
	for _, tenant := range cnf.Tenants {
		tenants[tenant.ID] = billing.TenantCredentials{
			APIKey:    tenant.BillingAPIKey,
			APISecret: tenant.BillingAPISecret,
		}
	}
	return billing.NewClient(billing.Config{
		URL:      cnf.Billing.URL,
		Username: cnf.Billing.Username,
		Password: cnf.Billing.Password,
		Timeout:  time.Duration(cnf.Billing.TimeoutMs) * time.Millisecond,
		Tenants:  tenants,
	})
}

// NewClassifierFromConfig applies the configured override file, if any, to the default rules.
func NewClassifierFromConfig(cnf *config.Configuration) (*Classifier, error) {
	var overrides map[string]model.ErrorCategory
	if cnf.Classification.OverridesFile != "" {
		var err error
		overrides, err = LoadCategoryOverrides(cnf.Classification.OverridesFile)
		if err != nil {
			return nil, err
		}
	}
	return NewClassifier(overrides)
}
