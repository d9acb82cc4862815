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

// Package billing talks to the billing platform that owns payments and their
// transaction states.
package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blnkfinance/paysync/internal/apierror"
	"github.com/blnkfinance/paysync/internal/request"
	"github.com/blnkfinance/paysync/model"
	"github.com/sirupsen/logrus"
)

const (
	headerAPIKey    = "X-Killbill-ApiKey"
	headerAPISecret = "X-Killbill-ApiSecret"
	headerCreatedBy = "X-Killbill-CreatedBy"
	createdBy       = "paysync"
)

// TenantCredentials identify a tenant to the billing platform.
type TenantCredentials struct {
	APIKey    string
	APISecret string
}

type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
	Tenants  map[string]TenantCredentials
}

// Client is the REST client of the billing platform.
type Client struct {
	baseURL  string
	username string
	password string
	tenants  map[string]TenantCredentials
	http     *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("billing url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid billing url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		tenants:  cfg.Tenants,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

type transactionStateFix struct {
	TransactionStatus       model.TransactionStatus `json:"transactionStatus"`
	LastSuccessPaymentState string                  `json:"lastSuccessPaymentState"`
	CurrentPaymentStateName string                  `json:"currentPaymentStateName"`
}

type transactionStateChange struct {
	PaymentID string                  `json:"paymentId"`
	Status    model.TransactionStatus `json:"status"`
}

// GetPayment reads the payment and all of its transactions.
func (c *Client) GetPayment(ctx context.Context, tenantID, paymentID string) (*model.Payment, error) {
	var payment model.Payment
	path := "/1.0/kb/payments/" + url.PathEscape(paymentID)
	if err := c.do(ctx, tenantID, http.MethodGet, path, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FixTransactionState forces a terminal transaction into another state.
func (c *Client) FixTransactionState(ctx context.Context, tenantID, paymentID, transactionID string, status model.TransactionStatus, stateName string) error {
	path := fmt.Sprintf("/1.0/kb/admin/payments/%s/transactions/%s", url.PathEscape(paymentID), url.PathEscape(transactionID))
	body := transactionStateFix{TransactionStatus: status, LastSuccessPaymentState: stateName, CurrentPaymentStateName: stateName}
	if status != model.TxnSuccess {
		body.LastSuccessPaymentState = ""
	}
	return c.do(ctx, tenantID, http.MethodPut, path, body, nil)
}

// NotifyPendingTransactionResolved settles a pending transaction.
func (c *Client) NotifyPendingTransactionResolved(ctx context.Context, tenantID, accountID, paymentID, transactionID string, success bool) error {
	status := model.TxnPaymentFailure
	if success {
		status = model.TxnSuccess
	}
	path := "/1.0/kb/paymentTransactions/" + url.PathEscape(transactionID)
	logrus.WithFields(logrus.Fields{
		"tenant_id":      tenantID,
		"account_id":     accountID,
		"payment_id":     paymentID,
		"transaction_id": transactionID,
		"status":         status,
	}).Info("resolving pending transaction")
	return c.do(ctx, tenantID, http.MethodPost, path, transactionStateChange{PaymentID: paymentID, Status: status}, nil)
}

// CreateChargeback records a chargeback and returns the transaction created for it.
func (c *Client) CreateChargeback(ctx context.Context, tenantID string, req model.ChargebackRequest) (*model.PaymentTransaction, error) {
	path := fmt.Sprintf("/1.0/kb/payments/%s/chargebacks", url.PathEscape(req.PaymentID))
	var payment model.Payment
	if err := c.do(ctx, tenantID, http.MethodPost, path, req, &payment); err != nil {
		return nil, err
	}
	txn, ok := payment.LatestTransaction(model.Chargeback, req.ExternalKey)
	if !ok {
		return nil, fmt.Errorf("billing platform did not return chargeback %s on payment %s", req.ExternalKey, req.PaymentID)
	}
	return txn, nil
}

// CreateChargebackReversal reverses the chargeback identified by req.ExternalKey.
func (c *Client) CreateChargebackReversal(ctx context.Context, tenantID string, req model.ChargebackReversalRequest) (*model.PaymentTransaction, error) {
	path := fmt.Sprintf("/1.0/kb/payments/%s/chargebackReversals", url.PathEscape(req.PaymentID))
	var payment model.Payment
	if err := c.do(ctx, tenantID, http.MethodPost, path, req, &payment); err != nil {
		return nil, err
	}
	txn, ok := payment.LatestTransaction(model.ChargebackReversal, req.ExternalKey)
	if !ok {
		return nil, fmt.Errorf("billing platform did not return chargeback reversal %s on payment %s", req.ExternalKey, req.PaymentID)
	}
	return txn, nil
}

func (c *Client) do(ctx context.Context, tenantID, method, path string, body, out interface{}) error {
	creds, ok := c.tenants[tenantID]
	if !ok {
		return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("no billing credentials for tenant '%s'", tenantID), nil)
	}

	var payload io.Reader
	if body != nil {
		buf, err := request.ToJsonReq(body)
		if err != nil {
			return err
		}
		payload = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Basic "+request.BasicAuth(c.username, c.password))
	req.Header.Set(headerAPIKey, creds.APIKey)
	req.Header.Set(headerAPISecret, creds.APISecret)
	req.Header.Set(headerCreatedBy, createdBy)

	_, err = request.Call(c.http, req, out)
	if err == nil {
		return nil
	}

	var statusErr *request.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound:
			return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("billing %s %s: not found", method, path), err)
		case http.StatusConflict:
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("billing %s %s: conflict", method, path), err)
		case http.StatusBadRequest:
			return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("billing %s %s: rejected", method, path), err)
		}
	}
	return apierror.NewAPIError(apierror.ErrUnavailable, fmt.Sprintf("billing %s %s failed", method, path), err)
}
