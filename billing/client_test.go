package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/blnkfinance/paysync/internal/apierror"
	"github.com/blnkfinance/paysync/internal/request"
	"github.com/blnkfinance/paysync/model"
	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "http://billing.local:8080"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{
		URL:      testURL + "/",
		Username: "admin",
		Password: "password",
		Tenants: map[string]TenantCredentials{
			"tenant-1": {APIKey: "bob", APISecret: "lazar"},
		},
	})
	require.NoError(t, err)
	httpmock.ActivateNonDefault(c.http)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func assertHeaders(t *testing.T, req *http.Request) {
	t.Helper()
	assert.Equal(t, "Basic "+request.BasicAuth("admin", "password"), req.Header.Get("Authorization"))
	assert.Equal(t, "bob", req.Header.Get(headerAPIKey))
	assert.Equal(t, "lazar", req.Header.Get(headerAPISecret))
	assert.Equal(t, createdBy, req.Header.Get(headerCreatedBy))
}

const paymentJSON = `{
	"paymentId": "pay-1",
	"accountId": "acc-1",
	"paymentExternalKey": "order-1",
	"currency": "EUR",
	"transactions": [
		{"transactionId": "txn-1", "transactionExternalKey": "txn-1", "transactionType": "AUTHORIZE", "status": "PENDING", "amount": 10.5, "currency": "EUR"},
		{"transactionId": "txn-2", "transactionExternalKey": "726747", "transactionType": "CHARGEBACK", "status": "SUCCESS", "amount": 10.5, "currency": "EUR"}
	]
}`

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestGetPayment(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, testURL+"/1.0/kb/payments/pay-1",
		func(req *http.Request) (*http.Response, error) {
			assertHeaders(t, req)
			return httpmock.NewStringResponse(http.StatusOK, paymentJSON), nil
		})

	payment, err := c.GetPayment(context.Background(), "tenant-1", "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", payment.AccountID)
	require.Len(t, payment.Transactions, 2)
	assert.Equal(t, model.TxnPending, payment.Transactions[0].Status)
	assert.True(t, decimal.NewFromFloat(10.5).Equal(payment.Transactions[0].Amount))
}

func TestGetPayment_NotFound(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, testURL+"/1.0/kb/payments/missing",
		httpmock.NewStringResponder(http.StatusNotFound, `{"message":"not found"}`))

	_, err := c.GetPayment(context.Background(), "tenant-1", "missing")
	assert.True(t, apierror.IsNotFound(err))
}

func TestGetPayment_ServerError(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, testURL+"/1.0/kb/payments/pay-1",
		httpmock.NewStringResponder(http.StatusInternalServerError, ``))

	_, err := c.GetPayment(context.Background(), "tenant-1", "pay-1")
	code, ok := apierror.CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrUnavailable, code)
}

func TestUnknownTenant(t *testing.T) {
	c := newTestClient(t)

	_, err := c.GetPayment(context.Background(), "tenant-9", "pay-1")
	code, _ := apierror.CodeOf(err)
	assert.Equal(t, apierror.ErrInvalidInput, code)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestFixTransactionState(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPut, testURL+"/1.0/kb/admin/payments/pay-1/transactions/txn-1",
		func(req *http.Request) (*http.Response, error) {
			assertHeaders(t, req)
			var body transactionStateFix
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, model.TxnPaymentFailure, body.TransactionStatus)
			assert.Equal(t, "AUTH_FAILED", body.CurrentPaymentStateName)
			assert.Empty(t, body.LastSuccessPaymentState)
			return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
		})

	err := c.FixTransactionState(context.Background(), "tenant-1", "pay-1", "txn-1", model.TxnPaymentFailure, "AUTH_FAILED")
	assert.NoError(t, err)
}

func TestNotifyPendingTransactionResolved(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, testURL+"/1.0/kb/paymentTransactions/txn-1",
		func(req *http.Request) (*http.Response, error) {
			var body transactionStateChange
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "pay-1", body.PaymentID)
			assert.Equal(t, model.TxnSuccess, body.Status)
			return httpmock.NewStringResponse(http.StatusCreated, paymentJSON), nil
		})

	err := c.NotifyPendingTransactionResolved(context.Background(), "tenant-1", "acc-1", "pay-1", "txn-1", true)
	assert.NoError(t, err)
}

func TestCreateChargeback(t *testing.T) {
	c := newTestClient(t)
	effective := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	httpmock.RegisterResponder(http.MethodPost, testURL+"/1.0/kb/payments/pay-1/chargebacks",
		func(req *http.Request) (*http.Response, error) {
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "726747", body["transactionExternalKey"])
			assert.Equal(t, "10.5", body["amount"])
			assert.Equal(t, "EUR", body["currency"])
			assert.NotContains(t, body, "PaymentID")
			return httpmock.NewStringResponse(http.StatusCreated, paymentJSON), nil
		})

	txn, err := c.CreateChargeback(context.Background(), "tenant-1", model.ChargebackRequest{
		AccountID:     "acc-1",
		PaymentID:     "pay-1",
		ExternalKey:   "726747",
		Amount:        decimal.NewFromFloat(10.5),
		Currency:      "EUR",
		EffectiveDate: effective,
	})
	require.NoError(t, err)
	assert.Equal(t, "txn-2", txn.ID)
}

func TestCreateChargebackReversal_MissingInResponse(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, testURL+"/1.0/kb/payments/pay-1/chargebackReversals",
		httpmock.NewStringResponder(http.StatusCreated, paymentJSON))

	_, err := c.CreateChargebackReversal(context.Background(), "tenant-1", model.ChargebackReversalRequest{
		AccountID: "acc-1", PaymentID: "pay-1", ExternalKey: "726747",
	})
	assert.Error(t, err)
}
