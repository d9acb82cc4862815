package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCallOutcome_ExactlyOneSide(t *testing.T) {
	outcomes := []CallOutcome{
		&CallSuccess{BusinessStatusCode: "CAPTURED", Duration: time.Millisecond},
		&CallSuccess{BusinessStatusCode: ""},
		&CallFailure{Category: RequestNotSent},
		&CallFailure{Category: UnknownFailure, StructuredErrors: []GatewayError{{Code: "1", Message: "x"}}},
	}

	for _, outcome := range outcomes {
		_, hasCode := outcome.StatusCode()
		_, hasCategory := outcome.ErrorCategory()
		assert.True(t, hasCode != hasCategory, "%#v", outcome)
		assert.NoError(t, ValidateOutcome(outcome))
	}
}

func TestValidateOutcome_Rejects(t *testing.T) {
	var nilSuccess *CallSuccess
	assert.ErrorIs(t, ValidateOutcome(nil), ErrInvalidOutcome)
	assert.ErrorIs(t, ValidateOutcome(nilSuccess), ErrInvalidOutcome)
	assert.ErrorIs(t, ValidateOutcome(&CallFailure{}), ErrInvalidOutcome)
	assert.ErrorIs(t, ValidateOutcome(&CallFailure{Category: "TIMEOUT"}), ErrInvalidOutcome)
}

func TestTransactionRecord_Outcome(t *testing.T) {
	success := &TransactionRecord{BusinessResult: Authorised, GatewayTransactionID: "000000123"}
	code, ok := success.Outcome().StatusCode()
	assert.True(t, ok)
	assert.Equal(t, "AUTHORISED", code)

	failure := &TransactionRecord{ErrorCategory: ResponseNotReceived}
	category, ok := failure.Outcome().ErrorCategory()
	assert.True(t, ok)
	assert.Equal(t, ResponseNotReceived, category)

	blank := &TransactionRecord{}
	category, ok = blank.Outcome().ErrorCategory()
	assert.True(t, ok)
	assert.Equal(t, UnknownFailure, category)

	unrecognised := &TransactionRecord{GatewayStatus: "SOMETHING_NEW", GatewayTransactionID: "000000123"}
	code, ok = unrecognised.Outcome().StatusCode()
	assert.True(t, ok)
	assert.Equal(t, "SOMETHING_NEW", code)

	partial := &TransactionRecord{GatewayStatus: "REJECTED", ErrorCategory: ResponseRejectedRequest}
	category, ok = partial.Outcome().ErrorCategory()
	assert.True(t, ok)
	assert.Equal(t, ResponseRejectedRequest, category)
}

func TestNotification_Classification(t *testing.T) {
	tests := []struct {
		name         string
		notification Notification
		chargeback   bool
		expectedType TransactionType
		hasType      bool
	}{
		{"capture", Notification{StatusCode: "CAPTURED"}, false, Capture, true},
		{"refund", Notification{StatusCode: "REFUNDED"}, false, Refund, true},
		{"cancel", Notification{StatusCode: "CANCELLED"}, false, Void, true},
		{"chargeback", Notification{StatusCode: "CHARGEBACKED"}, true, Chargeback, true},
		{"reversal", Notification{StatusCode: "REVERSED"}, true, Chargeback, true},
		{"explicit type", Notification{StatusCode: "Error", TransactionType: Chargeback}, true, Chargeback, true},
		{"authorisation", Notification{StatusCode: "PENDING_APPROVAL"}, false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.chargeback, tt.notification.IsChargeback())
			txnType, ok := tt.notification.ExpectedTransactionType()
			assert.Equal(t, tt.hasType, ok)
			assert.Equal(t, tt.expectedType, txnType)
		})
	}
}

func TestNotification_OutcomePrefersBusinessResult(t *testing.T) {
	refused := Refused
	n := Notification{StatusCode: "CAPTURED", BusinessResult: &refused}
	code, ok := n.Outcome().StatusCode()
	assert.True(t, ok)
	assert.Equal(t, "REFUSED", code)
}

func TestTransactionStatus_RoundTrip(t *testing.T) {
	for _, status := range []PluginStatus{StatusProcessed, StatusPending, StatusError, StatusCanceled} {
		assert.Equal(t, status, TransactionStatusFor(status).PluginStatus())
	}
	assert.Equal(t, TxnUnknown, TransactionStatusFor(StatusUndefined))
	assert.Equal(t, StatusUndefined, TransactionStatus("SOMETHING").PluginStatus())
}

func TestPayment_OpenChargeback(t *testing.T) {
	payment := Payment{Transactions: []PaymentTransaction{
		{ID: "t1", Type: Authorize, Status: TxnSuccess},
		{ID: "t2", Type: Chargeback, Status: TxnSuccess, ExternalKey: "cb-1", Amount: decimal.NewFromInt(10)},
	}}

	open, ok := payment.OpenChargeback()
	assert.True(t, ok)
	assert.Equal(t, "t2", open.ID)

	payment.Transactions = append(payment.Transactions, PaymentTransaction{ID: "t3", Type: ChargebackReversal, Status: TxnSuccess})
	_, ok = payment.OpenChargeback()
	assert.False(t, ok)

	txn, ok := payment.Transaction("t1")
	assert.True(t, ok)
	assert.Equal(t, Authorize, txn.Type)
}
