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
	"fmt"

	"github.com/blnkfinance/paysync/gateway"
	"github.com/blnkfinance/paysync/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PaymentRequest describes one synchronous payment operation. TransactionID is
// the billing platform's id for the transaction; one is generated when empty.
type PaymentRequest struct {
	TenantID          string
	AccountID         string
	PaymentID         string
	TransactionID     string
	Amount            decimal.Decimal
	Currency          string
	Card              *gateway.Card
	Token             string
	PaymentProductID  int
	MerchantReference string
	ReturnURL         string
}

// Authorize reserves funds. The gateway holds the payment until it is captured.
func (p *PaySync) Authorize(ctx context.Context, req PaymentRequest) (*model.TransactionInfo, error) {
	return p.createPayment(ctx, req, model.Authorize, true)
}

// Purchase authorizes and captures in one call.
func (p *PaySync) Purchase(ctx context.Context, req PaymentRequest) (*model.TransactionInfo, error) {
	return p.createPayment(ctx, req, model.Purchase, false)
}

func (p *PaySync) createPayment(ctx context.Context, req PaymentRequest, txnType model.TransactionType, requiresApproval bool) (*model.TransactionInfo, error) {
	req = withTransactionID(req)
	input := &gateway.CreatePaymentRequest{
		Order: gateway.Order{
			AmountOfMoney: gateway.NewAmountOfMoney(req.Amount, req.Currency),
			Customer:      &gateway.Customer{MerchantCustomerID: req.AccountID},
			References:    &gateway.OrderReferences{MerchantReference: merchantReference(req)},
		},
		CardPaymentMethodSpecificInput: &gateway.CardPaymentMethodSpecificInput{
			PaymentProductID:   req.PaymentProductID,
			Token:              req.Token,
			Card:               req.Card,
			RequiresApproval:   requiresApproval,
			SkipAuthentication: req.ReturnURL == "",
			ReturnURL:          req.ReturnURL,
		},
		IdempotenceKey: req.TransactionID,
	}

	return p.run(ctx, req, txnType, func(ctx context.Context, client gateway.Client) (GatewayResult, error) {
		resp, err := client.CreatePayment(ctx, input)
		if err != nil {
			return GatewayResult{}, err
		}
		return paymentResult(resp, &resp.Payment), nil
	})
}

// Capture settles a previously authorized payment. A zero amount captures the authorized amount.
func (p *PaySync) Capture(ctx context.Context, req PaymentRequest) (*model.TransactionInfo, error) {
	auth, err := p.ledger.FindSuccessfulAuthorization(ctx, req.TenantID, req.PaymentID)
	if err != nil {
		return nil, err
	}
	req = followUp(withTransactionID(req), auth)
	approval := &gateway.ApprovePaymentRequest{Amount: gateway.NewAmountOfMoney(req.Amount, req.Currency).Amount}

	return p.run(ctx, req, model.Capture, func(ctx context.Context, client gateway.Client) (GatewayResult, error) {
		resp, err := client.ApprovePayment(ctx, auth.GatewayTransactionID, approval)
		if err != nil {
			return GatewayResult{}, err
		}
		return paymentResult(resp, &resp.Payment), nil
	})
}

// Void cancels an authorization that has not been captured.
func (p *PaySync) Void(ctx context.Context, req PaymentRequest) (*model.TransactionInfo, error) {
	auth, err := p.ledger.FindSuccessfulAuthorization(ctx, req.TenantID, req.PaymentID)
	if err != nil {
		return nil, err
	}
	req = followUp(withTransactionID(req), auth)

	return p.run(ctx, req, model.Void, func(ctx context.Context, client gateway.Client) (GatewayResult, error) {
		resp, err := client.CancelPayment(ctx, auth.GatewayTransactionID)
		if err != nil {
			return GatewayResult{}, err
		}
		return paymentResult(resp, &resp.Payment), nil
	})
}

// Refund returns captured funds to the cardholder.
func (p *PaySync) Refund(ctx context.Context, req PaymentRequest) (*model.TransactionInfo, error) {
	auth, err := p.ledger.FindSuccessfulAuthorization(ctx, req.TenantID, req.PaymentID)
	if err != nil {
		return nil, err
	}
	req = followUp(withTransactionID(req), auth)
	input := &gateway.RefundRequest{
		AmountOfMoney:    gateway.NewAmountOfMoney(req.Amount, req.Currency),
		RefundReferences: &gateway.RefundReferences{MerchantReference: merchantReference(req)},
	}

	return p.run(ctx, req, model.Refund, func(ctx context.Context, client gateway.Client) (GatewayResult, error) {
		resp, err := client.RefundPayment(ctx, auth.GatewayTransactionID, input)
		if err != nil {
			return GatewayResult{}, err
		}
		return GatewayResult{Response: resp, GatewayTransactionID: resp.ID, StatusCode: resp.Status}, nil
	})
}

// Credit pays funds out to a stored card token without a prior payment.
func (p *PaySync) Credit(ctx context.Context, req PaymentRequest) (*model.TransactionInfo, error) {
	req = withTransactionID(req)
	input := &gateway.PayoutRequest{
		AmountOfMoney:     gateway.NewAmountOfMoney(req.Amount, req.Currency),
		Token:             req.Token,
		MerchantReference: merchantReference(req),
	}

	return p.run(ctx, req, model.Credit, func(ctx context.Context, client gateway.Client) (GatewayResult, error) {
		resp, err := client.CreatePayout(ctx, input)
		if err != nil {
			return GatewayResult{}, err
		}
		return GatewayResult{Response: resp, GatewayTransactionID: resp.ID, StatusCode: resp.Status}, nil
	})
}

// CreateToken stores a card with the gateway and returns its token. Tokens are
// not transactions and leave no ledger row.
func (p *PaySync) CreateToken(ctx context.Context, tenantID string, paymentProductID int, card *gateway.Card) (string, error) {
	outcome := p.executor.Execute(ctx, tenantID, "create_token", func(ctx context.Context, client gateway.Client) (GatewayResult, error) {
		resp, err := client.CreateToken(ctx, &gateway.CreateTokenRequest{PaymentProductID: paymentProductID, Card: card})
		if err != nil {
			return GatewayResult{}, err
		}
		return GatewayResult{Response: resp}, nil
	})

	switch o := outcome.(type) {
	case *model.CallSuccess:
		resp, ok := o.Response.(*gateway.CreateTokenResponse)
		if !ok || resp.Token == "" {
			return "", fmt.Errorf("create token: %w", gateway.ErrMalformedResponse)
		}
		return resp.Token, nil
	case *model.CallFailure:
		return "", fmt.Errorf("create token failed (%s): %s", o.Category, o.RootErrorMessage)
	}
	return "", model.ErrInvalidOutcome
}

// GetPaymentInfo lists every ledger row of a payment with its derived status.
func (p *PaySync) GetPaymentInfo(ctx context.Context, tenantID, paymentID string) ([]model.TransactionInfo, error) {
	ctx, span := tracer.Start(ctx, "GetPaymentInfo")
	defer span.End()

	records, err := p.ledger.ListRowsByPayment(ctx, tenantID, paymentID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	infos := make([]model.TransactionInfo, 0, len(records))
	for i := range records {
		info, err := TransactionInfoOf(&records[i])
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

// GetTransactionInfo reports the latest ledger row of a transaction.
func (p *PaySync) GetTransactionInfo(ctx context.Context, tenantID, transactionID string) (*model.TransactionInfo, error) {
	ctx, span := tracer.Start(ctx, "GetTransactionInfo")
	defer span.End()

	record, err := p.ledger.FindLatestRow(ctx, tenantID, transactionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return TransactionInfoOf(record)
}

// TransactionInfoOf derives the caller-facing view of a stored row.
func TransactionInfoOf(record *model.TransactionRecord) (*model.TransactionInfo, error) {
	status, err := StatusOf(record.Outcome())
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", record.TransactionID, err)
	}
	return &model.TransactionInfo{
		TransactionID:        record.TransactionID,
		PaymentID:            record.PaymentID,
		TransactionType:      record.TransactionType,
		Status:               status,
		Amount:               record.Amount,
		Currency:             record.Currency,
		GatewayTransactionID: record.GatewayTransactionID,
		AuthorizationCode:    record.AuthorizationCode,
		ErrorCode:            record.ErrorCode,
		ErrorMessage:         record.ErrorMessage,
		CreatedAt:            record.CreatedAt,
	}, nil
}

// run executes op, writes the ledger row for the attempt and reports its status.
// An unknown gateway status code is returned as an error once the row is stored.
func (p *PaySync) run(ctx context.Context, req PaymentRequest, txnType model.TransactionType, op GatewayOperation) (*model.TransactionInfo, error) {
	ctx, span := tracer.Start(ctx, string(txnType), trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("payment.id", req.PaymentID),
		attribute.String("transaction.id", req.TransactionID),
	))
	defer span.End()

	outcome := p.executor.Execute(ctx, req.TenantID, string(txnType), op)
	status, statusErr := StatusOf(outcome)

	saved, err := p.ledger.InsertRow(ctx, newRecord(req, txnType, outcome))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if statusErr != nil {
		span.RecordError(statusErr)
		logrus.WithFields(logrus.Fields{
			"tenant_id":      req.TenantID,
			"transaction_id": req.TransactionID,
			"gateway_status": saved.GatewayStatus,
		}).Error("gateway returned an unknown status code")
		return nil, fmt.Errorf("%s %s: %w", txnType, req.TransactionID, statusErr)
	}

	span.SetAttributes(attribute.String("transaction.status", string(status)))
	info, err := TransactionInfoOf(saved)
	if err != nil {
		return nil, err
	}
	info.Status = status
	return info, nil
}

func newRecord(req PaymentRequest, txnType model.TransactionType, outcome model.CallOutcome) *model.TransactionRecord {
	record := &model.TransactionRecord{
		TenantID:        req.TenantID,
		AccountID:       req.AccountID,
		PaymentID:       req.PaymentID,
		TransactionID:   req.TransactionID,
		TransactionType: txnType,
		Amount:          req.Amount,
		Currency:        req.Currency,
		AdditionalData:  map[string]interface{}{"durationMs": outcome.Elapsed().Milliseconds()},
	}

	switch o := outcome.(type) {
	case *model.CallSuccess:
		record.GatewayTransactionID = o.GatewayTransactionID
		record.AuthorizationCode = o.AuthorizationCode
		record.GatewayStatus = o.BusinessStatusCode
		if result, err := BusinessResultFor(o.BusinessStatusCode); err == nil {
			record.BusinessResult = result
		}
	case *model.CallFailure:
		var gatewayCode, message string
		if len(o.StructuredErrors) > 0 {
			gatewayCode = o.StructuredErrors[0].Code
			message = o.StructuredErrors[0].Message
			record.AdditionalData["gatewayErrors"] = o.StructuredErrors
		}
		if message == "" {
			message = o.RootErrorMessage
		}
		record.ErrorCategory = o.Category
		record.GatewayStatus = o.PartialStatus
		record.ErrorCode = errorCode(gatewayCode, o.PartialStatus, o.RootErrorClass)
		record.ErrorMessage = truncate(message, ErrorMessageMaxLength)
		record.AdditionalData["exceptionClass"] = o.RootErrorClass
		record.AdditionalData["exceptionMessage"] = o.RootErrorMessage
		record.AdditionalData["callErrorStatus"] = string(o.Category)
		if o.PartialTransactionID != "" {
			record.AdditionalData["partialTransactionId"] = o.PartialTransactionID
		}
	}
	return record
}

func paymentResult(resp interface{}, payment *gateway.Payment) GatewayResult {
	return GatewayResult{
		Response:             resp,
		GatewayTransactionID: payment.ID,
		AuthorizationCode:    payment.AuthorisationCode(),
		StatusCode:           payment.Status,
	}
}

func withTransactionID(req PaymentRequest) PaymentRequest {
	if req.TransactionID == "" {
		req.TransactionID = uuid.NewString()
	}
	return req
}

// followUp fills what a capture, void or refund inherits from its authorization.
func followUp(req PaymentRequest, auth *model.TransactionRecord) PaymentRequest {
	if req.AccountID == "" {
		req.AccountID = auth.AccountID
	}
	if req.Amount.IsZero() {
		req.Amount = auth.Amount
	}
	if req.Currency == "" {
		req.Currency = auth.Currency
	}
	return req
}

func merchantReference(req PaymentRequest) string {
	if req.MerchantReference != "" {
		return req.MerchantReference
	}
	return req.TransactionID
}
