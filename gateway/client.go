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

// Package gateway talks to the card payment gateway's merchant REST API.
package gateway

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Client is one merchant's handle on the gateway. Every method is a single
// blocking call; errors are returned raw and classified by the caller.
type Client interface {
	CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentResponse, error)
	ApprovePayment(ctx context.Context, paymentID string, req *ApprovePaymentRequest) (*PaymentResponse, error)
	CancelPayment(ctx context.Context, paymentID string) (*PaymentResponse, error)
	RefundPayment(ctx context.Context, paymentID string, req *RefundRequest) (*RefundResponse, error)
	CreatePayout(ctx context.Context, req *PayoutRequest) (*PayoutResponse, error)
	CreateToken(ctx context.Context, req *CreateTokenRequest) (*CreateTokenResponse, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	Close() error
}

type AmountOfMoney struct {
	Amount       int64  `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "ISK": true, "JPY": true, "KMF": true, "KRW": true,
	"PYG": true, "RWF": true, "UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// NewAmountOfMoney converts a major unit amount to the gateway's minor units.
func NewAmountOfMoney(amount decimal.Decimal, currency string) AmountOfMoney {
	currency = strings.ToUpper(currency)
	exponent := int32(2)
	if zeroDecimalCurrencies[currency] {
		exponent = 0
	}
	return AmountOfMoney{Amount: amount.Shift(exponent).Round(0).IntPart(), CurrencyCode: currency}
}

// Decimal converts the minor unit amount back to major units.
func (a AmountOfMoney) Decimal() decimal.Decimal {
	exponent := int32(2)
	if zeroDecimalCurrencies[strings.ToUpper(a.CurrencyCode)] {
		exponent = 0
	}
	return decimal.New(a.Amount, -exponent)
}

type Order struct {
	AmountOfMoney AmountOfMoney    `json:"amountOfMoney"`
	Customer      *Customer        `json:"customer,omitempty"`
	References    *OrderReferences `json:"references,omitempty"`
}

type Customer struct {
	MerchantCustomerID string `json:"merchantCustomerId,omitempty"`
}

type OrderReferences struct {
	MerchantReference string `json:"merchantReference,omitempty"`
	Descriptor        string `json:"descriptor,omitempty"`
}

type Card struct {
	CardNumber     string `json:"cardNumber,omitempty"`
	Cvv            string `json:"cvv,omitempty"`
	ExpiryDate     string `json:"expiryDate,omitempty"`
	CardholderName string `json:"cardholderName,omitempty"`
}

type CardPaymentMethodSpecificInput struct {
	PaymentProductID   int    `json:"paymentProductId,omitempty"`
	Token              string `json:"token,omitempty"`
	Card               *Card  `json:"card,omitempty"`
	RequiresApproval   bool   `json:"requiresApproval"`
	SkipAuthentication bool   `json:"skipAuthentication"`
	ReturnURL          string `json:"returnUrl,omitempty"`
}

type CreatePaymentRequest struct {
	Order                          Order                           `json:"order"`
	CardPaymentMethodSpecificInput *CardPaymentMethodSpecificInput `json:"cardPaymentMethodSpecificInput,omitempty"`
	// IdempotenceKey is sent as a header, never in the body.
	IdempotenceKey string `json:"-"`
}

type APIError struct {
	Code           string `json:"code"`
	ID             string `json:"id,omitempty"`
	Category       string `json:"category,omitempty"`
	Message        string `json:"message"`
	HTTPStatusCode int    `json:"httpStatusCode,omitempty"`
	PropertyName   string `json:"propertyName,omitempty"`
}

type StatusOutput struct {
	StatusCode     int        `json:"statusCode"`
	StatusCategory string     `json:"statusCategory,omitempty"`
	IsAuthorized   bool       `json:"isAuthorized"`
	IsCancellable  bool       `json:"isCancellable"`
	IsRefundable   bool       `json:"isRefundable"`
	Errors         []APIError `json:"errors,omitempty"`
}

type CardPaymentMethodSpecificOutput struct {
	AuthorisationCode string `json:"authorisationCode,omitempty"`
	Token             string `json:"token,omitempty"`
	PaymentProductID  int    `json:"paymentProductId,omitempty"`
}

type PaymentOutput struct {
	AmountOfMoney                   AmountOfMoney                    `json:"amountOfMoney"`
	References                      *OrderReferences                 `json:"references,omitempty"`
	CardPaymentMethodSpecificOutput *CardPaymentMethodSpecificOutput `json:"cardPaymentMethodSpecificOutput,omitempty"`
}

type Payment struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	StatusOutput  StatusOutput   `json:"statusOutput"`
	PaymentOutput *PaymentOutput `json:"paymentOutput,omitempty"`
}

// AuthorisationCode is the acquirer's approval code, when the gateway reports one.
func (p *Payment) AuthorisationCode() string {
	if p.PaymentOutput == nil || p.PaymentOutput.CardPaymentMethodSpecificOutput == nil {
		return ""
	}
	return p.PaymentOutput.CardPaymentMethodSpecificOutput.AuthorisationCode
}

type MerchantAction struct {
	ActionType  string `json:"actionType"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

type CreatePaymentResponse struct {
	Payment        Payment         `json:"payment"`
	MerchantAction *MerchantAction `json:"merchantAction,omitempty"`
}

type ApprovePaymentRequest struct {
	Amount int64 `json:"amount,omitempty"`
}

type PaymentResponse struct {
	Payment Payment `json:"payment"`
}

type RefundReferences struct {
	MerchantReference string `json:"merchantReference,omitempty"`
}

type RefundRequest struct {
	AmountOfMoney    AmountOfMoney     `json:"amountOfMoney"`
	RefundReferences *RefundReferences `json:"refundReferences,omitempty"`
}

type RefundResponse struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	StatusOutput StatusOutput `json:"statusOutput"`
}

type PayoutRequest struct {
	AmountOfMoney     AmountOfMoney `json:"amountOfMoney"`
	Token             string        `json:"token,omitempty"`
	MerchantReference string        `json:"merchantReference,omitempty"`
}

type PayoutResponse struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	StatusOutput StatusOutput `json:"statusOutput"`
}

type CreateTokenRequest struct {
	PaymentProductID int   `json:"paymentProductId"`
	Card             *Card `json:"card,omitempty"`
}

type CreateTokenResponse struct {
	Token      string `json:"token"`
	IsNewToken bool   `json:"isNewToken"`
}
