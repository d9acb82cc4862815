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

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrClientNotConfigured = errors.New("no gateway client configured for tenant")
	ErrRegistryClosed      = errors.New("gateway registry is closed")
	ErrMalformedResponse   = errors.New("malformed gateway response")
)

// ResponseError is returned for every non-2xx answer that has no more
// specific type. The specific types embed it and share its APIErrors method.
type ResponseError struct {
	StatusCode int
	ErrorID    string
	Errors     []APIError
	Body       string
}

func (e *ResponseError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("gateway responded %d: %s (%s)", e.StatusCode, e.Errors[0].Message, e.Errors[0].Code)
	}
	return fmt.Sprintf("gateway responded %d", e.StatusCode)
}

// APIErrors returns the error list the gateway attached to the response.
func (e *ResponseError) APIErrors() []APIError {
	return e.Errors
}

// ValidationError is a 400 answer about the request itself.
type ValidationError struct{ *ResponseError }

// AuthorizationError is a 403 answer: bad credentials or a merchant without access.
type AuthorizationError struct{ *ResponseError }

// ReferenceError is a 404, 409 or 410 answer about an object that does not exist or is in the wrong state.
type ReferenceError struct{ *ResponseError }

// IdempotenceError is a 409 answer to a request carrying an idempotence key still in flight.
type IdempotenceError struct {
	*ResponseError
	IdempotenceKey string
}

// PlatformError is a 5xx answer from the gateway platform.
type PlatformError struct{ *ResponseError }

// DeclinedPaymentError carries the payment the gateway created before declining it.
type DeclinedPaymentError struct {
	*ResponseError
	Payment *Payment
}

// PartialTransaction returns the gateway id and status of the declined payment.
func (e *DeclinedPaymentError) PartialTransaction() (string, string, bool) {
	if e.Payment == nil {
		return "", "", false
	}
	return e.Payment.ID, e.Payment.Status, true
}

type DeclinedRefundError struct {
	*ResponseError
	Refund *RefundResponse
}

func (e *DeclinedRefundError) PartialTransaction() (string, string, bool) {
	if e.Refund == nil {
		return "", "", false
	}
	return e.Refund.ID, e.Refund.Status, true
}

type DeclinedPayoutError struct {
	*ResponseError
	Payout *PayoutResponse
}

func (e *DeclinedPayoutError) PartialTransaction() (string, string, bool) {
	if e.Payout == nil {
		return "", "", false
	}
	return e.Payout.ID, e.Payout.Status, true
}

type errorResponse struct {
	ErrorID       string     `json:"errorId"`
	Errors        []APIError `json:"errors"`
	PaymentResult *struct {
		Payment *Payment `json:"payment"`
	} `json:"paymentResult,omitempty"`
	RefundResult *RefundResponse `json:"refundResult,omitempty"`
	PayoutResult *PayoutResponse `json:"payoutResult,omitempty"`
}

// newResponseError builds the typed error for a non-2xx answer.
func newResponseError(statusCode int, body []byte, idempotenceKey string) error {
	var parsed errorResponse
	// a body that is not JSON still yields a typed error, only without the error list
	_ = json.Unmarshal(body, &parsed)

	base := &ResponseError{
		StatusCode: statusCode,
		ErrorID:    parsed.ErrorID,
		Errors:     parsed.Errors,
		Body:       string(body),
	}

	switch statusCode {
	case http.StatusBadRequest, http.StatusPaymentRequired:
		switch {
		case parsed.PaymentResult != nil && parsed.PaymentResult.Payment != nil:
			return &DeclinedPaymentError{ResponseError: base, Payment: parsed.PaymentResult.Payment}
		case parsed.RefundResult != nil:
			return &DeclinedRefundError{ResponseError: base, Refund: parsed.RefundResult}
		case parsed.PayoutResult != nil:
			return &DeclinedPayoutError{ResponseError: base, Payout: parsed.PayoutResult}
		}
		return &ValidationError{base}
	case http.StatusForbidden:
		return &AuthorizationError{base}
	case http.StatusConflict:
		if idempotenceKey != "" {
			return &IdempotenceError{ResponseError: base, IdempotenceKey: idempotenceKey}
		}
		return &ReferenceError{base}
	case http.StatusNotFound, http.StatusGone:
		return &ReferenceError{base}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return &PlatformError{base}
	}
	return base
}
