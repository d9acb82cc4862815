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

package model

import (
	"errors"
	"time"
)

// CallOutcome is the result of exactly one gateway call. It is either a
// *CallSuccess carrying a business status code or a *CallFailure carrying an
// ErrorCategory, never both.
type CallOutcome interface {
	// StatusCode returns the gateway business status code of a well formed response.
	StatusCode() (string, bool)
	// ErrorCategory returns the category of a technical failure.
	ErrorCategory() (ErrorCategory, bool)
	Elapsed() time.Duration

	sealed()
}

// GatewayError is one entry of the error list a gateway attaches to a refusal.
type GatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CallSuccess struct {
	Response             interface{}
	GatewayTransactionID string
	AuthorizationCode    string
	BusinessStatusCode   string
	Duration             time.Duration
}

func (s *CallSuccess) StatusCode() (string, bool)           { return s.BusinessStatusCode, true }
func (s *CallSuccess) ErrorCategory() (ErrorCategory, bool) { return "", false }
func (s *CallSuccess) Elapsed() time.Duration               { return s.Duration }
func (s *CallSuccess) sealed()                              {}

type CallFailure struct {
	Category             ErrorCategory
	RootErrorClass       string
	RootErrorMessage     string
	StructuredErrors     []GatewayError
	PartialTransactionID string
	PartialStatus        string
	Duration             time.Duration
}

func (f *CallFailure) StatusCode() (string, bool)           { return "", false }
func (f *CallFailure) ErrorCategory() (ErrorCategory, bool) { return f.Category, true }
func (f *CallFailure) Elapsed() time.Duration               { return f.Duration }
func (f *CallFailure) sealed()                              {}

var ErrInvalidOutcome = errors.New("call outcome must carry a business status code or an error category, not both and not neither")

// ValidateOutcome checks the business-result XOR error-category invariant.
func ValidateOutcome(outcome CallOutcome) error {
	switch o := outcome.(type) {
	case *CallSuccess:
		if o == nil {
			return ErrInvalidOutcome
		}
		return nil
	case *CallFailure:
		if o == nil || !o.Category.Valid() {
			return ErrInvalidOutcome
		}
		return nil
	default:
		return ErrInvalidOutcome
	}
}
