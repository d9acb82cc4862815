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
	"errors"
	"fmt"

	"github.com/blnkfinance/paysync/model"
)

var ErrUnknownStatusCode = errors.New("unknown gateway status code")

// businessResults maps gateway status codes to their settlement verdict.
// The verdict names themselves are accepted as codes too.
var businessResults = map[string]model.BusinessResult{
	"ACCOUNT_VERIFIED": model.Authorised,
	"CAPTURED":         model.Authorised,
	"CANCELLED":        model.Authorised,
	"REFUNDED":         model.Authorised,
	"CHARGEBACKED":     model.Authorised,
	"REVERSED":         model.Authorised,
	"PAID":             model.Authorised,

	"REDIRECTED": model.RedirectRequired,

	"CREATED":                 model.Received,
	"AUTHORIZATION_REQUESTED": model.Received,
	"PENDING_PAYMENT":         model.Received,
	"CAPTURE_REQUESTED":       model.Received,
	"REFUND_REQUESTED":        model.Received,

	"REJECTED":         model.Refused,
	"REJECTED_CAPTURE": model.Refused,

	"PENDING_APPROVAL":       model.Pending,
	"PENDING_FRAUD_APPROVAL": model.Pending,
	"PENDING_COMPLETION":     model.Pending,

	"Error":   model.Error,
	"[error]": model.Error,

	"": model.Cancelled,

	string(model.Authorised):       model.Authorised,
	string(model.Received):         model.Received,
	string(model.Pending):          model.Pending,
	string(model.Refused):          model.Refused,
	string(model.Error):            model.Error,
	string(model.RedirectRequired): model.RedirectRequired,
}

// BusinessResultFor resolves a gateway status code. Unknown codes are an error:
// a guessed verdict could misreport money movement.
func BusinessResultFor(statusCode string) (model.BusinessResult, error) {
	result, ok := businessResults[statusCode]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatusCode, statusCode)
	}
	return result, nil
}

// PluginStatusForResult maps a business verdict to the caller-facing status.
// A gateway cancellation is a failed charge, not a caller cancellation.
func PluginStatusForResult(result model.BusinessResult) model.PluginStatus {
	switch result {
	case model.Authorised:
		return model.StatusProcessed
	case model.Received, model.Pending, model.RedirectRequired:
		return model.StatusPending
	case model.Refused, model.Error, model.Cancelled:
		return model.StatusError
	default:
		return model.StatusUndefined
	}
}

// PluginStatusForCategory maps a technical failure to the caller-facing status.
func PluginStatusForCategory(category model.ErrorCategory) model.PluginStatus {
	switch category {
	case model.RequestNotSent, model.ResponseRejectedRequest:
		return model.StatusCanceled
	default:
		return model.StatusUndefined
	}
}

// StatusOf derives the plugin status of a call outcome. It panics when the
// outcome breaks the business-result/error-category invariant.
func StatusOf(outcome model.CallOutcome) (model.PluginStatus, error) {
	if err := model.ValidateOutcome(outcome); err != nil {
		panic(err)
	}
	if code, ok := outcome.StatusCode(); ok {
		result, err := BusinessResultFor(code)
		if err != nil {
			return "", err
		}
		return PluginStatusForResult(result), nil
	}
	category, _ := outcome.ErrorCategory()
	return PluginStatusForCategory(category), nil
}
