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
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/paysync/gateway"
	"github.com/blnkfinance/paysync/model"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GatewayResult is what an operation extracts from a successful gateway answer.
type GatewayResult struct {
	Response             interface{}
	GatewayTransactionID string
	AuthorizationCode    string
	StatusCode           string
}

// GatewayOperation performs exactly one gateway call with the tenant's client.
type GatewayOperation func(ctx context.Context, client gateway.Client) (GatewayResult, error)

// ClientProvider resolves the gateway client of a tenant. *gateway.Registry implements it.
type ClientProvider interface {
	Get(tenantID string) (gateway.Client, error)
}

// CallExecutor runs gateway operations and turns whatever happens into a CallOutcome.
type CallExecutor struct {
	clients    ClientProvider
	classifier *Classifier
}

func NewCallExecutor(clients ClientProvider, classifier *Classifier) *CallExecutor {
	return &CallExecutor{clients: clients, classifier: classifier}
}

// Execute runs op against the tenant's gateway client. It never returns an error
// and never lets a panic escape: every failure becomes a *model.CallFailure.
func (e *CallExecutor) Execute(ctx context.Context, tenantID, operation string, op GatewayOperation) (outcome model.CallOutcome) {
	ctx, span := tracer.Start(ctx, "gateway."+operation, trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("gateway.operation", operation),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if ok {
				err = fmt.Errorf("gateway operation %s panicked: %w", operation, err)
			} else {
				err = fmt.Errorf("gateway operation %s panicked: %v", operation, r)
			}
			outcome = e.failure(span, tenantID, operation, err, time.Since(start))
		}
	}()

	client, err := e.clients.Get(tenantID)
	if err != nil {
		return e.failure(span, tenantID, operation, err, time.Since(start))
	}

	result, err := op(ctx, client)
	elapsed := time.Since(start)
	if err != nil {
		return e.failure(span, tenantID, operation, err, elapsed)
	}

	span.SetAttributes(
		attribute.String("gateway.status_code", result.StatusCode),
		attribute.String("gateway.transaction_id", result.GatewayTransactionID),
	)
	return &model.CallSuccess{
		Response:             result.Response,
		GatewayTransactionID: result.GatewayTransactionID,
		AuthorizationCode:    result.AuthorizationCode,
		BusinessStatusCode:   result.StatusCode,
		Duration:             elapsed,
	}
}

type apiErrorCarrier interface {
	APIErrors() []gateway.APIError
}

type partialTransactionCarrier interface {
	PartialTransaction() (id string, status string, ok bool)
}

func (e *CallExecutor) failure(span trace.Span, tenantID, operation string, err error, elapsed time.Duration) *model.CallFailure {
	category, rule := e.classifier.Classify(err)
	root := rootCause(err)

	failure := &model.CallFailure{
		Category:         category,
		RootErrorClass:   errorClassName(root),
		RootErrorMessage: root.Error(),
		Duration:         elapsed,
	}

	var carrier apiErrorCarrier
	if errors.As(err, &carrier) {
		for _, apiErr := range carrier.APIErrors() {
			failure.StructuredErrors = append(failure.StructuredErrors, model.GatewayError{Code: apiErr.Code, Message: apiErr.Message})
		}
	}

	var partial partialTransactionCarrier
	if errors.As(err, &partial) {
		if id, status, ok := partial.PartialTransaction(); ok {
			failure.PartialTransactionID = id
			failure.PartialStatus = status
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, string(category))
	span.SetAttributes(attribute.String("gateway.error_category", string(category)), attribute.String("gateway.error_rule", rule))

	logrus.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"operation":   operation,
		"category":    category,
		"rule":        rule,
		"error_class": failure.RootErrorClass,
		"duration_ms": elapsed.Milliseconds(),
	}).WithError(err).Error("gateway call failed")

	return failure
}

// rootCause returns the innermost error of the chain.
func rootCause(err error) error {
	err = pkgerrors.Cause(err)
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
