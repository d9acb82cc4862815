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

	"github.com/blnkfinance/paysync/database"
	"github.com/blnkfinance/paysync/internal/apierror"
	"github.com/blnkfinance/paysync/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNotCorrelated means no ledger row matches the notification yet. The
	// synchronous write may still be in flight, so the event should be redelivered.
	ErrNotCorrelated = errors.New("notification does not match any ledger row")
	// ErrConflictingResolution means the ledger already settled the transaction the other way.
	ErrConflictingResolution = errors.New("notification conflicts with the recorded resolution")
)

// ReconcileAction is what Reconcile did with a notification.
type ReconcileAction string

const (
	ActionSkipped            ReconcileAction = "skipped"
	ActionNoop               ReconcileAction = "noop"
	ActionResolvedPending    ReconcileAction = "resolved_pending"
	ActionForcedCorrection   ReconcileAction = "forced_correction"
	ActionChargebackCreated  ReconcileAction = "chargeback_created"
	ActionChargebackReversed ReconcileAction = "chargeback_reversed"
)

// NotificationReconciler applies asynchronous gateway events to the billing
// platform and the ledger. It keeps no state between calls: every decision is
// taken against a fresh read of the payment.
type NotificationReconciler struct {
	ledger   database.LedgerStore
	payments PaymentAPI
	logger   otellog.Logger
	now      func() time.Time
}

func NewNotificationReconciler(ledger database.LedgerStore, payments PaymentAPI) *NotificationReconciler {
	return &NotificationReconciler{
		ledger:   ledger,
		payments: payments,
		logger:   global.GetLoggerProvider().Logger("paysync.reconciler"),
		now:      time.Now,
	}
}

// reconciliation carries what every branch of Reconcile needs.
type reconciliation struct {
	notification model.Notification
	row          *model.TransactionRecord
	correlated   bool
	status       model.PluginStatus
	result       model.BusinessResult
	payment      *model.Payment
}

// Reconcile applies one notification. Ledger and payment API errors are
// returned wrapped; an unknown gateway status code returns ErrUnknownStatusCode.
func (r *NotificationReconciler) Reconcile(ctx context.Context, n model.Notification) (ReconcileAction, error) {
	ctx, span := tracer.Start(ctx, "Reconcile", trace.WithAttributes(
		attribute.String("tenant.id", n.TenantID),
		attribute.String("gateway.transaction_id", n.GatewayTransactionID),
		attribute.String("gateway.status_code", n.StatusCode),
	))
	defer span.End()

	action, err := r.reconcile(ctx, n)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("reconcile.action", string(action)))
	return action, nil
}

func (r *NotificationReconciler) reconcile(ctx context.Context, n model.Notification) (ReconcileAction, error) {
	fields := logrus.Fields{
		"tenant_id":              n.TenantID,
		"notification_id":        n.NotificationID,
		"gateway_transaction_id": n.GatewayTransactionID,
		"status_code":            n.StatusCode,
	}

	outcome := n.Outcome()
	status, err := StatusOf(outcome)
	if err != nil {
		return "", fmt.Errorf("notification %s: %w", n.NotificationID, err)
	}
	if status == model.StatusUndefined {
		logrus.WithFields(fields).Info("skipping notification with undefined status")
		return ActionSkipped, nil
	}
	code, _ := outcome.StatusCode()
	result, _ := BusinessResultFor(code)

	row, correlated, err := r.correlate(ctx, n)
	if err != nil {
		return "", err
	}

	payment, err := r.payments.GetPayment(ctx, n.TenantID, row.PaymentID)
	if err != nil {
		return "", fmt.Errorf("read payment %s: %w", row.PaymentID, err)
	}

	rc := &reconciliation{notification: n, row: row, correlated: correlated, status: status, result: result, payment: payment}
	fields["payment_id"] = row.PaymentID
	fields["status"] = status

	var action ReconcileAction
	if correlated {
		action, err = r.applyToTransaction(ctx, rc)
	} else {
		action, err = r.applyChargeback(ctx, rc)
	}
	if err != nil {
		return "", err
	}

	fields["action"] = action
	logrus.WithFields(fields).Info("notification reconciled")
	return action, nil
}

// correlate finds the ledger row a notification is about. For chargeback
// events without an explicit transaction id the row returned is only an anchor
// on the payment and correlated is false. A chargeback no row matches is
// anchored on the payment id it carries.
func (r *NotificationReconciler) correlate(ctx context.Context, n model.Notification) (*model.TransactionRecord, bool, error) {
	chargeback := n.IsChargeback()

	if n.TransactionID != "" {
		row, err := r.ledger.FindLatestRow(ctx, n.TenantID, n.TransactionID)
		if err == nil {
			return row, true, nil
		}
		if !apierror.IsNotFound(err) {
			return nil, false, fmt.Errorf("find transaction %s: %w", n.TransactionID, err)
		}
		if !chargeback {
			return nil, false, fmt.Errorf("transaction %s: %w", n.TransactionID, ErrNotCorrelated)
		}
	}

	var txnType model.TransactionType
	if !chargeback {
		txnType, _ = n.ExpectedTransactionType()
	}
	row, err := r.ledger.FindLatestRowByGatewayTransaction(ctx, n.TenantID, n.GatewayTransactionID, txnType)
	if err != nil {
		if !apierror.IsNotFound(err) {
			return nil, false, fmt.Errorf("find gateway transaction %s: %w", n.GatewayTransactionID, err)
		}
		if chargeback && n.PaymentID != "" {
			return paymentAnchor(n), false, nil
		}
		return nil, false, fmt.Errorf("gateway transaction %s: %w", n.GatewayTransactionID, ErrNotCorrelated)
	}
	return row, !chargeback, nil
}

// paymentAnchor stands in for a ledger row when a chargeback names its payment
// but no gateway call of that payment was recorded here.
func paymentAnchor(n model.Notification) *model.TransactionRecord {
	return &model.TransactionRecord{
		TenantID:  n.TenantID,
		AccountID: n.AccountID,
		PaymentID: n.PaymentID,
		Amount:    n.Amount,
		Currency:  n.Currency,
	}
}

func (r *NotificationReconciler) applyToTransaction(ctx context.Context, rc *reconciliation) (ReconcileAction, error) {
	row := rc.row
	txn, ok := rc.payment.Transaction(row.TransactionID)
	if !ok {
		return "", fmt.Errorf("transaction %s not found on payment %s: %w", row.TransactionID, row.PaymentID, ErrNotCorrelated)
	}

	if txn.Status == model.TxnPending {
		recorded, err := StatusOf(row.Outcome())
		if err != nil {
			// the notification's own code replaces the unreadable one on merge
			logrus.WithFields(logrus.Fields{
				"transaction_id": row.TransactionID,
				"record_id":      row.RecordID,
				"gateway_status": row.GatewayStatus,
			}).WithError(err).Warn("ledger row has an unreadable status")
			recorded = model.StatusUndefined
		}
		switch {
		case recorded.Terminal() && recorded == rc.status:
			return ActionNoop, nil
		case recorded.Terminal():
			return "", fmt.Errorf("transaction %s recorded %s, notification reports %s: %w", row.TransactionID, recorded, rc.status, ErrConflictingResolution)
		case rc.status == model.StatusPending:
			return ActionNoop, nil
		}

		err = r.payments.NotifyPendingTransactionResolved(ctx, row.TenantID, rc.payment.AccountID, rc.payment.ID, txn.ID, rc.status == model.StatusProcessed)
		if err != nil {
			return "", fmt.Errorf("resolve pending transaction %s: %w", txn.ID, err)
		}
		return ActionResolvedPending, r.mergeUpdate(ctx, rc, row.TransactionID, nil)
	}

	previous := txn.Status.PluginStatus()
	if previous == rc.status {
		return ActionNoop, nil
	}

	corrected := model.TransactionStatusFor(rc.status)
	if err := r.payments.FixTransactionState(ctx, row.TenantID, rc.payment.ID, txn.ID, corrected, stateName(txn.Type, rc.status)); err != nil {
		return "", fmt.Errorf("fix transaction %s: %w", txn.ID, err)
	}
	r.logCorrection(ctx, txn, previous, rc.status)

	return ActionForcedCorrection, r.mergeUpdate(ctx, rc, row.TransactionID, map[string]interface{}{
		"previousStatus":  string(previous),
		"correctedStatus": string(rc.status),
	})
}

func (r *NotificationReconciler) applyChargeback(ctx context.Context, rc *reconciliation) (ReconcileAction, error) {
	anchor, n := rc.row, rc.notification
	open, hasOpen := rc.payment.OpenChargeback()
	accountID := firstNonEmpty(rc.payment.AccountID, anchor.AccountID)

	switch rc.status {
	case model.StatusProcessed:
		if hasOpen {
			return r.ensureRecorded(ctx, rc, open, model.Chargeback, accountID, ActionChargebackCreated)
		}
		amount, currency := n.Amount, n.Currency
		if amount.IsZero() {
			amount = anchor.Amount
		}
		if currency == "" {
			currency = anchor.Currency
		}
		externalKey := firstNonEmpty(n.AuthorizationCode, anchor.AuthorizationCode, n.GatewayTransactionID)

		created, err := r.payments.CreateChargeback(ctx, n.TenantID, model.ChargebackRequest{
			AccountID:     accountID,
			PaymentID:     rc.payment.ID,
			ExternalKey:   externalKey,
			Amount:        amount,
			Currency:      currency,
			EffectiveDate: r.now().UTC(),
		})
		if err != nil {
			return "", fmt.Errorf("create chargeback on payment %s: %w", rc.payment.ID, err)
		}
		return ActionChargebackCreated, r.recordChargeback(ctx, rc, created, model.Chargeback, accountID, amount, currency)

	case model.StatusError:
		if !hasOpen {
			reversal, ok := rc.payment.LatestSuccessful(model.ChargebackReversal)
			if !ok {
				return ActionNoop, nil
			}
			return r.ensureRecorded(ctx, rc, reversal, model.ChargebackReversal, accountID, ActionChargebackReversed)
		}
		created, err := r.payments.CreateChargebackReversal(ctx, n.TenantID, model.ChargebackReversalRequest{
			AccountID:     accountID,
			PaymentID:     rc.payment.ID,
			ExternalKey:   open.ExternalKey,
			EffectiveDate: r.now().UTC(),
		})
		if err != nil {
			return "", fmt.Errorf("reverse chargeback %s on payment %s: %w", open.ExternalKey, rc.payment.ID, err)
		}
		return ActionChargebackReversed, r.recordChargeback(ctx, rc, created, model.ChargebackReversal, accountID, open.Amount, open.Currency)
	}

	return ActionNoop, nil
}

// ensureRecorded handles a redelivered chargeback event whose billing-side
// transaction already exists. If an earlier attempt created it but failed to
// write its ledger row, the row is written now and done is reported;
// otherwise the event is a noop.
func (r *NotificationReconciler) ensureRecorded(ctx context.Context, rc *reconciliation, txn *model.PaymentTransaction, txnType model.TransactionType, accountID string, done ReconcileAction) (ReconcileAction, error) {
	_, err := r.ledger.FindLatestRow(ctx, rc.notification.TenantID, txn.ID)
	if err == nil {
		return ActionNoop, nil
	}
	if !apierror.IsNotFound(err) {
		return "", fmt.Errorf("find %s %s: %w", txnType, txn.ID, err)
	}
	return done, r.recordChargeback(ctx, rc, txn, txnType, accountID, txn.Amount, txn.Currency)
}

// recordChargeback writes the ledger row of a chargeback or reversal the
// billing platform just created.
func (r *NotificationReconciler) recordChargeback(ctx context.Context, rc *reconciliation, created *model.PaymentTransaction, txnType model.TransactionType, accountID string, amount decimal.Decimal, currency string) error {
	n := rc.notification
	_, err := r.ledger.InsertRow(ctx, &model.TransactionRecord{
		TenantID:             n.TenantID,
		AccountID:            accountID,
		PaymentID:            rc.payment.ID,
		TransactionID:        created.ID,
		TransactionType:      txnType,
		Amount:               amount,
		Currency:             currency,
		GatewayTransactionID: n.GatewayTransactionID,
		AuthorizationCode:    created.ExternalKey,
		GatewayStatus:        n.StatusCode,
		BusinessResult:       rc.result,
		AdditionalData:       map[string]interface{}{},
	})
	if err != nil {
		return fmt.Errorf("record %s %s: %w", txnType, created.ID, err)
	}
	return r.mergeUpdate(ctx, rc, created.ID, nil)
}

func (r *NotificationReconciler) mergeUpdate(ctx context.Context, rc *reconciliation, transactionID string, extra map[string]interface{}) error {
	n := rc.notification
	patch := make(map[string]interface{}, len(n.AdditionalData)+len(extra)+2)
	for k, v := range n.AdditionalData {
		patch[k] = v
	}
	for k, v := range extra {
		patch[k] = v
	}
	patch["notificationStatusCode"] = n.StatusCode
	patch["reconciledAt"] = r.now().UTC().Format(time.RFC3339)

	update := model.StatusUpdate{GatewayStatus: n.StatusCode, BusinessResult: rc.result}
	if err := r.ledger.MergeUpdateLatest(ctx, n.TenantID, transactionID, update, patch); err != nil {
		return fmt.Errorf("update ledger row %s: %w", transactionID, err)
	}
	return nil
}

func (r *NotificationReconciler) logCorrection(ctx context.Context, txn *model.PaymentTransaction, previous, corrected model.PluginStatus) {
	logrus.WithFields(logrus.Fields{
		"transaction_id":           txn.ID,
		"transaction_external_key": txn.ExternalKey,
		"previous_status":          previous,
		"corrected_status":         corrected,
	}).Warn("forcing transaction state")

	var record otellog.Record
	record.SetTimestamp(r.now())
	record.SetSeverity(otellog.SeverityWarn)
	record.SetSeverityText("WARN")
	record.SetBody(otellog.StringValue("forcing transaction state"))
	record.AddAttributes(
		otellog.String("transaction.id", txn.ID),
		otellog.String("transaction.external_key", txn.ExternalKey),
		otellog.String("status.previous", string(previous)),
		otellog.String("status.corrected", string(corrected)),
	)
	r.logger.Emit(ctx, record)
}

// stateName is the billing platform's payment state for a forced transition,
// e.g. AUTH_SUCCESS or CAPTURE_FAILED.
func stateName(txnType model.TransactionType, status model.PluginStatus) string {
	prefix := string(txnType)
	if txnType == model.Authorize {
		prefix = "AUTH"
	}
	if status == model.StatusProcessed {
		return prefix + "_SUCCESS"
	}
	return prefix + "_FAILED"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
