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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/blnkfinance/paysync/internal/apierror"
	"github.com/blnkfinance/paysync/model"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const recordColumns = `record_id, tenant_id, account_id, payment_id, transaction_id, transaction_type,
	amount, currency, gateway_transaction_id, authorization_code, gateway_status,
	business_result, error_category, error_code, error_message, additional_data, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*model.TransactionRecord, error) {
	var (
		record                                        model.TransactionRecord
		gatewayTxnID, authCode, gatewayStatus, result sql.NullString
		category, errorCode, errorMessage             sql.NullString
		additionalData                                []byte
	)
	err := row.Scan(
		&record.RecordID, &record.TenantID, &record.AccountID, &record.PaymentID, &record.TransactionID, &record.TransactionType,
		&record.Amount, &record.Currency, &gatewayTxnID, &authCode, &gatewayStatus,
		&result, &category, &errorCode, &errorMessage, &additionalData, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.GatewayTransactionID = gatewayTxnID.String
	record.AuthorizationCode = authCode.String
	record.GatewayStatus = gatewayStatus.String
	record.BusinessResult = model.BusinessResult(result.String)
	record.ErrorCategory = model.ErrorCategory(category.String)
	record.ErrorCode = errorCode.String
	record.ErrorMessage = errorMessage.String
	record.AdditionalData = map[string]interface{}{}
	if len(additionalData) > 0 {
		if err := json.Unmarshal(additionalData, &record.AdditionalData); err != nil {
			return nil, fmt.Errorf("decode additional data of record %d: %w", record.RecordID, err)
		}
	}
	return &record, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertRow appends one ledger row. Rows are never updated in place except through MergeUpdateLatest.
func (d Datasource) InsertRow(ctx context.Context, record *model.TransactionRecord) (*model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Inserting gateway transaction row")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", record.TransactionID), attribute.String("transaction.type", string(record.TransactionType)))

	if record.AdditionalData == nil {
		record.AdditionalData = map[string]interface{}{}
	}
	additionalData, err := json.Marshal(record.AdditionalData)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO paysync.gateway_transactions (
			tenant_id, account_id, payment_id, transaction_id, transaction_type, amount, currency,
			gateway_transaction_id, authorization_code, gateway_status, business_result,
			error_category, error_code, error_message, additional_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING record_id, created_at`,
		record.TenantID, record.AccountID, record.PaymentID, record.TransactionID, record.TransactionType,
		record.Amount, record.Currency, nullable(record.GatewayTransactionID), nullable(record.AuthorizationCode),
		nullable(record.GatewayStatus), nullable(string(record.BusinessResult)), nullable(string(record.ErrorCategory)),
		nullable(record.ErrorCode), nullable(record.ErrorMessage), additionalData,
	).Scan(&record.RecordID, &record.CreatedAt)
	if err != nil {
		span.RecordError(err)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "A row cannot carry both a business result and an error category", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert gateway transaction row", err)
	}
	return record, nil
}

func (d Datasource) findOne(ctx context.Context, notFound string, query string, args ...interface{}) (*model.TransactionRecord, error) {
	record, err := scanRecord(d.Conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, notFound, nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read gateway transaction row", err)
	}
	return record, nil
}

func (d Datasource) FindLatestRow(ctx context.Context, tenantID, transactionID string) (*model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Fetching latest row by transaction")
	defer span.End()

	return d.findOne(ctx, fmt.Sprintf("Transaction with ID '%s' not found", transactionID), `
		SELECT `+recordColumns+`
		FROM paysync.gateway_transactions
		WHERE tenant_id = $1 AND transaction_id = $2
		ORDER BY record_id DESC
		LIMIT 1`, tenantID, transactionID)
}

func (d Datasource) FindLatestRowByGatewayTransaction(ctx context.Context, tenantID, gatewayTransactionID string, txnType model.TransactionType) (*model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Fetching latest row by gateway transaction")
	defer span.End()

	return d.findOne(ctx, fmt.Sprintf("No transaction for gateway ID '%s'", gatewayTransactionID), `
		SELECT `+recordColumns+`
		FROM paysync.gateway_transactions
		WHERE tenant_id = $1 AND gateway_transaction_id = $2 AND ($3::text = '' OR transaction_type = $3::text)
		ORDER BY record_id DESC
		LIMIT 1`, tenantID, gatewayTransactionID, string(txnType))
}

func (d Datasource) FindSuccessfulAuthorization(ctx context.Context, tenantID, paymentID string) (*model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Fetching successful authorization")
	defer span.End()

	return d.findOne(ctx, fmt.Sprintf("No accepted authorization for payment '%s'", paymentID), `
		SELECT `+recordColumns+`
		FROM paysync.gateway_transactions
		WHERE tenant_id = $1 AND payment_id = $2
			AND transaction_type IN ('AUTHORIZE', 'PURCHASE')
			AND gateway_transaction_id IS NOT NULL
			AND business_result IN ('AUTHORISED', 'PENDING', 'RECEIVED')
		ORDER BY record_id DESC
		LIMIT 1`, tenantID, paymentID)
}

func (d Datasource) ListRowsByPayment(ctx context.Context, tenantID, paymentID string) ([]model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Listing rows by payment")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM paysync.gateway_transactions
		WHERE tenant_id = $1 AND payment_id = $2
		ORDER BY record_id ASC`, tenantID, paymentID)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list gateway transaction rows", err)
	}
	defer rows.Close()

	var records []model.TransactionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan gateway transaction row", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list gateway transaction rows", err)
	}
	return records, nil
}

// MergeUpdateLatest selects and patches the latest row in one statement.
// Setting a business result clears a stored error category.
func (d Datasource) MergeUpdateLatest(ctx context.Context, tenantID, transactionID string, update model.StatusUpdate, additionalData map[string]interface{}) error {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Merge updating latest row")
	defer span.End()

	if additionalData == nil {
		additionalData = map[string]interface{}{}
	}
	patch, err := json.Marshal(additionalData)
	if err != nil {
		return err
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE paysync.gateway_transactions
		SET additional_data = additional_data || $1::jsonb,
			gateway_status = COALESCE(NULLIF($2::text, ''), gateway_status),
			business_result = COALESCE(NULLIF($3::text, ''), business_result),
			error_category = CASE WHEN $3::text = '' THEN error_category ELSE NULL END
		WHERE record_id = (
			SELECT record_id FROM paysync.gateway_transactions
			WHERE tenant_id = $4 AND transaction_id = $5
			ORDER BY record_id DESC
			LIMIT 1
		)`, patch, update.GatewayStatus, string(update.BusinessResult), tenantID, transactionID)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update gateway transaction row", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update gateway transaction row", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", transactionID), nil)
	}
	return nil
}
