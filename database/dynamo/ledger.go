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

package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/blnkfinance/paysync/database"
	"github.com/blnkfinance/paysync/internal/apierror"
	"github.com/blnkfinance/paysync/model"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	gatewayTransactionIndex = "gateway_transaction-index"
	paymentIndex            = "payment-index"
)

type ledgerItem struct {
	PK                   string                 `dynamodbav:"pk"`
	RecordID             int64                  `dynamodbav:"record_id"`
	GatewayKey           string                 `dynamodbav:"gateway_key,omitempty"`
	PaymentKey           string                 `dynamodbav:"payment_key"`
	TenantID             string                 `dynamodbav:"tenant_id"`
	AccountID            string                 `dynamodbav:"account_id"`
	PaymentID            string                 `dynamodbav:"payment_id"`
	TransactionID        string                 `dynamodbav:"transaction_id"`
	TransactionType      string                 `dynamodbav:"transaction_type"`
	Amount               string                 `dynamodbav:"amount"`
	Currency             string                 `dynamodbav:"currency"`
	GatewayTransactionID string                 `dynamodbav:"gateway_transaction_id,omitempty"`
	AuthorizationCode    string                 `dynamodbav:"authorization_code,omitempty"`
	GatewayStatus        string                 `dynamodbav:"gateway_status,omitempty"`
	BusinessResult       string                 `dynamodbav:"business_result,omitempty"`
	ErrorCategory        string                 `dynamodbav:"error_category,omitempty"`
	ErrorCode            string                 `dynamodbav:"error_code,omitempty"`
	ErrorMessage         string                 `dynamodbav:"error_message,omitempty"`
	AdditionalData       map[string]interface{} `dynamodbav:"additional_data"`
	CreatedAt            string                 `dynamodbav:"created_at"`
}

// Ledger implements database.LedgerStore on DynamoDB. Record ids are the
// insertion time in nanoseconds, which keeps them increasing per transaction.
type Ledger struct {
	api       API
	tableName string
	now       func() time.Time
}

var _ database.LedgerStore = (*Ledger)(nil)

func NewLedger(api API, tableName string) *Ledger {
	return &Ledger{api: api, tableName: tableName, now: time.Now}
}

func key(tenantID, id string) string {
	return tenantID + "#" + id
}

func toItem(record *model.TransactionRecord) ledgerItem {
	it := ledgerItem{
		PK:                   key(record.TenantID, record.TransactionID),
		RecordID:             record.RecordID,
		PaymentKey:           key(record.TenantID, record.PaymentID),
		TenantID:             record.TenantID,
		AccountID:            record.AccountID,
		PaymentID:            record.PaymentID,
		TransactionID:        record.TransactionID,
		TransactionType:      string(record.TransactionType),
		Amount:               record.Amount.String(),
		Currency:             record.Currency,
		GatewayTransactionID: record.GatewayTransactionID,
		AuthorizationCode:    record.AuthorizationCode,
		GatewayStatus:        record.GatewayStatus,
		BusinessResult:       string(record.BusinessResult),
		ErrorCategory:        string(record.ErrorCategory),
		ErrorCode:            record.ErrorCode,
		ErrorMessage:         record.ErrorMessage,
		AdditionalData:       record.AdditionalData,
		CreatedAt:            record.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if record.GatewayTransactionID != "" {
		it.GatewayKey = key(record.TenantID, record.GatewayTransactionID)
	}
	return it
}

func fromItem(raw map[string]types.AttributeValue) (*model.TransactionRecord, error) {
	var it ledgerItem
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(it.Amount)
	if err != nil {
		return nil, fmt.Errorf("decode amount of record %d: %w", it.RecordID, err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, it.CreatedAt)
	if it.AdditionalData == nil {
		it.AdditionalData = map[string]interface{}{}
	}
	return &model.TransactionRecord{
		RecordID:             it.RecordID,
		TenantID:             it.TenantID,
		AccountID:            it.AccountID,
		PaymentID:            it.PaymentID,
		TransactionID:        it.TransactionID,
		TransactionType:      model.TransactionType(it.TransactionType),
		Amount:               amount,
		Currency:             it.Currency,
		GatewayTransactionID: it.GatewayTransactionID,
		AuthorizationCode:    it.AuthorizationCode,
		GatewayStatus:        it.GatewayStatus,
		BusinessResult:       model.BusinessResult(it.BusinessResult),
		ErrorCategory:        model.ErrorCategory(it.ErrorCategory),
		ErrorCode:            it.ErrorCode,
		ErrorMessage:         it.ErrorMessage,
		AdditionalData:       it.AdditionalData,
		CreatedAt:            createdAt,
	}, nil
}

func (l *Ledger) InsertRow(ctx context.Context, record *model.TransactionRecord) (*model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Inserting gateway transaction item")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", record.TransactionID), attribute.String("transaction.type", string(record.TransactionType)))

	if record.BusinessResult != "" && record.ErrorCategory != "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "A row cannot carry both a business result and an error category", nil)
	}
	if record.AdditionalData == nil {
		record.AdditionalData = map[string]interface{}{}
	}
	now := l.now()
	record.RecordID = now.UnixNano()
	record.CreatedAt = now.UTC()

	av, err := attributevalue.MarshalMap(toItem(record))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	_, err = l.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "pk",
		},
	})
	if err != nil {
		span.RecordError(err)
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Record %d of transaction '%s' already exists", record.RecordID, record.TransactionID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert gateway transaction item", err)
	}
	return record, nil
}

func (l *Ledger) FindLatestRow(ctx context.Context, tenantID, transactionID string) (*model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Fetching latest gateway transaction item")
	defer span.End()

	return l.first(ctx, fmt.Sprintf("Transaction with ID '%s' not found", transactionID), &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: key(tenantID, transactionID)},
		},
		ScanIndexForward: aws.Bool(false),
		ConsistentRead:   aws.Bool(true),
		Limit:            aws.Int32(1),
	})
}

func (l *Ledger) FindLatestRowByGatewayTransaction(ctx context.Context, tenantID, gatewayTransactionID string, txnType model.TransactionType) (*model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Fetching gateway transaction item by gateway id")
	defer span.End()

	input := &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		IndexName:              aws.String(gatewayTransactionIndex),
		KeyConditionExpression: aws.String("gateway_key = :gk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":gk": &types.AttributeValueMemberS{Value: key(tenantID, gatewayTransactionID)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if txnType != "" {
		input.FilterExpression = aws.String("transaction_type = :tt")
		input.ExpressionAttributeValues[":tt"] = &types.AttributeValueMemberS{Value: string(txnType)}
	}
	return l.first(ctx, fmt.Sprintf("Gateway transaction '%s' not found", gatewayTransactionID), input)
}

func (l *Ledger) FindSuccessfulAuthorization(ctx context.Context, tenantID, paymentID string) (*model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Fetching successful authorization item")
	defer span.End()

	return l.first(ctx, fmt.Sprintf("No successful authorization for payment '%s'", paymentID), &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		IndexName:              aws.String(paymentIndex),
		KeyConditionExpression: aws.String("payment_key = :pk"),
		FilterExpression: aws.String("transaction_type IN (:auth, :purchase) AND attribute_exists(gateway_transaction_id) " +
			"AND business_result IN (:authorised, :pending, :received)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":         &types.AttributeValueMemberS{Value: key(tenantID, paymentID)},
			":auth":       &types.AttributeValueMemberS{Value: string(model.Authorize)},
			":purchase":   &types.AttributeValueMemberS{Value: string(model.Purchase)},
			":authorised": &types.AttributeValueMemberS{Value: string(model.Authorised)},
			":pending":    &types.AttributeValueMemberS{Value: string(model.Pending)},
			":received":   &types.AttributeValueMemberS{Value: string(model.Received)},
		},
		ScanIndexForward: aws.Bool(false),
	})
}

func (l *Ledger) ListRowsByPayment(ctx context.Context, tenantID, paymentID string) ([]model.TransactionRecord, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Listing gateway transaction items of payment")
	defer span.End()

	records, err := l.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		IndexName:              aws.String(paymentIndex),
		KeyConditionExpression: aws.String("payment_key = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: key(tenantID, paymentID)},
		},
		ScanIndexForward: aws.Bool(true),
	}, 0)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list gateway transaction items", err)
	}
	return records, nil
}

// MergeUpdateLatest reads the latest item and writes it back with the patch
// applied. There is no compare-and-swap between the two steps. Setting a
// business result clears a stored error category.
func (l *Ledger) MergeUpdateLatest(ctx context.Context, tenantID, transactionID string, update model.StatusUpdate, additionalData map[string]interface{}) error {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Merging into latest gateway transaction item")
	defer span.End()

	latest, err := l.FindLatestRow(ctx, tenantID, transactionID)
	if err != nil {
		return err
	}
	merged := make(map[string]interface{}, len(latest.AdditionalData)+len(additionalData))
	for k, v := range latest.AdditionalData {
		merged[k] = v
	}
	for k, v := range additionalData {
		merged[k] = v
	}
	av, err := attributevalue.Marshal(merged)
	if err != nil {
		return err
	}

	set := []string{"additional_data = :ad"}
	values := map[string]types.AttributeValue{":ad": av}
	if update.GatewayStatus != "" {
		set = append(set, "gateway_status = :gs")
		values[":gs"] = &types.AttributeValueMemberS{Value: update.GatewayStatus}
	}
	if update.BusinessResult != "" {
		set = append(set, "business_result = :br")
		values[":br"] = &types.AttributeValueMemberS{Value: string(update.BusinessResult)}
	}

	expression := "SET " + strings.Join(set, ", ")
	if update.BusinessResult != "" && latest.ErrorCategory != "" {
		expression += " REMOVE error_category"
	}

	_, err = l.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"pk":        &types.AttributeValueMemberS{Value: key(tenantID, transactionID)},
			"record_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(latest.RecordID, 10)},
		},
		UpdateExpression:          aws.String(expression),
		ConditionExpression:       aws.String("attribute_exists(pk)"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		span.RecordError(err)
		var missing *types.ConditionalCheckFailedException
		if errors.As(err, &missing) {
			return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", transactionID), nil)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update gateway transaction item", err)
	}
	return nil
}

func (l *Ledger) first(ctx context.Context, notFound string, input *dynamodb.QueryInput) (*model.TransactionRecord, error) {
	records, err := l.query(ctx, input, 1)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read gateway transaction item", err)
	}
	if len(records) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, notFound, nil)
	}
	return &records[0], nil
}

// query follows the pages of input until limit records are read, or all of them when limit is 0.
func (l *Ledger) query(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]model.TransactionRecord, error) {
	var records []model.TransactionRecord
	paginator := dynamodb.NewQueryPaginator(l.api, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range out.Items {
			record, err := fromItem(raw)
			if err != nil {
				return nil, err
			}
			records = append(records, *record)
			if limit > 0 && len(records) == limit {
				return records, nil
			}
		}
	}
	return records, nil
}
