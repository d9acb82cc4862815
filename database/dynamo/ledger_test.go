package dynamo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/blnkfinance/paysync/internal/apierror"
	"github.com/blnkfinance/paysync/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) PutItem(ctx context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*dynamodb.PutItemOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAPI) Query(ctx context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*dynamodb.QueryOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAPI) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*dynamodb.UpdateItemOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func codeOf(err error) apierror.ErrorCode {
	code, _ := apierror.CodeOf(err)
	return code
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestLedger() (*Ledger, *mockAPI) {
	api := new(mockAPI)
	l := NewLedger(api, "gateway_transactions")
	l.now = func() time.Time { return fixedNow }
	return l, api
}

func item(t *testing.T, record model.TransactionRecord) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(toItem(&record))
	require.NoError(t, err)
	return av
}

func authorizationRow() model.TransactionRecord {
	return model.TransactionRecord{
		RecordID:             fixedNow.UnixNano(),
		TenantID:             "tenant-1",
		AccountID:            "acc-1",
		PaymentID:            "pay-1",
		TransactionID:        "txn-1",
		TransactionType:      model.Authorize,
		Amount:               decimal.RequireFromString("10.50"),
		Currency:             "EUR",
		GatewayTransactionID: "000000123410000595980000100001",
		AuthorizationCode:    "726747",
		GatewayStatus:        "PENDING_APPROVAL",
		BusinessResult:       model.Pending,
		AdditionalData:       map[string]interface{}{"durationMs": "12"},
		CreatedAt:            fixedNow,
	}
}

func TestInsertRow(t *testing.T) {
	l, api := newTestLedger()
	record := authorizationRow()
	record.RecordID = 0

	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		var it ledgerItem
		if err := attributevalue.UnmarshalMap(in.Item, &it); err != nil {
			return false
		}
		return aws.ToString(in.TableName) == "gateway_transactions" &&
			aws.ToString(in.ConditionExpression) == "attribute_not_exists(#pk)" &&
			it.PK == "tenant-1#txn-1" &&
			it.GatewayKey == "tenant-1#000000123410000595980000100001" &&
			it.PaymentKey == "tenant-1#pay-1" &&
			it.Amount == "10.5"
	})).Return(&dynamodb.PutItemOutput{}, nil)

	stored, err := l.InsertRow(context.Background(), &record)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.UnixNano(), stored.RecordID)
	assert.Equal(t, fixedNow, stored.CreatedAt)
	api.AssertExpectations(t)
}

func TestInsertRow_WithoutGatewayTransaction(t *testing.T) {
	l, api := newTestLedger()
	record := authorizationRow()
	record.GatewayTransactionID = ""
	record.BusinessResult = ""
	record.ErrorCategory = model.RequestNotSent

	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		_, ok := in.Item["gateway_key"]
		return !ok
	})).Return(&dynamodb.PutItemOutput{}, nil)

	_, err := l.InsertRow(context.Background(), &record)
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestInsertRow_ResultAndCategory(t *testing.T) {
	l, api := newTestLedger()
	record := authorizationRow()
	record.ErrorCategory = model.UnknownFailure

	_, err := l.InsertRow(context.Background(), &record)
	assert.Equal(t, apierror.ErrInvalidInput, codeOf(err))
	api.AssertNotCalled(t, "PutItem", mock.Anything, mock.Anything)
}

func TestInsertRow_Conflict(t *testing.T) {
	l, api := newTestLedger()
	record := authorizationRow()

	api.On("PutItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")})

	_, err := l.InsertRow(context.Background(), &record)
	assert.Equal(t, apierror.ErrConflict, codeOf(err))
}

func TestFindLatestRow(t *testing.T) {
	l, api := newTestLedger()

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		pk, ok := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS)
		return ok && pk.Value == "tenant-1#txn-1" &&
			!aws.ToBool(in.ScanIndexForward) &&
			aws.ToInt32(in.Limit) == 1 &&
			in.IndexName == nil
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item(t, authorizationRow())}}, nil)

	record, err := l.FindLatestRow(context.Background(), "tenant-1", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "txn-1", record.TransactionID)
	assert.Equal(t, model.Pending, record.BusinessResult)
	assert.True(t, decimal.RequireFromString("10.50").Equal(record.Amount))
	assert.Equal(t, "12", record.AdditionalData["durationMs"])
	api.AssertExpectations(t)
}

func TestFindLatestRow_NotFound(t *testing.T) {
	l, api := newTestLedger()
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)

	_, err := l.FindLatestRow(context.Background(), "tenant-1", "missing")
	assert.True(t, apierror.IsNotFound(err))
}

func TestFindLatestRow_QueryFails(t *testing.T) {
	l, api := newTestLedger()
	api.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	_, err := l.FindLatestRow(context.Background(), "tenant-1", "txn-1")
	assert.Equal(t, apierror.ErrInternalServer, codeOf(err))
}

func TestFindLatestRowByGatewayTransaction(t *testing.T) {
	l, api := newTestLedger()
	refund := authorizationRow()
	refund.TransactionType = model.Refund

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		tt, ok := in.ExpressionAttributeValues[":tt"].(*types.AttributeValueMemberS)
		return aws.ToString(in.IndexName) == gatewayTransactionIndex &&
			aws.ToString(in.FilterExpression) == "transaction_type = :tt" &&
			ok && tt.Value == "REFUND"
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item(t, refund)}}, nil)

	record, err := l.FindLatestRowByGatewayTransaction(context.Background(), "tenant-1", "000000123410000595980000100001", model.Refund)
	require.NoError(t, err)
	assert.Equal(t, model.Refund, record.TransactionType)
	api.AssertExpectations(t)
}

func TestFindLatestRowByGatewayTransaction_AnyType(t *testing.T) {
	l, api := newTestLedger()

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		_, filtered := in.ExpressionAttributeValues[":tt"]
		return in.FilterExpression == nil && !filtered
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item(t, authorizationRow())}}, nil)

	_, err := l.FindLatestRowByGatewayTransaction(context.Background(), "tenant-1", "000000123410000595980000100001", "")
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestFindSuccessfulAuthorization(t *testing.T) {
	l, api := newTestLedger()

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToString(in.IndexName) == paymentIndex && in.FilterExpression != nil
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item(t, authorizationRow())}}, nil)

	record, err := l.FindSuccessfulAuthorization(context.Background(), "tenant-1", "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "726747", record.AuthorizationCode)
}

func TestFindSuccessfulAuthorization_NotFound(t *testing.T) {
	l, api := newTestLedger()
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{}}, nil)

	_, err := l.FindSuccessfulAuthorization(context.Background(), "tenant-1", "pay-1")
	assert.True(t, apierror.IsNotFound(err))
}

func TestListRowsByPayment(t *testing.T) {
	l, api := newTestLedger()
	capture := authorizationRow()
	capture.TransactionID = "txn-2"
	capture.TransactionType = model.Capture

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToBool(in.ScanIndexForward) && in.Limit == nil
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		item(t, authorizationRow()), item(t, capture),
	}}, nil)

	records, err := l.ListRowsByPayment(context.Background(), "tenant-1", "pay-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.Authorize, records[0].TransactionType)
	assert.Equal(t, model.Capture, records[1].TransactionType)
}

func TestMergeUpdateLatest(t *testing.T) {
	l, api := newTestLedger()
	row := authorizationRow()

	api.On("Query", mock.Anything, mock.Anything).
		Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item(t, row)}}, nil)
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		var data map[string]interface{}
		if err := attributevalue.Unmarshal(in.ExpressionAttributeValues[":ad"], &data); err != nil {
			return false
		}
		sk, ok := in.Key["record_id"].(*types.AttributeValueMemberN)
		return ok && sk.Value == "1714564800000000000" &&
			aws.ToString(in.UpdateExpression) == "SET additional_data = :ad, gateway_status = :gs, business_result = :br" &&
			data["durationMs"] == "12" &&
			data["notificationStatusCode"] == "CAPTURED"
	})).Return(&dynamodb.UpdateItemOutput{}, nil)

	err := l.MergeUpdateLatest(context.Background(), "tenant-1", "txn-1",
		model.StatusUpdate{GatewayStatus: "CAPTURED", BusinessResult: model.Authorised},
		map[string]interface{}{"notificationStatusCode": "CAPTURED"})
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestMergeUpdateLatest_OnlyAdditionalData(t *testing.T) {
	l, api := newTestLedger()

	api.On("Query", mock.Anything, mock.Anything).
		Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item(t, authorizationRow())}}, nil)
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		_, hasStatus := in.ExpressionAttributeValues[":gs"]
		return aws.ToString(in.UpdateExpression) == "SET additional_data = :ad" && !hasStatus
	})).Return(&dynamodb.UpdateItemOutput{}, nil)

	err := l.MergeUpdateLatest(context.Background(), "tenant-1", "txn-1", model.StatusUpdate{}, map[string]interface{}{"note": "x"})
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestMergeUpdateLatest_FailureRow(t *testing.T) {
	l, api := newTestLedger()
	row := authorizationRow()
	row.BusinessResult = ""
	row.ErrorCategory = model.ResponseNotReceived

	api.On("Query", mock.Anything, mock.Anything).
		Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item(t, row)}}, nil)
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		br, ok := in.ExpressionAttributeValues[":br"].(*types.AttributeValueMemberS)
		return ok && br.Value == "AUTHORISED" &&
			aws.ToString(in.UpdateExpression) == "SET additional_data = :ad, business_result = :br REMOVE error_category"
	})).Return(&dynamodb.UpdateItemOutput{}, nil)

	err := l.MergeUpdateLatest(context.Background(), "tenant-1", "txn-1",
		model.StatusUpdate{BusinessResult: model.Authorised}, nil)
	require.NoError(t, err)
	api.AssertExpectations(t)
}

// memoryAPI keeps a single item and applies the additional_data and
// business_result parts of UpdateItem to it.
type memoryAPI struct {
	item ledgerItem
}

func (m *memoryAPI) PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return &dynamodb.PutItemOutput{}, nil
}

func (m *memoryAPI) Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	av, err := attributevalue.MarshalMap(m.item)
	if err != nil {
		return nil, err
	}
	return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{av}}, nil
}

func (m *memoryAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	var data map[string]interface{}
	if err := attributevalue.Unmarshal(in.ExpressionAttributeValues[":ad"], &data); err != nil {
		return nil, err
	}
	m.item.AdditionalData = data
	if br, ok := in.ExpressionAttributeValues[":br"].(*types.AttributeValueMemberS); ok {
		m.item.BusinessResult = br.Value
	}
	if strings.Contains(aws.ToString(in.UpdateExpression), "REMOVE error_category") {
		m.item.ErrorCategory = ""
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func TestMergeUpdateLatest_Accumulates(t *testing.T) {
	row := authorizationRow()
	row.AdditionalData = map[string]interface{}{}
	api := &memoryAPI{item: toItem(&row)}
	l := NewLedger(api, "gateway_transactions")
	ctx := context.Background()

	require.NoError(t, l.MergeUpdateLatest(ctx, "tenant-1", "txn-1", model.StatusUpdate{}, map[string]interface{}{"x": "1"}))
	require.NoError(t, l.MergeUpdateLatest(ctx, "tenant-1", "txn-1", model.StatusUpdate{}, map[string]interface{}{"y": "2"}))

	record, err := l.FindLatestRow(ctx, "tenant-1", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "1", record.AdditionalData["x"])
	assert.Equal(t, "2", record.AdditionalData["y"])
}

func TestMergeUpdateLatest_ClearsCategory(t *testing.T) {
	row := authorizationRow()
	row.BusinessResult = ""
	row.ErrorCategory = model.ResponseNotReceived
	api := &memoryAPI{item: toItem(&row)}
	l := NewLedger(api, "gateway_transactions")
	ctx := context.Background()

	require.NoError(t, l.MergeUpdateLatest(ctx, "tenant-1", "txn-1", model.StatusUpdate{BusinessResult: model.Authorised}, nil))

	record, err := l.FindLatestRow(ctx, "tenant-1", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.Authorised, record.BusinessResult)
	assert.Empty(t, record.ErrorCategory)
}

func TestMergeUpdateLatest_NotFound(t *testing.T) {
	l, api := newTestLedger()
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)

	err := l.MergeUpdateLatest(context.Background(), "tenant-1", "missing", model.StatusUpdate{}, nil)
	assert.True(t, apierror.IsNotFound(err))
}
