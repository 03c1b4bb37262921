package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"repair-agent/internal/domain"
)

type fakeDynamo struct {
	getOut        *dynamodb.GetItemOutput
	getErr        error
	putErr        error
	queryOut      *dynamodb.QueryOutput
	queryErr      error
	updateOut     *dynamodb.UpdateItemOutput
	updateErr     error
	scanOuts      []*dynamodb.ScanOutput
	scanErr       error
	scanCalls     int
	lastGetInput  *dynamodb.GetItemInput
	lastPutInput  *dynamodb.PutItemInput
	lastQueryIn   *dynamodb.QueryInput
	lastUpdateIn  *dynamodb.UpdateItemInput
	lastScanInput *dynamodb.ScanInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdateIn = in
	return f.updateOut, f.updateErr
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.lastScanInput = in
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	out := f.scanOuts[f.scanCalls]
	f.scanCalls++
	return out, nil
}

func makeRequestItem(id, phone, status string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: pkPrefixRequest + id},
		"SK":           &types.AttributeValueMemberS{Value: skRequestMeta},
		"requestId":    &types.AttributeValueMemberS{Value: id},
		"reporterId":   &types.AttributeValueMemberS{Value: "u1"},
		"reporterName": &types.AttributeValueMemberS{Value: "สมชาย ใจดี"},
		"phone":        &types.AttributeValueMemberS{Value: phone},
		"problem":      &types.AttributeValueMemberS{Value: "ไฟดับ"},
		"status":       &types.AttributeValueMemberS{Value: status},
		"dateReported": &types.AttributeValueMemberS{Value: "2026-08-29T02:00:00Z"},
	}
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, "  ")
	require.Error(t, err)
}

func TestNewRequestID_Shape(t *testing.T) {
	id := newRequestID()
	require.True(t, strings.HasPrefix(id, "RQ"))
	require.Len(t, id, 15)
	require.Equal(t, byte('-'), id[8])
	require.Equal(t, strings.ToUpper(id), id)
}

func TestCreateRequest_AssignsIDAndDefaults(t *testing.T) {
	orig := newRequestID
	newRequestID = func() string { return "RQ260829-A1B2C3" }
	defer func() { newRequestID = orig }()

	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	created, err := c.CreateRequest(context.Background(), domain.RepairRequest{
		ReporterID: "u1",
		Phone:      "0812345678",
		Problem:    "ไฟดับ",
	})
	require.NoError(t, err)
	require.Equal(t, "RQ260829-A1B2C3", created.ID)
	require.Equal(t, domain.StatusPending, created.Status)
	require.False(t, created.DateReported.IsZero())

	require.NotNil(t, db.lastPutInput)
	require.Equal(t, "attribute_not_exists(PK)", *db.lastPutInput.ConditionExpression)
	pk := db.lastPutInput.Item["PK"].(*types.AttributeValueMemberS)
	require.Equal(t, "REQ#RQ260829-A1B2C3", pk.Value)
	gsi := db.lastPutInput.Item["gsi1pk"].(*types.AttributeValueMemberS)
	require.Equal(t, "PHONE#0812345678", gsi.Value)
}

func TestCreateRequest_NoPhoneSkipsIndexKeys(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	_, err := c.CreateRequest(context.Background(), domain.RepairRequest{ReporterID: "u1", Problem: "ไฟดับ"})
	require.NoError(t, err)
	require.NotContains(t, db.lastPutInput.Item, "gsi1pk")
	require.NotContains(t, db.lastPutInput.Item, "gsi1sk")
}

func TestGetRequest_HappyPath(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeRequestItem("RQ1", "0812345678", string(domain.StatusPending))}}
	c := mustNewClient(t, db)

	req, ok, err := c.GetRequest(context.Background(), "RQ1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "RQ1", req.ID)
	require.Equal(t, domain.StatusPending, req.Status)
	require.Equal(t, time.Date(2026, 8, 29, 2, 0, 0, 0, time.UTC), req.DateReported)

	key := db.lastGetInput.Key["PK"].(*types.AttributeValueMemberS)
	require.Equal(t, "REQ#RQ1", key.Value)
}

func TestGetRequest_NotFound(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewClient(t, db)

	_, ok, err := c.GetRequest(context.Background(), "RQ-missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetRequest_Error(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("boom")}
	c := mustNewClient(t, db)

	_, _, err := c.GetRequest(context.Background(), "RQ1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "GetRequest")
}

func TestFindRequestsByPhone_QueriesIndexNewestFirst(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		makeRequestItem("RQ2", "0812345678", string(domain.StatusInProgress)),
		makeRequestItem("RQ1", "0812345678", string(domain.StatusCompleted)),
	}}}
	c := mustNewClient(t, db)

	reqs, err := c.FindRequestsByPhone(context.Background(), "0812345678")
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	require.Equal(t, "RQ2", reqs[0].ID)

	require.Equal(t, phoneIndexName, *db.lastQueryIn.IndexName)
	require.False(t, *db.lastQueryIn.ScanIndexForward)
	pk := db.lastQueryIn.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS)
	require.Equal(t, "PHONE#0812345678", pk.Value)
}

func TestUpdateRequestStatus_BuildsExpressionForApproval(t *testing.T) {
	item := makeRequestItem("RQ1", "0812345678", string(domain.StatusApprovedAwaitingTec))
	db := &fakeDynamo{updateOut: &dynamodb.UpdateItemOutput{Attributes: item}}
	c := mustNewClient(t, db)

	approvalTime := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	updated, ok, err := c.UpdateRequestStatus(context.Background(), "RQ1", domain.StatusUpdate{
		NewStatus:    domain.StatusApprovedAwaitingTec,
		ApprovedBy:   "exec-1",
		ApprovalTime: approvalTime,
		SignatureRef: "s3://signatures/exec-1.png",
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.StatusApprovedAwaitingTec, updated.Status)

	expr := *db.lastUpdateIn.UpdateExpression
	require.Contains(t, expr, "#status = :status")
	require.Contains(t, expr, "approvedBy = :approvedBy")
	require.Contains(t, expr, "approvalTime = :approvalTime")
	require.Contains(t, expr, "signatureRef = :signatureRef")
	require.NotContains(t, expr, "approvalDisplay")
	require.Equal(t, "attribute_exists(PK)", *db.lastUpdateIn.ConditionExpression)
	require.Equal(t, "status", db.lastUpdateIn.ExpressionAttributeNames["#status"])

	ts := db.lastUpdateIn.ExpressionAttributeValues[":approvalTime"].(*types.AttributeValueMemberS)
	require.Equal(t, "2026-08-29T10:30:00Z", ts.Value)
}

func TestUpdateRequestStatus_PlainStatusOmitsApprovalFields(t *testing.T) {
	item := makeRequestItem("RQ1", "0812345678", string(domain.StatusInProgress))
	db := &fakeDynamo{updateOut: &dynamodb.UpdateItemOutput{Attributes: item}}
	c := mustNewClient(t, db)

	_, _, err := c.UpdateRequestStatus(context.Background(), "RQ1", domain.StatusUpdate{
		NewStatus:       domain.StatusInProgress,
		TechnicianNotes: "เริ่มงานแล้ว",
	})
	require.NoError(t, err)

	expr := *db.lastUpdateIn.UpdateExpression
	require.Contains(t, expr, "technicianNotes = :notes")
	require.NotContains(t, expr, "approvedBy")
}

func TestUpdateRequestStatus_MissingRecordIsNotFoundNotError(t *testing.T) {
	db := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	c := mustNewClient(t, db)

	_, ok, err := c.UpdateRequestStatus(context.Background(), "RQ-missing", domain.StatusUpdate{NewStatus: domain.StatusInProgress})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListRequests_FollowsPagination(t *testing.T) {
	db := &fakeDynamo{scanOuts: []*dynamodb.ScanOutput{
		{
			Items:            []map[string]types.AttributeValue{makeRequestItem("RQ1", "", string(domain.StatusPending))},
			LastEvaluatedKey: map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: "REQ#RQ1"}},
		},
		{
			Items: []map[string]types.AttributeValue{makeRequestItem("RQ2", "", string(domain.StatusCompleted))},
		},
	}}
	c := mustNewClient(t, db)

	reqs, err := c.ListRequests(context.Background())
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	require.Equal(t, 2, db.scanCalls)
	require.Contains(t, *db.lastScanInput.FilterExpression, "begins_with(PK, :prefix)")
}

func TestProfileRoundTripMapping(t *testing.T) {
	confirmed := time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)
	profile := domain.UserProfile{
		UserID:      "u1",
		FullName:    "สมชาย ใจดี",
		Phone:       "0812345678",
		Address:     "หมู่ 4",
		ConfirmedAt: confirmed,
	}

	item := profileItem(profile)
	got, err := itemToProfile(item)
	require.NoError(t, err)
	require.Equal(t, profile, got)
}

func TestGetProfile_NotFound(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewClient(t, db)

	_, ok, err := c.GetProfile(context.Background(), "u-unknown")
	require.NoError(t, err)
	require.False(t, ok)
	key := db.lastGetInput.Key["PK"].(*types.AttributeValueMemberS)
	require.Equal(t, "USER#u-unknown", key.Value)
}

func TestPutProfile_RequiresUserID(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	err := c.PutProfile(context.Background(), domain.UserProfile{FullName: "สมชาย"})
	require.Error(t, err)
}
