package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"repair-agent/internal/domain"
)

const (
	pkPrefixRequest = "REQ#"
	pkPrefixUser    = "USER#"
	skRequestMeta   = "META"
	skUserProfile   = "PROFILE"
	phoneIndexName  = "phone-index"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Client wraps a single DynamoDB table holding repair requests
// (PK=REQ#<id>) and reporter profiles (PK=USER#<uid>). Phone lookups go
// through the phone-index GSI.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// newRequestID generates a server-side request id: date-prefixed and short
// enough to read back over the phone. Swappable for deterministic tests.
var newRequestID = func() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "RQ" + time.Now().UTC().Format("060102") + "-" + suffix
}

func requestPK(id string) string { return pkPrefixRequest + id }
func userPK(uid string) string   { return pkPrefixUser + uid }

// CreateRequest persists a new request, assigning its id when empty, and
// returns the stored record. The conditional put guards against the
// (unlikely) id collision.
func (c *Client) CreateRequest(ctx context.Context, req domain.RepairRequest) (domain.RepairRequest, error) {
	if req.ID == "" {
		req.ID = newRequestID()
	}
	if req.Status == "" {
		req.Status = domain.StatusPending
	}
	if req.DateReported.IsZero() {
		req.DateReported = time.Now().UTC()
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                requestItem(req),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return domain.RepairRequest{}, fmt.Errorf("repository: CreateRequest: %w", err)
	}
	return req, nil
}

// GetRequest fetches a request by id. The bool result is false when the id
// is unknown.
func (c *Client) GetRequest(ctx context.Context, id string) (domain.RepairRequest, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: requestPK(id)},
			"SK": &types.AttributeValueMemberS{Value: skRequestMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.RepairRequest{}, false, fmt.Errorf("repository: GetRequest: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.RepairRequest{}, false, nil
	}
	req, err := itemToRequest(out.Item)
	if err != nil {
		return domain.RepairRequest{}, false, fmt.Errorf("repository: GetRequest decode: %w", err)
	}
	return req, true, nil
}

// FindRequestsByPhone queries the phone GSI, newest first.
func (c *Client) FindRequestsByPhone(ctx context.Context, phone string) ([]domain.RepairRequest, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(phoneIndexName),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "PHONE#" + phone},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: FindRequestsByPhone: %w", err)
	}

	reqs := make([]domain.RepairRequest, 0, len(out.Items))
	for _, item := range out.Items {
		req, err := itemToRequest(item)
		if err != nil {
			return nil, fmt.Errorf("repository: FindRequestsByPhone decode: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// UpdateRequestStatus applies a status update and returns the updated
// record. The bool result is false when the id no longer exists.
func (c *Client) UpdateRequestStatus(ctx context.Context, id string, upd domain.StatusUpdate) (domain.RepairRequest, bool, error) {
	set := []string{"#status = :status"}
	names := map[string]string{"#status": "status"}
	values := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: string(upd.NewStatus)},
	}
	if upd.TechnicianNotes != "" {
		set = append(set, "technicianNotes = :notes")
		values[":notes"] = &types.AttributeValueMemberS{Value: upd.TechnicianNotes}
	}
	if upd.ApprovedBy != "" {
		set = append(set, "approvedBy = :approvedBy", "approvalTime = :approvalTime")
		values[":approvedBy"] = &types.AttributeValueMemberS{Value: upd.ApprovedBy}
		values[":approvalTime"] = &types.AttributeValueMemberS{Value: upd.ApprovalTime.UTC().Format(time.RFC3339)}
		if upd.ApprovalDisplay != "" {
			set = append(set, "approvalDisplay = :approvalDisplay")
			values[":approvalDisplay"] = &types.AttributeValueMemberS{Value: upd.ApprovalDisplay}
		}
		if upd.SignatureRef != "" {
			set = append(set, "signatureRef = :signatureRef")
			values[":signatureRef"] = &types.AttributeValueMemberS{Value: upd.SignatureRef}
		}
	}

	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: requestPK(id)},
			"SK": &types.AttributeValueMemberS{Value: skRequestMeta},
		},
		ConditionExpression:       aws.String("attribute_exists(PK)"),
		UpdateExpression:          aws.String("SET " + strings.Join(set, ", ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.RepairRequest{}, false, nil
		}
		return domain.RepairRequest{}, false, fmt.Errorf("repository: UpdateRequestStatus: %w", err)
	}
	req, err := itemToRequest(out.Attributes)
	if err != nil {
		return domain.RepairRequest{}, false, fmt.Errorf("repository: UpdateRequestStatus decode: %w", err)
	}
	return req, true, nil
}

// ListRequests scans all request records, for the dashboard summary. The
// table holds one record per report plus one per profile; a filtered scan
// is acceptable at municipal scale.
func (c *Client) ListRequests(ctx context.Context) ([]domain.RepairRequest, error) {
	var reqs []domain.RepairRequest
	var startKey map[string]types.AttributeValue
	for {
		out, err := c.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(c.tableName),
			FilterExpression: aws.String("begins_with(PK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: pkPrefixRequest},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: ListRequests: %w", err)
		}
		for _, item := range out.Items {
			req, err := itemToRequest(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListRequests decode: %w", err)
			}
			reqs = append(reqs, req)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return reqs, nil
}

// GetProfile fetches a reporter profile. The bool result is false when the
// user has never confirmed one.
func (c *Client) GetProfile(ctx context.Context, userID string) (domain.UserProfile, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skUserProfile},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("repository: GetProfile: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.UserProfile{}, false, nil
	}
	p, err := itemToProfile(out.Item)
	if err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("repository: GetProfile decode: %w", err)
	}
	return p, true, nil
}

// PutProfile writes or replaces a reporter profile.
func (c *Client) PutProfile(ctx context.Context, profile domain.UserProfile) error {
	if profile.UserID == "" {
		return errors.New("repository: PutProfile: user id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      profileItem(profile),
	})
	if err != nil {
		return fmt.Errorf("repository: PutProfile: %w", err)
	}
	return nil
}

func requestItem(req domain.RepairRequest) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: requestPK(req.ID)},
		"SK":           &types.AttributeValueMemberS{Value: skRequestMeta},
		"requestId":    &types.AttributeValueMemberS{Value: req.ID},
		"reporterId":   &types.AttributeValueMemberS{Value: req.ReporterID},
		"reporterName": &types.AttributeValueMemberS{Value: req.ReporterName},
		"phone":        &types.AttributeValueMemberS{Value: req.Phone},
		"address":      &types.AttributeValueMemberS{Value: req.Address},
		"poleId":       &types.AttributeValueMemberS{Value: req.PoleID},
		"latitude":     &types.AttributeValueMemberS{Value: req.Latitude},
		"longitude":    &types.AttributeValueMemberS{Value: req.Longitude},
		"problem":      &types.AttributeValueMemberS{Value: req.Problem},
		"photoRef":     &types.AttributeValueMemberS{Value: req.PhotoRef},
		"status":       &types.AttributeValueMemberS{Value: string(req.Status)},
		"dateReported": &types.AttributeValueMemberS{Value: req.DateReported.UTC().Format(time.RFC3339)},
	}
	if req.Phone != "" {
		item["gsi1pk"] = &types.AttributeValueMemberS{Value: "PHONE#" + req.Phone}
		item["gsi1sk"] = &types.AttributeValueMemberS{Value: req.DateReported.UTC().Format(time.RFC3339)}
	}
	return item
}

func profileItem(p domain.UserProfile) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: userPK(p.UserID)},
		"SK":          &types.AttributeValueMemberS{Value: skUserProfile},
		"userId":      &types.AttributeValueMemberS{Value: p.UserID},
		"fullName":    &types.AttributeValueMemberS{Value: p.FullName},
		"phone":       &types.AttributeValueMemberS{Value: p.Phone},
		"address":     &types.AttributeValueMemberS{Value: p.Address},
		"confirmedAt": &types.AttributeValueMemberS{Value: p.ConfirmedAt.UTC().Format(time.RFC3339)},
	}
}

func itemToRequest(item map[string]types.AttributeValue) (domain.RepairRequest, error) {
	id, err := strAttr(item, "requestId")
	if err != nil {
		return domain.RepairRequest{}, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.RepairRequest{}, err
	}

	req := domain.RepairRequest{
		ID:              id,
		Status:          domain.Status(status),
		ReporterID:      optStrAttr(item, "reporterId"),
		ReporterName:    optStrAttr(item, "reporterName"),
		Phone:           optStrAttr(item, "phone"),
		Address:         optStrAttr(item, "address"),
		PoleID:          optStrAttr(item, "poleId"),
		Latitude:        optStrAttr(item, "latitude"),
		Longitude:       optStrAttr(item, "longitude"),
		Problem:         optStrAttr(item, "problem"),
		PhotoRef:        optStrAttr(item, "photoRef"),
		TechnicianNotes: optStrAttr(item, "technicianNotes"),
		ApprovedBy:      optStrAttr(item, "approvedBy"),
		ApprovalDisplay: optStrAttr(item, "approvalDisplay"),
		SignatureRef:    optStrAttr(item, "signatureRef"),
	}
	if v := optStrAttr(item, "approvalTime"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			req.ApprovalTime = ts
		}
	}
	if v := optStrAttr(item, "dateReported"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			req.DateReported = ts
		}
	}
	return req, nil
}

func itemToProfile(item map[string]types.AttributeValue) (domain.UserProfile, error) {
	uid, err := strAttr(item, "userId")
	if err != nil {
		return domain.UserProfile{}, err
	}
	p := domain.UserProfile{
		UserID:   uid,
		FullName: optStrAttr(item, "fullName"),
		Phone:    optStrAttr(item, "phone"),
		Address:  optStrAttr(item, "address"),
	}
	if v := optStrAttr(item, "confirmedAt"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			p.ConfirmedAt = ts
		}
	}
	return p, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func optStrAttr(item map[string]types.AttributeValue, key string) string {
	s, _ := item[key].(*types.AttributeValueMemberS)
	if s == nil {
		return ""
	}
	return s.Value
}
