package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// profileRecord is the DynamoDB item layout. The profile itself is stored
// as a JSON string so the item schema does not track Profile changes.
type profileRecord struct {
	ContactID string `dynamodbav:"contactId"`
	Version   int64  `dynamodbav:"version"`
	Step      string `dynamodbav:"step"`
	Language  string `dynamodbav:"language,omitempty"`
	Phone     string `dynamodbav:"phone,omitempty"`
	Profile   string `dynamodbav:"profile"`
	UpdatedAt string `dynamodbav:"updatedAt"`
	ExpiresAt int64  `dynamodbav:"expiresAt,omitempty"`
}

// DynamoProfileStore persists profiles to a DynamoDB table keyed by
// contactId, using condition expressions for compare-and-set.
type DynamoProfileStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	logger    *logging.Logger
}

var _ ProfileStore = (*DynamoProfileStore)(nil)

// NewDynamoProfileStore builds a store backed by the provided DynamoDB client.
func NewDynamoProfileStore(client dynamoAPI, tableName string, ttl time.Duration, logger *logging.Logger) *DynamoProfileStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoProfileStore{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		logger:    logger,
	}
}

func (s *DynamoProfileStore) Get(ctx context.Context, contactID string) (*Profile, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(contactID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to load profile: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrProfileNotFound
	}

	var record profileRecord
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return nil, fmt.Errorf("conversation: failed to unmarshal profile item: %w", err)
	}
	profile, err := decodeProfile([]byte(record.Profile))
	if err != nil {
		return nil, err
	}
	profile.Version = record.Version
	return profile, nil
}

func (s *DynamoProfileStore) Upsert(ctx context.Context, profile *Profile) error {
	if err := validateForWrite(profile); err != nil {
		return err
	}
	next := profile.Clone()
	next.Version = profile.Version + 1
	raw, err := encodeProfile(&next)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	record := profileRecord{
		ContactID: next.ContactID,
		Version:   next.Version,
		Step:      string(next.Step),
		Language:  string(next.Language),
		Phone:     next.Phone,
		Profile:   string(raw),
		UpdatedAt: now.Format(time.RFC3339Nano),
	}
	if s.ttl > 0 {
		record.ExpiresAt = now.Add(s.ttl).Unix()
	}
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal profile item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}
	if profile.Version == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(contactId)")
	} else {
		input.ConditionExpression = aws.String("#version = :expected")
		input.ExpressionAttributeNames = map[string]string{"#version": "version"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(profile.Version, 10)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			s.logger.Debug("profile version conflict", "contact_id", profile.ContactID, "expected_version", profile.Version)
			return ErrVersionConflict
		}
		return fmt.Errorf("conversation: failed to persist profile: %w", err)
	}
	profile.Version = next.Version
	return nil
}

func (s *DynamoProfileStore) Delete(ctx context.Context, contactID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(contactID),
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to delete profile: %w", err)
	}
	return nil
}

func (s *DynamoProfileStore) key(contactID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"contactId": &types.AttributeValueMemberS{Value: contactID},
	}
}
