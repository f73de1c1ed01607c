package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"warehouse-wizard/internal/domain"
)

// maxTransactItems is the DynamoDB limit on items per TransactWriteItems call.
const maxTransactItems = 100

// GetSession loads the session metadata and its full message history.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(sessionPK(sessionID), skMeta),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, fmt.Errorf("repository: GetSession %q: %w", sessionID, domain.ErrSessionNotFound)
	}

	s, err := itemToSession(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: GetSession decode meta: %w", err)
	}
	s.ID = sessionID

	msgs, err := c.queryMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.Messages = msgs
	return s, nil
}

func (c *Client) queryMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	var msgs []domain.Message
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: GetSession query messages: %w", err)
		}
		for _, item := range out.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("repository: GetSession unmarshal message: %w", err)
			}
			msgs = append(msgs, msg)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return msgs, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// SaveSession writes messages from index fromMessage onwards together with the
// session metadata in one transaction. The write only succeeds when the
// stored version still equals s.Version; on success s.Version is incremented.
func (c *Client) SaveSession(ctx context.Context, s *domain.Session, fromMessage int) error {
	if s == nil || s.ID == "" {
		return errors.New("repository: SaveSession: session id is required")
	}
	if fromMessage < 0 || fromMessage > len(s.Messages) {
		return fmt.Errorf("repository: SaveSession: message index %d out of range", fromMessage)
	}
	pending := s.Messages[fromMessage:]
	if len(pending)+1 > maxTransactItems {
		return fmt.Errorf("repository: SaveSession: %d messages exceed a single transaction", len(pending))
	}

	now := time.Now().UTC()
	meta, err := sessionItem(s, s.Version+1, now)
	if err != nil {
		return fmt.Errorf("repository: SaveSession: %w", err)
	}

	metaPut := &types.Put{
		TableName: aws.String(c.tableName),
		Item:      meta,
	}
	if s.Version == 0 {
		metaPut.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		metaPut.ConditionExpression = aws.String("version = :expected")
		metaPut.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": numAttr(int64(s.Version)),
		}
	}

	items := []types.TransactWriteItem{{Put: metaPut}}
	for i, msg := range pending {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(c.tableName),
				Item:                messageItem(s.ID, fromMessage+i, msg, now),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			},
		})
	}

	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("repository: SaveSession %q: %w", s.ID, domain.ErrVersionConflict)
		}
		return fmt.Errorf("repository: SaveSession: %w", err)
	}
	s.Version++
	return nil
}

func isConditionFailure(err error) bool {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return false
	}
	for _, r := range canceled.CancellationReasons {
		if aws.ToString(r.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func sessionItem(s *domain.Session, version int, now time.Time) (map[string]types.AttributeValue, error) {
	attrs, err := json.Marshal(s.Attributes)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	item := key(sessionPK(s.ID), skMeta)
	item["sessionId"] = &types.AttributeValueMemberS{Value: s.ID}
	item["state"] = &types.AttributeValueMemberS{Value: string(s.State)}
	item["attributes"] = &types.AttributeValueMemberS{Value: string(attrs)}
	item["notified"] = &types.AttributeValueMemberBOOL{Value: s.Notified}
	item["version"] = numAttr(int64(version))
	item["createdAt"] = timeValue(s.CreatedAt)
	item["updatedAt"] = timeValue(s.UpdatedAt)
	item["ttl"] = numAttr(ttlValue(now, sessionTTL))
	return item, nil
}

func itemToSession(item map[string]types.AttributeValue) (*domain.Session, error) {
	state, err := strAttr(item, "state")
	if err != nil {
		return nil, err
	}
	version, err := intAttr(item, "version")
	if err != nil {
		return nil, err
	}
	raw, err := strAttr(item, "attributes")
	if err != nil {
		return nil, err
	}
	var attrs domain.Attributes
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Errorf("repository: decode attributes: %w", err)
	}
	created, err := timeAttr(item, "createdAt")
	if err != nil {
		return nil, err
	}
	updated, err := timeAttr(item, "updatedAt")
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		Attributes: attrs,
		State:      domain.SessionState(state),
		Notified:   boolAttr(item, "notified"),
		Version:    version,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}, nil
}

func messageItem(sessionID string, index int, msg domain.Message, now time.Time) map[string]types.AttributeValue {
	item := key(sessionPK(sessionID), msgSK(index))
	item["id"] = &types.AttributeValueMemberS{Value: msg.ID}
	item["origin"] = &types.AttributeValueMemberS{Value: string(msg.Origin)}
	item["text"] = &types.AttributeValueMemberS{Value: msg.Text}
	item["createdAt"] = timeValue(msg.CreatedAt)
	item["ttl"] = numAttr(ttlValue(now, sessionTTL))
	return item
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Message{}, err
	}
	origin, err := strAttr(item, "origin")
	if err != nil {
		return domain.Message{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Message{}, err
	}
	created, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:        id,
		Origin:    domain.Origin(origin),
		Text:      text,
		CreatedAt: created,
	}, nil
}
