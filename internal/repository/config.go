package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"warehouse-wizard/internal/domain"
)

// LoadConfig reads the configuration slot.
func (c *Client) LoadConfig(ctx context.Context) (domain.Attributes, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(pkConfig, skConfig),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Attributes{}, fmt.Errorf("repository: LoadConfig get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Attributes{}, fmt.Errorf("repository: LoadConfig: %w", domain.ErrNoConfiguration)
	}

	doc, err := strAttr(out.Item, "document")
	if err != nil {
		return domain.Attributes{}, fmt.Errorf("repository: LoadConfig: %w", err)
	}
	var attrs domain.Attributes
	if err := json.Unmarshal([]byte(doc), &attrs); err != nil {
		return domain.Attributes{}, fmt.Errorf("repository: LoadConfig decode document: %w", err)
	}
	return attrs, nil
}

// SaveConfig replaces the configuration slot. The last write wins.
func (c *Client) SaveConfig(ctx context.Context, attrs domain.Attributes) error {
	doc, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("repository: SaveConfig encode document: %w", err)
	}

	item := key(pkConfig, skConfig)
	item["document"] = &types.AttributeValueMemberS{Value: string(doc)}
	item["updatedAt"] = timeValue(time.Now())

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: SaveConfig: %w", err)
	}
	return nil
}
