package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"warehouse-wizard/internal/domain"
)

// PutArtifact stores a rendered export. Items expire after exportTTL.
func (c *Client) PutArtifact(ctx context.Context, a domain.Artifact) error {
	if a.ID == "" {
		return errors.New("repository: PutArtifact: id is required")
	}
	item := key(exportPK(a.ID), skExport)
	item["fileName"] = &types.AttributeValueMemberS{Value: a.FileName}
	item["contentType"] = &types.AttributeValueMemberS{Value: a.ContentType}
	item["content"] = &types.AttributeValueMemberB{Value: a.Content}
	item["createdAt"] = timeValue(a.CreatedAt)
	item["ttl"] = numAttr(ttlValue(time.Now(), exportTTL))

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: PutArtifact: %w", err)
	}
	return nil
}

func (c *Client) GetArtifact(ctx context.Context, id string) (domain.Artifact, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       key(exportPK(id), skExport),
	})
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("repository: GetArtifact get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Artifact{}, fmt.Errorf("repository: GetArtifact %q: %w", id, domain.ErrArtifactNotFound)
	}

	content, ok := out.Item["content"].(*types.AttributeValueMemberB)
	if !ok {
		return domain.Artifact{}, errors.New("repository: GetArtifact: content is not binary")
	}
	fileName, err := strAttr(out.Item, "fileName")
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("repository: GetArtifact: %w", err)
	}
	contentType, err := strAttr(out.Item, "contentType")
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("repository: GetArtifact: %w", err)
	}
	created, err := timeAttr(out.Item, "createdAt")
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("repository: GetArtifact: %w", err)
	}
	return domain.Artifact{
		ID:          id,
		FileName:    fileName,
		ContentType: contentType,
		Content:     content.Value,
		CreatedAt:   created,
	}, nil
}
