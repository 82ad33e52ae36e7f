package dynamodb

import (
	"context"
	"fmt"

	"chat-backend/application/ports"
	"chat-backend/domain/core/entities"
	pkgerrors "chat-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// EntityReaders serves the read-only lookups change processors use to
// enrich fan-out payloads: users, membership targets and messages.
type EntityReaders struct {
	client    DynamoDBAPI
	tableName string
	codec     *ItemCodec
	logger    *zap.Logger
}

var (
	_ ports.UserReader    = (*EntityReaders)(nil)
	_ ports.EntityReader  = (*EntityReaders)(nil)
	_ ports.MessageReader = (*EntityReaders)(nil)
)

// NewEntityReaders creates a new EntityReaders
func NewEntityReaders(client DynamoDBAPI, tableName string, logger *zap.Logger) *EntityReaders {
	return &EntityReaders{
		client:    client,
		tableName: tableName,
		codec:     NewItemCodec(),
		logger:    logger,
	}
}

// GetUser retrieves a user by ID
func (r *EntityReaders) GetUser(ctx context.Context, userID string) (*entities.User, error) {
	pk, sk := UserKey(userID)
	item, err := r.getItem(ctx, "user", pk, sk)
	if err != nil {
		return nil, err
	}
	return r.codec.DecodeUser(item)
}

// GetEntity retrieves the organization, team, group, meeting or one-on-one
// identified by entityID.
func (r *EntityReaders) GetEntity(ctx context.Context, entityID string) (*entities.Entity, error) {
	pk, sk := EntityKey(entityID)
	item, err := r.getItem(ctx, "entity", pk, sk)
	if err != nil {
		return nil, err
	}
	return r.codec.DecodeEntity(item)
}

// GetMessage retrieves a message of a conversation
func (r *EntityReaders) GetMessage(ctx context.Context, conversationID, messageID string) (*entities.Message, error) {
	pk, sk := MessageKey(conversationID, messageID)
	item, err := r.getItem(ctx, "message", pk, sk)
	if err != nil {
		return nil, err
	}
	return r.codec.DecodeMessage(item)
}

func (r *EntityReaders) getItem(ctx context.Context, resource, pk, sk string) (map[string]types.AttributeValue, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       tableKey(pk, sk),
	})
	if err != nil {
		r.logger.Error("Failed to get item",
			zap.Error(err),
			zap.String("resource", resource),
			zap.String("pk", pk),
			zap.String("sk", sk),
		)
		return nil, fmt.Errorf("failed to get %s: %w", resource, err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError(resource)
	}
	return result.Item, nil
}
