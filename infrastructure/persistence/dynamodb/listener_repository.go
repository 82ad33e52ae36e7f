package dynamodb

import (
	"context"
	"fmt"
	"time"

	"chat-backend/application/ports"
	"chat-backend/domain/core/entities"
	pkgerrors "chat-backend/pkg/errors"
	"chat-backend/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// listenerItem represents one live connection in the connections table
type listenerItem struct {
	PK          string `dynamodbav:"pk"`
	SK          string `dynamodbav:"sk"`
	GSI1PK      string `dynamodbav:"gsi1pk"`
	GSI1SK      string `dynamodbav:"gsi1sk"`
	UserID      string `dynamodbav:"userId"`
	Transport   string `dynamodbav:"transport"`
	ListenerID  string `dynamodbav:"listenerId"`
	ConnectedAt string `dynamodbav:"connectedAt"`
	TTL         int64  `dynamodbav:"ttl"`
}

// ListenerRepository is the connection directory, kept in its own table so
// connection churn never reaches the main table's stream.
type ListenerRepository struct {
	client    DynamoDBAPI
	tableName string
	indexName string
	ttl       time.Duration
	logger    *zap.Logger
}

var _ ports.ListenerRepository = (*ListenerRepository)(nil)

// NewListenerRepository creates a new ListenerRepository
func NewListenerRepository(client DynamoDBAPI, tableName, indexName string, ttl time.Duration, logger *zap.Logger) *ListenerRepository {
	return &ListenerRepository{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		ttl:       ttl,
		logger:    logger,
	}
}

// Save records a live listener. Entries expire through the table TTL in case
// the disconnect event is never delivered.
func (r *ListenerRepository) Save(ctx context.Context, listener entities.Listener) error {
	pk, sk := ListenerKey(listener.Transport, listener.ListenerID)
	gsi1pk, gsi1sk := ListenerUserKey(listener.UserID, listener.Transport, listener.ListenerID)

	item, err := attributevalue.MarshalMap(listenerItem{
		PK:          pk,
		SK:          sk,
		GSI1PK:      gsi1pk,
		GSI1SK:      gsi1sk,
		UserID:      listener.UserID,
		Transport:   listener.Transport,
		ListenerID:  listener.ListenerID,
		ConnectedAt: utils.FormatTimestamp(listener.ConnectedAt),
		TTL:         listener.ConnectedAt.Add(r.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal listener: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		r.logger.Error("Failed to store listener",
			zap.Error(err),
			zap.String("userId", listener.UserID),
			zap.String("listenerId", listener.ListenerID),
		)
		return pkgerrors.NewDatabaseError("PutItem listener", err)
	}
	return nil
}

// Delete removes a listener. Deleting an unknown listener is not an error.
func (r *ListenerRepository) Delete(ctx context.Context, transport, listenerID string) error {
	pk, sk := ListenerKey(transport, listenerID)
	if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       tableKey(pk, sk),
	}); err != nil {
		r.logger.Error("Failed to delete listener",
			zap.Error(err),
			zap.String("listenerId", listenerID),
		)
		return pkgerrors.NewDatabaseError("DeleteItem listener", err)
	}
	return nil
}

// GetByUserID returns every live listener of a user, across all pages.
func (r *ListenerRepository) GetByUserID(ctx context.Context, userID string) ([]entities.Listener, error) {
	gsi1pk, _ := ListenerUserKey(userID, "", "")
	keyCond := expression.Key(attrGSI1PK).Equal(expression.Value(gsi1pk)).
		And(expression.KeyBeginsWith(expression.Key(attrGSI1SK), listenerKeyPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build listener query: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var listeners []entities.Listener
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			r.logger.Error("Failed to query listeners",
				zap.Error(err),
				zap.String("userId", userID),
			)
			return nil, pkgerrors.NewDatabaseError("Query listeners", err)
		}

		for _, raw := range page.Items {
			var item listenerItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Error("Failed to decode listener item",
					zap.Error(err),
					zap.String("userId", userID),
					zap.String("pk", keyAttr(raw, attrPK)),
				)
				return nil, fmt.Errorf("failed to decode listener %s: %w", keyAttr(raw, attrPK), err)
			}
			connectedAt, err := utils.ParseTimestamp(item.ConnectedAt)
			if err != nil {
				r.logger.Error("Invalid listener connectedAt",
					zap.Error(err),
					zap.String("userId", userID),
					zap.String("listenerId", item.ListenerID),
				)
				return nil, fmt.Errorf("failed to decode listener %s: %w", item.PK, err)
			}
			listeners = append(listeners, entities.Listener{
				UserID:      item.UserID,
				Transport:   item.Transport,
				ListenerID:  item.ListenerID,
				ConnectedAt: connectedAt,
			})
		}
	}
	return listeners, nil
}
