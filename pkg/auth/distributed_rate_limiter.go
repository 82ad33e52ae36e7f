package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// UpdateItemAPI is the part of the DynamoDB client the limiter uses.
type UpdateItemAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DistributedRateLimiter counts attempts per key in fixed windows stored in
// DynamoDB, so the limit holds across concurrent Lambda instances.
type DistributedRateLimiter struct {
	client    UpdateItemAPI
	tableName string
	limit     int
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

// NewDistributedRateLimiter creates a generic distributed rate limiter
func NewDistributedRateLimiter(client UpdateItemAPI, tableName string, limit int, window time.Duration, keyPrefix string) *DistributedRateLimiter {
	return &DistributedRateLimiter{
		client:    client,
		tableName: tableName,
		limit:     limit,
		window:    window,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

// NewConnectRateLimiter limits WebSocket connection attempts per user.
func NewConnectRateLimiter(client UpdateItemAPI, tableName string, connectsPerMinute int) *DistributedRateLimiter {
	return NewDistributedRateLimiter(client, tableName, connectsPerMinute, time.Minute, "Connect")
}

// WithClock replaces the time source.
func (r *DistributedRateLimiter) WithClock(now func() time.Time) *DistributedRateLimiter {
	r.now = now
	return r
}

// Allow counts one attempt for key and reports whether it is within the
// limit. Storage errors fail open: the attempt is allowed and the error is
// returned for logging.
func (r *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil || r.limit <= 0 {
		return true, nil
	}

	windowStart := r.now().UTC().Truncate(r.window)
	windowEnd := windowStart.Add(r.window)

	count := expression.Name("count")
	update := expression.
		Add(count, expression.Value(1)).
		Set(expression.Name("ttl"), expression.Value(windowEnd.Add(time.Hour).Unix()))
	cond := expression.AttributeNotExists(count).Or(count.LessThan(expression.Value(r.limit)))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return true, fmt.Errorf("failed to build rate limit expression: %w", err)
	}

	pk := fmt.Sprintf("RateLimit#%s#%s#%d", r.keyPrefix, key, windowStart.Unix())
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: "RateLimit"},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return true, fmt.Errorf("rate limiter error (failing open): %w", err)
	}
	return true, nil
}

// Limit returns the configured limit as a string, for response headers.
func (r *DistributedRateLimiter) Limit() string {
	return strconv.Itoa(r.limit)
}
