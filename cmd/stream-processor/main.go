// Package main implements the Lambda consuming the chat table's DynamoDB
// stream. Every record is offered to each registered change processor.
package main

import (
	"context"
	"log"

	"chat-backend/application/streams"
	"chat-backend/domain/core/valueobjects"
	"chat-backend/infrastructure/config"
	"chat-backend/infrastructure/di"
	"chat-backend/pkg/common"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"
)

// Global dependencies for Lambda performance optimization
var (
	dispatcher *streams.Dispatcher
	logger     *zap.Logger
)

func init() {
	if err := valueobjects.CheckPrefixCoverage(); err != nil {
		log.Fatalf("Membership type table is inconsistent: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	container, err := di.InitializeStreamContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize dependency container: %v", err)
	}

	dispatcher = container.Dispatcher
	logger = container.Logger
	logger.Info("Stream processor initialized", zap.String("table", cfg.TableName))
}

// handler reports partial batch failures so the records after a failure are
// redelivered in order.
func handler(ctx context.Context, event events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		ctx = common.WithRequestID(ctx, lc.AwsRequestID)
	}
	logger.Debug("Received stream batch", zap.Int("records", len(event.Records)))

	response, err := dispatcher.HandleBatch(ctx, event)
	if failed := len(response.BatchItemFailures); failed > 0 {
		logger.Warn("Stream batch partially failed",
			zap.Int("records", len(event.Records)),
			zap.Int("failed", failed),
		)
	}
	return response, err
}

func main() {
	defer logger.Sync()
	lambda.Start(handler)
}
