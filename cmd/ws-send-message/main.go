// Package main implements the fan-out subscriber Lambda. EventBridge routes
// every published topic here; the handler pushes the payload to each live
// connection of every recipient.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"chat-backend/application/services"
	"chat-backend/domain/events"
	"chat-backend/infrastructure/config"
	"chat-backend/infrastructure/di"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

// Deliverer pushes a fan-out message to its recipients.
type Deliverer interface {
	Deliver(ctx context.Context, message events.FanoutMessage) (services.DeliveryReport, error)
}

// SendHandler handles EventBridge fan-out events.
type SendHandler struct {
	delivery Deliverer
	logger   *zap.Logger
}

// Handle decodes the event detail and delivers it. Individual push failures
// are logged and counted but never retried, so only a malformed event or a
// directory lookup failure is returned.
func (h *SendHandler) Handle(ctx context.Context, event lambdaevents.CloudWatchEvent) error {
	var message events.FanoutMessage
	if err := json.Unmarshal(event.Detail, &message); err != nil {
		h.logger.Error("Malformed fan-out event",
			zap.Error(err),
			zap.String("eventId", event.ID),
			zap.String("detailType", event.DetailType),
		)
		return fmt.Errorf("failed to decode %s detail: %w", event.DetailType, err)
	}
	if message.Topic == "" {
		message.Topic = events.Topic(event.DetailType)
	}

	report, err := h.delivery.Deliver(ctx, message)
	if err != nil {
		h.logger.Error("Fan-out delivery incomplete",
			zap.Error(err),
			zap.String("topic", string(message.Topic)),
			zap.Int("delivered", report.Delivered),
			zap.Int("failed", report.Failed),
		)
		return err
	}
	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	container, err := di.InitializeDeliveryContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize dependency container: %v", err)
	}
	defer container.Logger.Sync()

	h := &SendHandler{delivery: container.Delivery, logger: container.Logger}
	lambda.Start(h.Handle)
}
