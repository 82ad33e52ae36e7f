// Package eventbridge publishes fan-out messages and search-index requests
// to an EventBridge bus. Each topic is a distinct detail type; subscribers
// are rules on the bus.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chat-backend/domain/events"
	pkgerrors "chat-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// EventBridgeAPI is the part of the EventBridge client the publishers use.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

var _ EventBridgeAPI = (*eventbridge.Client)(nil)

// Publisher implements ports.FanoutPublisher on EventBridge.
type Publisher struct {
	client       EventBridgeAPI
	eventBusName string
	source       string
	logger       *zap.Logger
}

// NewPublisher creates a new EventBridge fan-out publisher
func NewPublisher(client EventBridgeAPI, eventBusName, source string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		source:       source,
		logger:       logger,
	}
}

// Publish sends message as exactly one entry whose detail type is its topic.
func (p *Publisher) Publish(ctx context.Context, message events.FanoutMessage) error {
	detail, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", message.Topic, err)
	}

	if err := p.put(ctx, string(message.Topic), string(detail), message.OccurredAt); err != nil {
		return err
	}

	p.logger.Debug("Fan-out message published",
		zap.String("topic", string(message.Topic)),
		zap.Int("recipients", len(message.Recipients)),
		zap.String("eventBus", p.eventBusName),
	)
	return nil
}

func (p *Publisher) put(ctx context.Context, detailType, detail string, at time.Time) error {
	entry := types.PutEventsRequestEntry{
		EventBusName: aws.String(p.eventBusName),
		Source:       aws.String(p.source),
		DetailType:   aws.String(detailType),
		Detail:       aws.String(detail),
	}
	if !at.IsZero() {
		entry.Time = aws.Time(at)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return pkgerrors.NewExternalError("eventbridge", err).
			WithDetails(map[string]interface{}{"detailType": detailType})
	}

	if result.FailedEntryCount > 0 {
		var code, msg string
		if len(result.Entries) > 0 {
			code = aws.ToString(result.Entries[0].ErrorCode)
			msg = aws.ToString(result.Entries[0].ErrorMessage)
		}
		p.logger.Error("Failed to publish event",
			zap.String("detailType", detailType),
			zap.String("errorCode", code),
			zap.String("errorMessage", msg),
		)
		return pkgerrors.NewExternalError("eventbridge", fmt.Errorf("event %s rejected: %s %s", detailType, code, msg)).
			WithDetails(map[string]interface{}{"detailType": detailType, "errorCode": code})
	}
	return nil
}
