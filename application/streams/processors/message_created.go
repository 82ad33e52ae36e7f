package processors

import (
	"context"
	"fmt"
	"time"

	"chat-backend/application/ports"
	"chat-backend/application/streams"
	"chat-backend/domain/core/entities"
	"chat-backend/domain/events"

	"go.uber.org/zap"
)

// Side effect names of MessageCreatedProcessor.
const (
	EffectPublish = "publish"
	EffectIndex   = "search-index"
)

// MessageCreatedProcessor fans a new message out to the conversation members
// and hands it to the search index. Indexing is best effort: its failure is
// logged and dropped and never blocks delivery.
type MessageCreatedProcessor struct {
	streams.Selector
	messages    ports.MessageReader
	memberships ports.MembershipRepository
	decoder     ports.ImageDecoder
	publisher   ports.FanoutPublisher
	indexer     ports.MessageIndexer
	logger      *zap.Logger
}

// NewMessageCreatedProcessor creates a new MessageCreatedProcessor
func NewMessageCreatedProcessor(tableName string, messages ports.MessageReader, memberships ports.MembershipRepository, decoder ports.ImageDecoder, publisher ports.FanoutPublisher, indexer ports.MessageIndexer, logger *zap.Logger) *MessageCreatedProcessor {
	return &MessageCreatedProcessor{
		Selector: streams.NewSelector(tableName, streams.Route{
			EntityType: entities.EntityTypeMessage,
			EventName:  streams.EventInsert,
		}),
		messages:    messages,
		memberships: memberships,
		decoder:     decoder,
		publisher:   publisher,
		indexer:     indexer,
		logger:      logger,
	}
}

func (p *MessageCreatedProcessor) Name() string { return "message-created" }

// Process builds the message, then publishes and indexes it side by side.
func (p *MessageCreatedProcessor) Process(ctx context.Context, record streams.ChangeRecord) error {
	message, fanout, err := p.Build(ctx, record)
	if err != nil {
		return err
	}

	results := Settle(ctx,
		SideEffect{
			Name: EffectPublish,
			Run: func(ctx context.Context) error {
				return p.publisher.Publish(ctx, fanout)
			},
		},
		SideEffect{
			Name:       EffectIndex,
			BestEffort: true,
			Run: func(ctx context.Context) error {
				return p.indexer.IndexMessage(ctx, message)
			},
		},
	)

	for _, r := range results {
		if r.Failed() {
			p.logger.Error("Message side effect failed",
				zap.Error(r.Err),
				zap.String("effect", r.Name),
				zap.Bool("bestEffort", r.BestEffort),
				zap.String("conversationId", message.ConversationID),
				zap.String("messageId", message.ID),
			)
		}
	}
	return FirstRequiredFailure(results)
}

// Build loads the message and members and constructs the fan-out message.
func (p *MessageCreatedProcessor) Build(ctx context.Context, record streams.ChangeRecord) (entities.Message, events.FanoutMessage, error) {
	stub, err := p.decoder.DecodeMessage(record.NewImage)
	if err != nil {
		return entities.Message{}, events.FanoutMessage{}, fmt.Errorf("failed to decode message: %w", err)
	}

	lookups := fetchMessageContext(ctx, p.messages, p.memberships, stub.ConversationID, stub.ID)
	if lookups.messageErr != nil {
		p.logger.Error("Failed to get message",
			zap.Error(lookups.messageErr),
			zap.String("conversationId", stub.ConversationID),
			zap.String("messageId", stub.ID),
		)
		return entities.Message{}, events.FanoutMessage{}, lookups.messageErr
	}
	if lookups.memberErr != nil {
		p.logger.Error("Failed to list conversation members",
			zap.Error(lookups.memberErr),
			zap.String("conversationId", stub.ConversationID),
		)
		return entities.Message{}, events.FanoutMessage{}, lookups.memberErr
	}

	fanout, err := BuildMessageCreated(*lookups.message, lookups.memberIDs, record.ApproximateCreationTime)
	if err != nil {
		return entities.Message{}, events.FanoutMessage{}, err
	}
	return *lookups.message, fanout, nil
}

// BuildMessageCreated constructs the message-created fan-out addressed to
// every member of the conversation.
func BuildMessageCreated(message entities.Message, memberIDs []string, at time.Time) (events.FanoutMessage, error) {
	event := events.NewMessageCreated(message, memberIDs, at)
	return events.NewFanoutMessage(event, event.MemberIDs)
}
