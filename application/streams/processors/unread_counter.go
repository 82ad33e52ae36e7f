package processors

import (
	"context"
	"errors"
	"fmt"

	"chat-backend/application/ports"
	"chat-backend/application/streams"
	"chat-backend/domain/core/entities"
	pkgerrors "chat-backend/pkg/errors"

	"go.uber.org/zap"
)

// UnreadCounterProcessor bumps the unseen message counter of every member of
// a conversation except the sender.
type UnreadCounterProcessor struct {
	streams.Selector
	memberships ports.MembershipRepository
	decoder     ports.ImageDecoder
	logger      *zap.Logger
}

// NewUnreadCounterProcessor creates a new UnreadCounterProcessor
func NewUnreadCounterProcessor(tableName string, memberships ports.MembershipRepository, decoder ports.ImageDecoder, logger *zap.Logger) *UnreadCounterProcessor {
	return &UnreadCounterProcessor{
		Selector: streams.NewSelector(tableName, streams.Route{
			EntityType: entities.EntityTypeMessage,
			EventName:  streams.EventInsert,
		}),
		memberships: memberships,
		decoder:     decoder,
		logger:      logger,
	}
}

func (p *UnreadCounterProcessor) Name() string { return "message-unread-counter" }

// Process increments each recipient's counter. Members who left in the
// meantime are skipped; any other failure is returned after every member
// has been attempted.
func (p *UnreadCounterProcessor) Process(ctx context.Context, record streams.ChangeRecord) error {
	message, err := p.decoder.DecodeMessage(record.NewImage)
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}

	memberIDs, err := p.memberships.ListMemberIDs(ctx, message.ConversationID)
	if err != nil {
		p.logger.Error("Failed to list conversation members",
			zap.Error(err),
			zap.String("conversationId", message.ConversationID),
		)
		return err
	}

	var errs []error
	for _, userID := range memberIDs {
		if userID == message.SenderID {
			continue
		}
		err := p.memberships.IncrementUnreadMessages(ctx, message.ConversationID, userID)
		if err != nil && !pkgerrors.IsNotFound(err) {
			p.logger.Error("Failed to increment unread messages",
				zap.Error(err),
				zap.String("conversationId", message.ConversationID),
				zap.String("userId", userID),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
