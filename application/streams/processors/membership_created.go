package processors

import (
	"context"
	"fmt"

	"chat-backend/application/ports"
	"chat-backend/application/streams"
	"chat-backend/domain/core/entities"
	pkgerrors "chat-backend/pkg/errors"

	"go.uber.org/zap"
)

// MembershipCreatedProcessor backfills the denormalized user name on a new
// membership, which moves the row from id order to name order in the
// members-of-entity index.
type MembershipCreatedProcessor struct {
	streams.Selector
	memberships ports.MembershipRepository
	users       ports.UserReader
	decoder     ports.ImageDecoder
	logger      *zap.Logger
}

// NewMembershipCreatedProcessor creates a new MembershipCreatedProcessor
func NewMembershipCreatedProcessor(tableName string, memberships ports.MembershipRepository, users ports.UserReader, decoder ports.ImageDecoder, logger *zap.Logger) *MembershipCreatedProcessor {
	return &MembershipCreatedProcessor{
		Selector: streams.NewSelector(tableName, streams.Route{
			EntityType: entities.EntityTypeMembership,
			EventName:  streams.EventInsert,
		}),
		memberships: memberships,
		users:       users,
		decoder:     decoder,
		logger:      logger,
	}
}

func (p *MembershipCreatedProcessor) Name() string { return "membership-created" }

// Process derives the display name and writes it onto the membership.
func (p *MembershipCreatedProcessor) Process(ctx context.Context, record streams.ChangeRecord) error {
	m, err := p.decoder.DecodeMembership(record.NewImage)
	if err != nil {
		return fmt.Errorf("failed to decode membership: %w", err)
	}

	user, err := p.users.GetUser(ctx, m.UserID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			p.logger.Warn("User of new membership not found, skipping name backfill",
				zap.String("entityId", m.EntityID),
				zap.String("userId", m.UserID),
			)
			return nil
		}
		p.logger.Error("Failed to get user for membership",
			zap.Error(err),
			zap.String("entityId", m.EntityID),
			zap.String("userId", m.UserID),
		)
		return err
	}

	name := user.DisplayName()
	if name == "" || name == m.UserName {
		return nil
	}

	if _, err := p.memberships.Update(ctx, m.EntityID, m.UserID, entities.MembershipUpdate{UserName: &name}); err != nil {
		if pkgerrors.IsNotFound(err) {
			// Removed before the backfill ran.
			return nil
		}
		p.logger.Error("Failed to backfill membership user name",
			zap.Error(err),
			zap.String("entityId", m.EntityID),
			zap.String("userId", m.UserID),
		)
		return err
	}

	p.logger.Debug("Backfilled membership user name",
		zap.String("entityId", m.EntityID),
		zap.String("userId", m.UserID),
	)
	return nil
}
