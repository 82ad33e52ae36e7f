package processors

import (
	"context"
	"fmt"
	"time"

	"chat-backend/application/ports"
	"chat-backend/application/streams"
	"chat-backend/domain/core/entities"
	"chat-backend/domain/core/valueobjects"
	"chat-backend/domain/events"
	pkgerrors "chat-backend/pkg/errors"

	"go.uber.org/zap"
)

// MembershipFanoutProcessor announces a user joining or leaving one type of
// entity to the entity's members.
type MembershipFanoutProcessor struct {
	streams.Selector
	name        string
	removal     bool
	memberships ports.MembershipRepository
	users       ports.UserReader
	entities    ports.EntityReader
	decoder     ports.ImageDecoder
	publisher   ports.FanoutPublisher
	logger      *zap.Logger
}

// NewUserAddedProcessor reacts to memberships of type t being inserted.
func NewUserAddedProcessor(t valueobjects.MembershipType, tableName string, memberships ports.MembershipRepository, users ports.UserReader, entityReader ports.EntityReader, decoder ports.ImageDecoder, publisher ports.FanoutPublisher, logger *zap.Logger) *MembershipFanoutProcessor {
	return &MembershipFanoutProcessor{
		Selector: streams.NewSelector(tableName, streams.Route{
			EntityType: entities.EntityTypeMembership,
			EventName:  streams.EventInsert,
			Subtype:    t.String(),
		}),
		name:        "user-added-to-" + typeSlug(t),
		memberships: memberships,
		users:       users,
		entities:    entityReader,
		decoder:     decoder,
		publisher:   publisher,
		logger:      logger,
	}
}

// NewUserRemovedProcessor reacts to memberships of type t being deleted.
func NewUserRemovedProcessor(t valueobjects.MembershipType, tableName string, memberships ports.MembershipRepository, users ports.UserReader, entityReader ports.EntityReader, decoder ports.ImageDecoder, publisher ports.FanoutPublisher, logger *zap.Logger) *MembershipFanoutProcessor {
	return &MembershipFanoutProcessor{
		Selector: streams.NewSelector(tableName, streams.Route{
			EntityType: entities.EntityTypeMembership,
			EventName:  streams.EventRemove,
			Subtype:    t.String(),
		}),
		name:        "user-removed-from-" + typeSlug(t),
		removal:     true,
		memberships: memberships,
		users:       users,
		entities:    entityReader,
		decoder:     decoder,
		publisher:   publisher,
		logger:      logger,
	}
}

func (p *MembershipFanoutProcessor) Name() string { return p.name }

// Process enriches the membership and publishes one fan-out message.
func (p *MembershipFanoutProcessor) Process(ctx context.Context, record streams.ChangeRecord) error {
	message, err := p.Build(ctx, record)
	if err != nil {
		return err
	}

	if err := p.publisher.Publish(ctx, message); err != nil {
		p.logger.Error("Failed to publish membership event",
			zap.Error(err),
			zap.String("processor", p.name),
			zap.String("topic", string(message.Topic)),
			zap.String("eventId", record.EventID),
		)
		return err
	}
	return nil
}

// Build performs the lookups and constructs the fan-out message without
// publishing it. Rebuilding from the same record and the same lookup results
// yields an identical message.
func (p *MembershipFanoutProcessor) Build(ctx context.Context, record streams.ChangeRecord) (events.FanoutMessage, error) {
	m, err := p.decoder.DecodeMembership(record.Image())
	if err != nil {
		return events.FanoutMessage{}, fmt.Errorf("failed to decode membership: %w", err)
	}

	lookups := fetchMembershipContext(ctx, p.memberships, p.users, p.entities, m)
	if lookups.memberErr != nil {
		p.logFetchError("members", lookups.memberErr, m)
		return events.FanoutMessage{}, lookups.memberErr
	}

	user, entity := lookups.user, lookups.entity
	if lookups.userErr != nil {
		// A removal may race the user's own deletion.
		if !p.removal || !pkgerrors.IsNotFound(lookups.userErr) {
			p.logFetchError("user", lookups.userErr, m)
			return events.FanoutMessage{}, lookups.userErr
		}
		user = &entities.User{ID: m.UserID}
	}
	if lookups.entityErr != nil {
		// Deleting an entity removes its memberships after it.
		if !p.removal || !pkgerrors.IsNotFound(lookups.entityErr) {
			p.logFetchError("entity", lookups.entityErr, m)
			return events.FanoutMessage{}, lookups.entityErr
		}
		entity = &entities.Entity{ID: m.EntityID, Type: m.Type}
	}

	if p.removal {
		return BuildUserRemoved(*m, *user, *entity, lookups.memberIDs, record.ApproximateCreationTime)
	}
	return BuildUserAdded(*m, *user, *entity, lookups.memberIDs, record.ApproximateCreationTime)
}

func (p *MembershipFanoutProcessor) logFetchError(what string, err error, m *entities.Membership) {
	p.logger.Error("Failed to fetch "+what+" for membership event",
		zap.Error(err),
		zap.String("processor", p.name),
		zap.String("entityId", m.EntityID),
		zap.String("userId", m.UserID),
	)
}

// BuildUserAdded constructs the user-added message addressed to every member.
func BuildUserAdded(m entities.Membership, user entities.User, entity entities.Entity, memberIDs []string, at time.Time) (events.FanoutMessage, error) {
	event := events.NewUserAddedToEntity(m, user, entity, memberIDs, at)
	return events.NewFanoutMessage(event, event.MemberIDs)
}

// BuildUserRemoved constructs the user-removed message. The removed user is
// no longer a member but is still addressed so their own clients update.
func BuildUserRemoved(m entities.Membership, user entities.User, entity entities.Entity, memberIDs []string, at time.Time) (events.FanoutMessage, error) {
	event := events.NewUserRemovedFromEntity(m, user, entity, memberIDs, at)
	recipients := append(append([]string{}, event.MemberIDs...), m.UserID)
	return events.NewFanoutMessage(event, recipients)
}
