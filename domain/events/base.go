package events

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"chat-backend/domain/core/entities"
	"chat-backend/domain/core/valueobjects"
)

// DomainEvent is the base interface for every fan-out payload.
// Events represent something that has happened in the past.
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregateId"`
	EventType   string    `json:"eventType"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// Topic names one logical fan-out channel. Each domain event type has its own.
type Topic string

const (
	TopicUserAddedToOrganization     Topic = "UserAddedToOrganization"
	TopicUserAddedToTeam             Topic = "UserAddedToTeam"
	TopicUserAddedToGroup            Topic = "UserAddedToGroup"
	TopicUserAddedToMeeting          Topic = "UserAddedToMeeting"
	TopicUserAddedToOneOnOne         Topic = "UserAddedToOneOnOne"
	TopicUserRemovedFromOrganization Topic = "UserRemovedFromOrganization"
	TopicUserRemovedFromTeam         Topic = "UserRemovedFromTeam"
	TopicUserRemovedFromGroup        Topic = "UserRemovedFromGroup"
	TopicUserRemovedFromMeeting      Topic = "UserRemovedFromMeeting"
	TopicUserRemovedFromOneOnOne     Topic = "UserRemovedFromOneOnOne"
	TopicMessageCreated              Topic = "MessageCreated"
)

// MessageIndexRequestedType is the detail type consumed by the search indexer.
// It is not a fan-out topic: it carries no recipients.
const MessageIndexRequestedType = "MessageIndexRequested"

// UserAddedTopic returns the topic announcing a new member of an entity of type t.
func UserAddedTopic(t valueobjects.MembershipType) Topic {
	return Topic("UserAddedTo" + t.String())
}

// UserRemovedTopic returns the topic announcing a member leaving an entity of type t.
func UserRemovedTopic(t valueobjects.MembershipType) Topic {
	return Topic("UserRemovedFrom" + t.String())
}

// Membership events

// UserAddedToEntity is raised when a membership row is inserted.
type UserAddedToEntity struct {
	BaseEvent
	EntityType valueobjects.MembershipType `json:"entityType"`
	User       entities.User               `json:"user"`
	Entity     entities.Entity             `json:"entity"`
	Membership entities.Membership         `json:"membership"`
	MemberIDs  []string                    `json:"memberIds"`
}

// NewUserAddedToEntity creates a UserAddedToEntity event
func NewUserAddedToEntity(membership entities.Membership, user entities.User, entity entities.Entity, memberIDs []string, timestamp time.Time) UserAddedToEntity {
	return UserAddedToEntity{
		BaseEvent: BaseEvent{
			AggregateID: membership.EntityID,
			EventType:   string(UserAddedTopic(membership.Type)),
			Timestamp:   timestamp,
		},
		EntityType: membership.Type,
		User:       user,
		Entity:     entity,
		Membership: membership,
		MemberIDs:  normalizeRecipients(memberIDs),
	}
}

// UserRemovedFromEntity is raised when a membership row is deleted.
type UserRemovedFromEntity struct {
	BaseEvent
	EntityType valueobjects.MembershipType `json:"entityType"`
	User       entities.User               `json:"user"`
	Entity     entities.Entity             `json:"entity"`
	Membership entities.Membership         `json:"membership"`
	MemberIDs  []string                    `json:"memberIds"`
}

// NewUserRemovedFromEntity creates a UserRemovedFromEntity event
func NewUserRemovedFromEntity(membership entities.Membership, user entities.User, entity entities.Entity, memberIDs []string, timestamp time.Time) UserRemovedFromEntity {
	return UserRemovedFromEntity{
		BaseEvent: BaseEvent{
			AggregateID: membership.EntityID,
			EventType:   string(UserRemovedTopic(membership.Type)),
			Timestamp:   timestamp,
		},
		EntityType: membership.Type,
		User:       user,
		Entity:     entity,
		Membership: membership,
		MemberIDs:  normalizeRecipients(memberIDs),
	}
}

// Message events

// MessageCreated is raised when a message row is inserted.
type MessageCreated struct {
	BaseEvent
	Message   entities.Message `json:"message"`
	MemberIDs []string         `json:"memberIds"`
}

// NewMessageCreated creates a MessageCreated event
func NewMessageCreated(message entities.Message, memberIDs []string, timestamp time.Time) MessageCreated {
	return MessageCreated{
		BaseEvent: BaseEvent{
			AggregateID: message.ConversationID,
			EventType:   string(TopicMessageCreated),
			Timestamp:   timestamp,
		},
		Message:   message,
		MemberIDs: normalizeRecipients(memberIDs),
	}
}

// MessageIndexRequested asks the search indexer to index one message.
type MessageIndexRequested struct {
	BaseEvent
	Message entities.Message `json:"message"`
}

// NewMessageIndexRequested creates a MessageIndexRequested event stamped
// with the message's own creation time.
func NewMessageIndexRequested(message entities.Message) MessageIndexRequested {
	return MessageIndexRequested{
		BaseEvent: BaseEvent{
			AggregateID: message.ConversationID,
			EventType:   MessageIndexRequestedType,
			Timestamp:   message.CreatedAt.UTC(),
		},
		Message: message,
	}
}

// FanoutMessage is the envelope published to a topic. It is immutable once
// published; Recipients addresses the users whose live connections get it.
type FanoutMessage struct {
	Topic      Topic           `json:"topic"`
	Recipients []string        `json:"recipients"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// NewFanoutMessage wraps event for delivery to recipients. The result depends
// only on its inputs, so rebuilding it from the same event is byte-identical.
func NewFanoutMessage(event DomainEvent, recipients []string) (FanoutMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return FanoutMessage{}, fmt.Errorf("failed to marshal %s payload: %w", event.GetEventType(), err)
	}
	return FanoutMessage{
		Topic:      Topic(event.GetEventType()),
		Recipients: normalizeRecipients(recipients),
		OccurredAt: event.GetTimestamp().UTC(),
		Payload:    payload,
	}, nil
}

// normalizeRecipients sorts and de-duplicates ids.
func normalizeRecipients(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
