package ports

import (
	"context"

	"chat-backend/domain/core/entities"
	"chat-backend/domain/core/valueobjects"
	"chat-backend/pkg/common"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ListByUserOptions selects which index ListByUserID reads.
type ListByUserOptions struct {
	// Type restricts the listing to one membership type, ordered by activity.
	Type valueobjects.MembershipType

	// SortByDueAt orders meetings soonest-due first. Only valid with Type=Meeting.
	SortByDueAt bool

	// MergedConversations lists groups and one-on-ones together, most recent
	// activity first. Type must be empty.
	MergedConversations bool
}

// MembershipRepository defines the interface for membership persistence.
// Not-found and already-exists conditions come back as typed errors from
// pkg/errors; anything else is an infrastructure failure.
type MembershipRepository interface {
	// Create stores a new membership; fails if one already exists for the pair.
	Create(ctx context.Context, membership *entities.Membership) error

	// Get retrieves the membership of userID in entityID
	Get(ctx context.Context, entityID, userID string) (*entities.Membership, error)

	// Update applies a partial update and returns the stored result.
	// Concurrent updates are last-writer-wins per attribute.
	Update(ctx context.Context, entityID, userID string, update entities.MembershipUpdate) (*entities.Membership, error)

	// IncrementUnreadMessages atomically adds one unseen message and bumps activity.
	IncrementUnreadMessages(ctx context.Context, entityID, userID string) error

	// ResetUnreadMessages zeroes the counter and marks the conversation viewed.
	ResetUnreadMessages(ctx context.Context, entityID, userID string) error

	// Delete removes a membership
	Delete(ctx context.Context, entityID, userID string) error

	// ListByEntityID lists the members of an entity ordered by user name
	ListByEntityID(ctx context.Context, entityID string, page common.PageRequest) (common.Page[entities.Membership], error)

	// ListByUserID lists a user's memberships using the index chosen by opts
	ListByUserID(ctx context.Context, userID string, opts ListByUserOptions, page common.PageRequest) (common.Page[entities.Membership], error)

	// ListMemberIDs returns every user id holding a membership in entityID
	ListMemberIDs(ctx context.Context, entityID string) ([]string, error)
}

// ListenerRepository is the connection directory.
type ListenerRepository interface {
	Save(ctx context.Context, listener entities.Listener) error
	Delete(ctx context.Context, transport, listenerID string) error
	GetByUserID(ctx context.Context, userID string) ([]entities.Listener, error)
}

// UserReader is the read side of the user service used for enrichment.
type UserReader interface {
	GetUser(ctx context.Context, userID string) (*entities.User, error)
}

// EntityReader resolves the snapshot of a membership target.
type EntityReader interface {
	GetEntity(ctx context.Context, entityID string) (*entities.Entity, error)
}

// MessageReader reads chat messages.
type MessageReader interface {
	GetMessage(ctx context.Context, conversationID, messageID string) (*entities.Message, error)
}

// Image is one before or after snapshot carried by a change record.
type Image map[string]types.AttributeValue

// ImageDecoder turns change record images into domain snapshots. It is owned
// by the persistence layer because it knows the stored item layout.
type ImageDecoder interface {
	DecodeMembership(image Image) (*entities.Membership, error)
	DecodeUser(image Image) (*entities.User, error)
	DecodeMessage(image Image) (*entities.Message, error)
}
