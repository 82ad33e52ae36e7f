package entities

import (
	"time"

	"chat-backend/domain/core/valueobjects"
)

// Role is the privilege a user holds inside the target entity.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// Membership links a user to an organization, team, group, meeting or
// one-on-one conversation. Exactly one exists per (UserID, EntityID).
type Membership struct {
	EntityID  string                      `json:"entityId" validate:"required"`
	UserID    string                      `json:"userId" validate:"required"`
	Type      valueobjects.MembershipType `json:"type" validate:"required"`
	Role      Role                        `json:"role" validate:"required,oneof=Admin User"`
	CreatedAt time.Time                   `json:"createdAt" validate:"required"`
	ActiveAt  time.Time                   `json:"activeAt" validate:"required"`

	// DueAt is only meaningful for meetings.
	DueAt *time.Time `json:"dueAt,omitempty"`

	// UserName is denormalized from the user record and backfilled
	// asynchronously; it may be empty right after creation.
	UserName string `json:"userName,omitempty"`

	// Conversation read state, Group/Meeting/OneOnOne only.
	UserActiveAt   *time.Time `json:"userActiveAt,omitempty"`
	UnseenMessages int        `json:"unseenMessages,omitempty"`
}

// NewMembership builds a membership whose type is derived from the entity id
// and whose activity timestamp starts at the creation time.
func NewMembership(entityID, userID string, role Role, createdAt time.Time) *Membership {
	m := &Membership{
		EntityID:  entityID,
		UserID:    userID,
		Type:      valueobjects.DeriveType(entityID),
		Role:      role,
		CreatedAt: createdAt,
		ActiveAt:  createdAt,
	}
	if m.Type.IsConversation() {
		viewed := createdAt
		m.UserActiveAt = &viewed
	}
	return m
}

// MembershipUpdate is a partial update; nil fields are left untouched.
type MembershipUpdate struct {
	UserName *string
	ActiveAt *time.Time
	DueAt    *time.Time
	Role     *Role
}

// IsEmpty reports whether the update would change nothing.
func (u MembershipUpdate) IsEmpty() bool {
	return u.UserName == nil && u.ActiveAt == nil && u.DueAt == nil && u.Role == nil
}
