package entities

import (
	"time"

	"chat-backend/domain/core/valueobjects"
)

// Record discriminators stored in the entityType attribute of every item.
const (
	EntityTypeUser       = "User"
	EntityTypeMembership = "Membership"
	EntityTypeMessage    = "Message"
)

// Entity is a snapshot of a membership target: an organization, team,
// group, meeting or one-on-one conversation.
type Entity struct {
	ID        string                      `json:"id"`
	Type      valueobjects.MembershipType `json:"type"`
	Name      string                      `json:"name,omitempty"`
	CreatedBy string                      `json:"createdBy,omitempty"`
	DueAt     *time.Time                  `json:"dueAt,omitempty"`
	CreatedAt time.Time                   `json:"createdAt"`
}
