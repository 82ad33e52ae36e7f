// Package processors holds the change processors reacting to the chat
// table's stream. Each one enriches a record with read-only lookups and
// publishes at most one fan-out message per record.
package processors

import (
	"chat-backend/application/ports"
	"chat-backend/application/streams"
	"chat-backend/domain/core/valueobjects"

	"go.uber.org/zap"
)

// Dependencies are the capabilities the processor set draws from. Each
// constructor takes only the subset it uses.
type Dependencies struct {
	TableName   string
	Memberships ports.MembershipRepository
	Users       ports.UserReader
	Entities    ports.EntityReader
	Messages    ports.MessageReader
	Decoder     ports.ImageDecoder
	Publisher   ports.FanoutPublisher
	Indexer     ports.MessageIndexer
	Logger      *zap.Logger
}

// DefaultSet builds every processor in registration order.
func DefaultSet(deps Dependencies) []streams.Processor {
	set := []streams.Processor{
		NewMembershipCreatedProcessor(deps.TableName, deps.Memberships, deps.Users, deps.Decoder, deps.Logger),
	}
	for _, t := range valueobjects.MembershipTypes() {
		set = append(set, NewUserAddedProcessor(t, deps.TableName, deps.Memberships, deps.Users, deps.Entities, deps.Decoder, deps.Publisher, deps.Logger))
	}
	for _, t := range valueobjects.MembershipTypes() {
		set = append(set, NewUserRemovedProcessor(t, deps.TableName, deps.Memberships, deps.Users, deps.Entities, deps.Decoder, deps.Publisher, deps.Logger))
	}
	return append(set,
		NewUserNameUpdatedProcessor(deps.TableName, deps.Memberships, deps.Decoder, deps.Logger),
		NewMessageCreatedProcessor(deps.TableName, deps.Messages, deps.Memberships, deps.Decoder, deps.Publisher, deps.Indexer, deps.Logger),
		NewUnreadCounterProcessor(deps.TableName, deps.Memberships, deps.Decoder, deps.Logger),
	)
}

var typeSlugs = map[valueobjects.MembershipType]string{
	valueobjects.MembershipTypeOrganization: "organization",
	valueobjects.MembershipTypeTeam:         "team",
	valueobjects.MembershipTypeGroup:        "group",
	valueobjects.MembershipTypeMeeting:      "meeting",
	valueobjects.MembershipTypeOneOnOne:     "one-on-one",
}

func typeSlug(t valueobjects.MembershipType) string {
	if slug, ok := typeSlugs[t]; ok {
		return slug
	}
	return string(t)
}
