package dynamodb

import (
	"time"

	"chat-backend/domain/core/entities"
	"chat-backend/domain/core/valueobjects"
	"chat-backend/pkg/utils"
)

// Sort key building blocks. Every membership sort key starts with
// MembershipKeyPrefix so one begins_with reaches all of a user's rows.
const (
	MembershipKeyPrefix    = "Membership#"
	userNameKeyPrefix      = MembershipKeyPrefix + "User#Name#"
	mergedFeedKeyPrefix    = MembershipKeyPrefix + "OneOnOneAndGroup_Active#"
	meetingDueKeyPrefix    = MembershipKeyPrefix + "Meeting_Due#"
	activeKeySuffix        = "_Active#"
	listenerKeyPrefix      = "Listener#"
	listenerSortKey        = "Listener"
	userPartitionKeyPrefix = "User#"
	messageSortKeyPrefix   = "Message#"
)

// MembershipKeys holds every key attribute of one membership item.
// GSI3PK and GSI3SK are empty when the row is absent from GSI-3.
type MembershipKeys struct {
	PK     string
	SK     string
	GSI1PK string
	GSI1SK string
	GSI2PK string
	GSI2SK string
	GSI3PK string
	GSI3SK string
}

// MembershipPrimaryKey returns the table key: the user owns the partition.
func MembershipPrimaryKey(userID, entityID string) (pk, sk string) {
	return userID, MembershipKeyPrefix + entityID
}

// MembershipGSI1 keys the members-of-entity index. Until the user name is
// backfilled the row sorts by user id.
func MembershipGSI1(entityID, userName, userID string) (pk, sk string) {
	name := userName
	if name == "" {
		name = userID
	}
	return entityID, userNameKeyPrefix + name
}

// MembershipGSI2 keys the per-type activity index.
func MembershipGSI2(userID string, t valueobjects.MembershipType, activeAt time.Time) (pk, sk string) {
	return userID, GSI2Prefix(t) + utils.FormatTimestamp(activeAt)
}

// MembershipGSI3 keys the merged conversation feed and the meeting agenda.
// ok is false when the row does not belong in GSI-3: organizations, teams and
// meetings without a due date.
func MembershipGSI3(userID string, t valueobjects.MembershipType, activeAt time.Time, dueAt *time.Time) (pk, sk string, ok bool) {
	switch {
	case t == valueobjects.MembershipTypeMeeting && dueAt != nil:
		return userID, meetingDueKeyPrefix + utils.FormatTimestamp(*dueAt), true
	case t.InMergedFeed():
		return userID, mergedFeedKeyPrefix + utils.FormatTimestamp(activeAt), true
	default:
		return "", "", false
	}
}

// ComposeMembershipKeys computes all four key sets of m. The type is always
// re-derived from the entity id, never trusted from the record.
func ComposeMembershipKeys(m entities.Membership) MembershipKeys {
	t := valueobjects.DeriveType(m.EntityID)

	var keys MembershipKeys
	keys.PK, keys.SK = MembershipPrimaryKey(m.UserID, m.EntityID)
	keys.GSI1PK, keys.GSI1SK = MembershipGSI1(m.EntityID, m.UserName, m.UserID)
	keys.GSI2PK, keys.GSI2SK = MembershipGSI2(m.UserID, t, m.ActiveAt)
	if pk, sk, ok := MembershipGSI3(m.UserID, t, m.ActiveAt, m.DueAt); ok {
		keys.GSI3PK, keys.GSI3SK = pk, sk
	}
	return keys
}

// GSI2Prefix is the begins_with prefix selecting one type in GSI-2.
func GSI2Prefix(t valueobjects.MembershipType) string {
	return MembershipKeyPrefix + t.String() + activeKeySuffix
}

// ListenerKey returns the connections table key of one listener.
func ListenerKey(transport, listenerID string) (pk, sk string) {
	return listenerKeyPrefix + transport + "#" + listenerID, listenerSortKey
}

// ListenerUserKey keys the listeners-by-user index.
func ListenerUserKey(userID, transport, listenerID string) (pk, sk string) {
	return userPartitionKeyPrefix + userID, listenerKeyPrefix + transport + "#" + listenerID
}

// UserKey returns the table key of a user record. The partition is prefixed
// so only memberships share a bare user id partition.
func UserKey(userID string) (pk, sk string) {
	return userPartitionKeyPrefix + userID, entities.EntityTypeUser
}

// EntityKey returns the table key of an organization, team, group, meeting
// or one-on-one record.
func EntityKey(entityID string) (pk, sk string) {
	return entityID, valueobjects.DeriveType(entityID).String()
}

// MessageKey returns the table key of a message.
func MessageKey(conversationID, messageID string) (pk, sk string) {
	return conversationID, messageSortKeyPrefix + messageID
}
