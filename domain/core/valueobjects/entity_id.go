package valueobjects

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MembershipType identifies what kind of entity a membership points at.
// It is never stored as an independent source of truth: it is always
// re-derived from the entity id prefix with DeriveType.
type MembershipType string

const (
	MembershipTypeOrganization MembershipType = "Organization"
	MembershipTypeTeam         MembershipType = "Team"
	MembershipTypeGroup        MembershipType = "Group"
	MembershipTypeMeeting      MembershipType = "Meeting"
	MembershipTypeOneOnOne     MembershipType = "OneOnOne"
)

// Entity id prefixes. One-on-one conversations carry no prefix.
const (
	OrganizationIDPrefix = "organization_"
	TeamIDPrefix         = "team_"
	GroupIDPrefix        = "group_"
	MeetingIDPrefix      = "meeting_"
)

// prefixedTypes lists every type reachable through a prefix. OneOnOne is the
// fallthrough and must not appear here.
var prefixedTypes = []struct {
	prefix string
	typ    MembershipType
}{
	{OrganizationIDPrefix, MembershipTypeOrganization},
	{TeamIDPrefix, MembershipTypeTeam},
	{GroupIDPrefix, MembershipTypeGroup},
	{MeetingIDPrefix, MembershipTypeMeeting},
}

// MembershipTypes returns every membership type in a stable order.
func MembershipTypes() []MembershipType {
	return []MembershipType{
		MembershipTypeOrganization,
		MembershipTypeTeam,
		MembershipTypeGroup,
		MembershipTypeMeeting,
		MembershipTypeOneOnOne,
	}
}

// IsValid reports whether t is one of the known membership types.
func (t MembershipType) IsValid() bool {
	for _, known := range MembershipTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// IsConversation reports whether memberships of this type carry per-user
// read state (userActiveAt, unseenMessages).
func (t MembershipType) IsConversation() bool {
	return t == MembershipTypeGroup || t == MembershipTypeMeeting || t == MembershipTypeOneOnOne
}

// InMergedFeed reports whether the type belongs to the combined
// one-on-one and group activity feed.
func (t MembershipType) InMergedFeed() bool {
	return t == MembershipTypeGroup || t == MembershipTypeOneOnOne
}

func (t MembershipType) String() string { return string(t) }

// DeriveType returns the membership type encoded in an entity id prefix.
// Writers and readers must both go through this function.
func DeriveType(entityID string) MembershipType {
	for _, p := range prefixedTypes {
		if strings.HasPrefix(entityID, p.prefix) {
			return p.typ
		}
	}
	return MembershipTypeOneOnOne
}

// PrefixFor returns the id prefix for a membership type.
func PrefixFor(t MembershipType) (string, error) {
	if t == MembershipTypeOneOnOne {
		return "", nil
	}
	for _, p := range prefixedTypes {
		if p.typ == t {
			return p.prefix, nil
		}
	}
	return "", fmt.Errorf("no id prefix registered for membership type %q", t)
}

// CheckPrefixCoverage verifies that every membership type other than the
// one-on-one default owns exactly one prefix, so a newly added type cannot
// silently fall through to OneOnOne.
func CheckPrefixCoverage() error {
	seen := make(map[MembershipType]int)
	for _, p := range prefixedTypes {
		seen[p.typ]++
	}
	for _, t := range MembershipTypes() {
		switch {
		case t == MembershipTypeOneOnOne && seen[t] != 0:
			return fmt.Errorf("membership type %q must not have a prefix", t)
		case t != MembershipTypeOneOnOne && seen[t] != 1:
			return fmt.Errorf("membership type %q has %d prefixes, want 1", t, seen[t])
		}
	}
	return nil
}

// NewEntityID generates a fresh id whose prefix encodes t.
func NewEntityID(t MembershipType) (string, error) {
	prefix, err := PrefixFor(t)
	if err != nil {
		return "", err
	}
	return prefix + uuid.New().String(), nil
}
