package valueobjects

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveType(t *testing.T) {
	tests := []struct {
		entityID string
		want     MembershipType
	}{
		{"organization_8f1c", MembershipTypeOrganization},
		{"team_42", MembershipTypeTeam},
		{"group_a", MembershipTypeGroup},
		{"meeting_b", MembershipTypeMeeting},
		{"user-1_user-2", MembershipTypeOneOnOne},
		{"", MembershipTypeOneOnOne},
		{"Team_42", MembershipTypeOneOnOne},
	}

	for _, tt := range tests {
		t.Run(tt.entityID, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveType(tt.entityID))
		})
	}
}

func TestCheckPrefixCoverage(t *testing.T) {
	require.NoError(t, CheckPrefixCoverage())

	for _, typ := range MembershipTypes() {
		assert.True(t, typ.IsValid(), typ)
	}
	assert.False(t, MembershipType("Channel").IsValid())
}

func TestNewEntityID_RoundTripsThroughDeriveType(t *testing.T) {
	for _, typ := range MembershipTypes() {
		if typ == MembershipTypeOneOnOne {
			continue
		}
		id, err := NewEntityID(typ)
		require.NoError(t, err)
		assert.Equal(t, typ, DeriveType(id))
	}

	id, err := NewEntityID(MembershipTypeOneOnOne)
	require.NoError(t, err)
	assert.Equal(t, MembershipTypeOneOnOne, DeriveType(id))
	assert.False(t, strings.Contains(id, "_"))

	_, err = NewEntityID("Channel")
	assert.Error(t, err)
}

func TestTypeGroups(t *testing.T) {
	assert.True(t, MembershipTypeMeeting.IsConversation())
	assert.False(t, MembershipTypeTeam.IsConversation())
	assert.True(t, MembershipTypeGroup.InMergedFeed())
	assert.False(t, MembershipTypeMeeting.InMergedFeed())
}
