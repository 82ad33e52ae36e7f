package entities

import (
	"testing"
	"time"

	"chat-backend/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMembership(t *testing.T) {
	createdAt := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	team := NewMembership("team_1", "user-1", RoleAdmin, createdAt)
	assert.Equal(t, valueobjects.MembershipTypeTeam, team.Type)
	assert.Equal(t, createdAt, team.ActiveAt)
	assert.Nil(t, team.UserActiveAt)

	group := NewMembership("group_1", "user-1", RoleUser, createdAt)
	require.NotNil(t, group.UserActiveAt)
	assert.Equal(t, createdAt, *group.UserActiveAt)
	assert.Zero(t, group.UnseenMessages)
}

func TestMembershipUpdate_IsEmpty(t *testing.T) {
	assert.True(t, MembershipUpdate{}.IsEmpty())

	name := "Ada"
	assert.False(t, MembershipUpdate{UserName: &name}.IsEmpty())
}

func TestUser_DisplayName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{"name wins", User{Name: "Ada", Username: "ada", Email: "ada@example.com"}, "Ada"},
		{"username", User{Username: "ada", Email: "ada@example.com"}, "ada"},
		{"email", User{Email: "ada@example.com", Phone: "+15550100"}, "ada@example.com"},
		{"phone", User{Phone: "+15550100"}, "+15550100"},
		{"nothing", User{ID: "user-1"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.DisplayName())
		})
	}
}
