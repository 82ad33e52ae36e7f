package processors

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"chat-backend/application/ports"
	"chat-backend/application/streams"
	"chat-backend/domain/core/entities"
	"chat-backend/domain/core/valueobjects"
	"chat-backend/domain/events"
	"chat-backend/pkg/common"
	pkgerrors "chat-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) *streams.Registry {
	t.Helper()
	registry, err := streams.NewRegistry(DefaultSet(Dependencies{
		TableName:   testTable,
		Memberships: new(mockMemberships),
		Users:       new(mockUsers),
		Entities:    new(mockEntities),
		Messages:    new(mockMessages),
		Decoder:     testCodec,
		Publisher:   new(mockPublisher),
		Indexer:     new(mockIndexer),
		Logger:      zap.NewNop(),
	})...)
	require.NoError(t, err)
	return registry
}

func namesWithPrefix(matched []streams.Processor, prefix string) []string {
	var names []string
	for _, p := range matched {
		if strings.HasPrefix(p.Name(), prefix) {
			names = append(names, p.Name())
		}
	}
	return names
}

func TestDefaultSet_ExactlyOneMembershipFanoutProcessorMatches(t *testing.T) {
	registry := newTestRegistry(t)

	for _, typ := range valueobjects.MembershipTypes() {
		entityID, err := valueobjects.NewEntityID(typ)
		require.NoError(t, err)
		m := entities.NewMembership(entityID, "user-1", entities.RoleUser, joinedAt)

		inserted := registry.Match(membershipRecord(t, streams.EventInsert, m))
		assert.Equal(t, []string{"user-added-to-" + typeSlug(typ)}, namesWithPrefix(inserted, "user-added-to-"), typ)
		assert.Len(t, inserted, 2, "membership-created also reacts to every insert")

		removed := registry.Match(membershipRecord(t, streams.EventRemove, m))
		assert.Equal(t, []string{"user-removed-from-" + typeSlug(typ)}, namesWithPrefix(removed, "user-removed-from-"), typ)
		assert.Len(t, removed, 1)
	}
}

func TestDefaultSet_IgnoresOtherTables(t *testing.T) {
	registry := newTestRegistry(t)
	record := membershipRecord(t, streams.EventInsert, entities.NewMembership("group_g1", "user-1", entities.RoleUser, joinedAt))
	record.TableName = "another-table"

	assert.Empty(t, registry.Match(record))
}

func TestDefaultSet_MessageInsertRunsDeliveryAndCounter(t *testing.T) {
	registry := newTestRegistry(t)
	record := messageRecord(t, entities.Message{ID: "msg-1", ConversationID: "group_g1", SenderID: "user-1", Body: "hi", CreatedAt: joinedAt})

	var names []string
	for _, p := range registry.Match(record) {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"message-created", "message-unread-counter"}, names)
}

type membershipFixture struct {
	memberships *mockMemberships
	users       *mockUsers
	entities    *mockEntities
	publisher   *mockPublisher
}

func newMembershipFixture() membershipFixture {
	return membershipFixture{
		memberships: new(mockMemberships),
		users:       new(mockUsers),
		entities:    new(mockEntities),
		publisher:   new(mockPublisher),
	}
}

func (f membershipFixture) added(typ valueobjects.MembershipType) *MembershipFanoutProcessor {
	return NewUserAddedProcessor(typ, testTable, f.memberships, f.users, f.entities, testCodec, f.publisher, zap.NewNop())
}

func (f membershipFixture) removed(typ valueobjects.MembershipType) *MembershipFanoutProcessor {
	return NewUserRemovedProcessor(typ, testTable, f.memberships, f.users, f.entities, testCodec, f.publisher, zap.NewNop())
}

func TestUserAddedProcessor_PublishesEnrichedMessage(t *testing.T) {
	f := newMembershipFixture()
	m := entities.NewMembership("group_g1", "user-2", entities.RoleUser, joinedAt)

	f.memberships.On("ListMemberIDs", mock.Anything, "group_g1").Return([]string{"user-3", "user-1", "user-2"}, nil)
	f.users.On("GetUser", mock.Anything, "user-2").Return(&entities.User{ID: "user-2", Name: "Bea"}, nil)
	f.entities.On("GetEntity", mock.Anything, "group_g1").Return(&entities.Entity{ID: "group_g1", Type: valueobjects.MembershipTypeGroup, Name: "Ops"}, nil)

	var published events.FanoutMessage
	f.publisher.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(1).(events.FanoutMessage) }).
		Return(nil)

	err := f.added(valueobjects.MembershipTypeGroup).Process(context.Background(), membershipRecord(t, streams.EventInsert, m))
	require.NoError(t, err)

	assert.Equal(t, events.TopicUserAddedToGroup, published.Topic)
	assert.Equal(t, []string{"user-1", "user-2", "user-3"}, published.Recipients)
	assert.True(t, recordTime.Equal(published.OccurredAt))

	var payload events.UserAddedToEntity
	require.NoError(t, json.Unmarshal(published.Payload, &payload))
	assert.Equal(t, "Bea", payload.User.Name)
	assert.Equal(t, "Ops", payload.Entity.Name)
	assert.Equal(t, "group_g1", payload.Membership.EntityID)
	assert.Equal(t, valueobjects.MembershipTypeGroup, payload.EntityType)

	f.publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestUserAddedProcessor_ConstructionIsIdempotent(t *testing.T) {
	f := newMembershipFixture()
	m := entities.NewMembership("meeting_m1", "user-2", entities.RoleAdmin, joinedAt)
	record := membershipRecord(t, streams.EventInsert, m)

	f.memberships.On("ListMemberIDs", mock.Anything, "meeting_m1").Return([]string{"user-2", "user-1"}, nil)
	f.users.On("GetUser", mock.Anything, "user-2").Return(&entities.User{ID: "user-2", Email: "b@example.com"}, nil)
	f.entities.On("GetEntity", mock.Anything, "meeting_m1").Return(&entities.Entity{ID: "meeting_m1", Type: valueobjects.MembershipTypeMeeting}, nil)

	p := f.added(valueobjects.MembershipTypeMeeting)
	first, err := p.Build(context.Background(), record)
	require.NoError(t, err)
	second, err := p.Build(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, string(first.Payload), string(second.Payload))
}

func TestUserAddedProcessor_FailuresPropagate(t *testing.T) {
	boom := errors.New("throttled")
	m := entities.NewMembership("team_t1", "user-2", entities.RoleUser, joinedAt)

	t.Run("lookup", func(t *testing.T) {
		f := newMembershipFixture()
		f.memberships.On("ListMemberIDs", mock.Anything, "team_t1").Return([]string{"user-2"}, nil)
		f.users.On("GetUser", mock.Anything, "user-2").Return(nil, boom)
		f.entities.On("GetEntity", mock.Anything, "team_t1").Return(&entities.Entity{ID: "team_t1"}, nil)

		err := f.added(valueobjects.MembershipTypeTeam).Process(context.Background(), membershipRecord(t, streams.EventInsert, m))

		assert.ErrorIs(t, err, boom)
		f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("publish", func(t *testing.T) {
		f := newMembershipFixture()
		f.memberships.On("ListMemberIDs", mock.Anything, "team_t1").Return([]string{"user-2"}, nil)
		f.users.On("GetUser", mock.Anything, "user-2").Return(&entities.User{ID: "user-2"}, nil)
		f.entities.On("GetEntity", mock.Anything, "team_t1").Return(&entities.Entity{ID: "team_t1"}, nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).Return(boom)

		err := f.added(valueobjects.MembershipTypeTeam).Process(context.Background(), membershipRecord(t, streams.EventInsert, m))

		assert.ErrorIs(t, err, boom)
	})
}

func TestUserRemovedProcessor_AddressesRemovedUser(t *testing.T) {
	f := newMembershipFixture()
	m := entities.NewMembership("organization_o1", "user-9", entities.RoleUser, joinedAt)

	f.memberships.On("ListMemberIDs", mock.Anything, "organization_o1").Return([]string{"user-1"}, nil)
	f.users.On("GetUser", mock.Anything, "user-9").Return(&entities.User{ID: "user-9", Name: "Nine"}, nil)
	f.entities.On("GetEntity", mock.Anything, "organization_o1").Return(nil, pkgerrors.NewNotFoundError("entity"))

	var published events.FanoutMessage
	f.publisher.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(1).(events.FanoutMessage) }).
		Return(nil)

	err := f.removed(valueobjects.MembershipTypeOrganization).Process(context.Background(), membershipRecord(t, streams.EventRemove, m))
	require.NoError(t, err)

	assert.Equal(t, events.TopicUserRemovedFromOrganization, published.Topic)
	assert.Equal(t, []string{"user-1", "user-9"}, published.Recipients)

	var payload events.UserRemovedFromEntity
	require.NoError(t, json.Unmarshal(published.Payload, &payload))
	assert.Equal(t, []string{"user-1"}, payload.MemberIDs)
	assert.Equal(t, "organization_o1", payload.Entity.ID)
}

func TestMembershipCreatedProcessor(t *testing.T) {
	m := entities.NewMembership("group_g1", "user-2", entities.RoleUser, joinedAt)

	t.Run("backfills display name", func(t *testing.T) {
		memberships, users := new(mockMemberships), new(mockUsers)
		users.On("GetUser", mock.Anything, "user-2").Return(&entities.User{ID: "user-2", Username: "bea"}, nil)
		memberships.On("Update", mock.Anything, "group_g1", "user-2", mock.MatchedBy(func(u entities.MembershipUpdate) bool {
			return u.UserName != nil && *u.UserName == "bea" && u.ActiveAt == nil && u.DueAt == nil && u.Role == nil
		})).Return(m, nil)

		p := NewMembershipCreatedProcessor(testTable, memberships, users, testCodec, zap.NewNop())
		require.NoError(t, p.Process(context.Background(), membershipRecord(t, streams.EventInsert, m)))

		memberships.AssertExpectations(t)
	})

	t.Run("skips when no name can be derived", func(t *testing.T) {
		memberships, users := new(mockMemberships), new(mockUsers)
		users.On("GetUser", mock.Anything, "user-2").Return(&entities.User{ID: "user-2"}, nil)

		p := NewMembershipCreatedProcessor(testTable, memberships, users, testCodec, zap.NewNop())
		require.NoError(t, p.Process(context.Background(), membershipRecord(t, streams.EventInsert, m)))

		memberships.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("returns transient failures", func(t *testing.T) {
		memberships, users := new(mockMemberships), new(mockUsers)
		boom := errors.New("timeout")
		users.On("GetUser", mock.Anything, "user-2").Return(nil, boom)

		p := NewMembershipCreatedProcessor(testTable, memberships, users, testCodec, zap.NewNop())
		assert.ErrorIs(t, p.Process(context.Background(), membershipRecord(t, streams.EventInsert, m)), boom)
	})
}

func TestUserNameUpdatedProcessor_FiresOnlyWhenNameIsUnchanged(t *testing.T) {
	p := NewUserNameUpdatedProcessor(testTable, new(mockMemberships), testCodec, zap.NewNop())

	same := userRecord(t,
		entities.User{ID: "user-1", Name: "Ada", Email: "old@example.com"},
		entities.User{ID: "user-1", Name: "Ada", Email: "new@example.com"},
	)
	renamed := userRecord(t,
		entities.User{ID: "user-1", Name: "Ada"},
		entities.User{ID: "user-1", Name: "Ada L."},
	)

	assert.True(t, p.Supports(same))
	assert.False(t, p.Supports(renamed))
}

func TestUserNameUpdatedProcessor_RefreshesEveryMembership(t *testing.T) {
	memberships := new(mockMemberships)
	opts := ports.ListByUserOptions{}

	memberships.On("ListByUserID", mock.Anything, "user-1", opts, common.PageRequest{Limit: common.MaxPageSize}).
		Return(common.Page[entities.Membership]{
			Items: []entities.Membership{
				{EntityID: "group_g1", UserID: "user-1", UserName: "stale"},
				{EntityID: "team_t1", UserID: "user-1", UserName: "Ada"},
			},
			NextCursor: "next",
		}, nil)
	memberships.On("ListByUserID", mock.Anything, "user-1", opts, common.PageRequest{Limit: common.MaxPageSize, Cursor: "next"}).
		Return(common.Page[entities.Membership]{
			Items: []entities.Membership{{EntityID: "dm-1", UserID: "user-1"}},
		}, nil)

	nameIsAda := mock.MatchedBy(func(u entities.MembershipUpdate) bool { return u.UserName != nil && *u.UserName == "Ada" })
	memberships.On("Update", mock.Anything, "group_g1", "user-1", nameIsAda).Return(&entities.Membership{}, nil)
	memberships.On("Update", mock.Anything, "dm-1", "user-1", nameIsAda).Return(&entities.Membership{}, nil)

	p := NewUserNameUpdatedProcessor(testTable, memberships, testCodec, zap.NewNop())
	record := userRecord(t, entities.User{ID: "user-1", Name: "Ada"}, entities.User{ID: "user-1", Name: "Ada", Phone: "555"})

	require.NoError(t, p.Process(context.Background(), record))

	memberships.AssertExpectations(t)
	memberships.AssertNumberOfCalls(t, "Update", 2)
}

type messageFixture struct {
	messages    *mockMessages
	memberships *mockMemberships
	publisher   *mockPublisher
	indexer     *mockIndexer
	processor   *MessageCreatedProcessor
	message     entities.Message
}

func newMessageFixture() messageFixture {
	f := messageFixture{
		messages:    new(mockMessages),
		memberships: new(mockMemberships),
		publisher:   new(mockPublisher),
		indexer:     new(mockIndexer),
		message:     entities.Message{ID: "msg-1", ConversationID: "group_g1", SenderID: "user-1", Body: "hello", CreatedAt: joinedAt},
	}
	f.processor = NewMessageCreatedProcessor(testTable, f.messages, f.memberships, testCodec, f.publisher, f.indexer, zap.NewNop())
	f.messages.On("GetMessage", mock.Anything, "group_g1", "msg-1").Return(&f.message, nil)
	f.memberships.On("ListMemberIDs", mock.Anything, "group_g1").Return([]string{"user-2", "user-1"}, nil)
	return f
}

func TestMessageCreatedProcessor_IndexFailureIsDropped(t *testing.T) {
	f := newMessageFixture()
	f.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(m events.FanoutMessage) bool {
		return m.Topic == events.TopicMessageCreated && len(m.Recipients) == 2
	})).Return(nil)
	f.indexer.On("IndexMessage", mock.Anything, f.message).Return(errors.New("index unavailable"))

	err := f.processor.Process(context.Background(), messageRecord(t, f.message))

	require.NoError(t, err)
	f.publisher.AssertExpectations(t)
	f.indexer.AssertExpectations(t)
}

func TestMessageCreatedProcessor_PublishFailureIsReturned(t *testing.T) {
	f := newMessageFixture()
	boom := errors.New("publish failed")
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(boom)
	f.indexer.On("IndexMessage", mock.Anything, f.message).Return(nil)

	err := f.processor.Process(context.Background(), messageRecord(t, f.message))

	assert.ErrorIs(t, err, boom)
	f.indexer.AssertExpectations(t)
}

func TestMessageCreatedProcessor_ConstructionIsIdempotent(t *testing.T) {
	f := newMessageFixture()
	record := messageRecord(t, f.message)

	_, first, err := f.processor.Build(context.Background(), record)
	require.NoError(t, err)
	_, second, err := f.processor.Build(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"user-1", "user-2"}, first.Recipients)
}

func TestUnreadCounterProcessor(t *testing.T) {
	message := entities.Message{ID: "msg-1", ConversationID: "group_g1", SenderID: "user-1", Body: "hi", CreatedAt: joinedAt}
	boom := errors.New("throttled")

	memberships := new(mockMemberships)
	memberships.On("ListMemberIDs", mock.Anything, "group_g1").Return([]string{"user-1", "user-2", "user-3", "user-4"}, nil)
	memberships.On("IncrementUnreadMessages", mock.Anything, "group_g1", "user-2").Return(boom)
	memberships.On("IncrementUnreadMessages", mock.Anything, "group_g1", "user-3").Return(pkgerrors.NewNotFoundError("membership"))
	memberships.On("IncrementUnreadMessages", mock.Anything, "group_g1", "user-4").Return(nil)

	p := NewUnreadCounterProcessor(testTable, memberships, testCodec, zap.NewNop())
	err := p.Process(context.Background(), messageRecord(t, message))

	assert.ErrorIs(t, err, boom)
	memberships.AssertExpectations(t)
	memberships.AssertNotCalled(t, "IncrementUnreadMessages", mock.Anything, "group_g1", "user-1")
}

func TestSettle_RunsEveryEffect(t *testing.T) {
	var ran int32
	boom := errors.New("down")

	results := Settle(context.Background(),
		SideEffect{Name: "a", Run: func(context.Context) error { atomic.AddInt32(&ran, 1); return nil }},
		SideEffect{Name: "b", BestEffort: true, Run: func(context.Context) error { atomic.AddInt32(&ran, 1); return boom }},
	)

	assert.Equal(t, int32(2), atomic.LoadInt32(&ran))
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Name)
	assert.False(t, results[0].Failed())
	assert.True(t, results[1].Failed())
	assert.NoError(t, FirstRequiredFailure(results))

	results[0].Err = boom
	assert.ErrorIs(t, FirstRequiredFailure(results), boom)
}
