package processors

import (
	"context"
	"testing"
	"time"

	"chat-backend/application/ports"
	"chat-backend/application/streams"
	"chat-backend/domain/core/entities"
	"chat-backend/domain/events"
	ddb "chat-backend/infrastructure/persistence/dynamodb"
	"chat-backend/pkg/common"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testTable = "chat"

var (
	testCodec  = ddb.NewItemCodec()
	recordTime = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	joinedAt   = time.Date(2024, 6, 1, 7, 59, 58, 0, time.UTC)
)

type mockMemberships struct {
	mock.Mock
}

func (m *mockMemberships) Create(ctx context.Context, membership *entities.Membership) error {
	return m.Called(ctx, membership).Error(0)
}

func (m *mockMemberships) Get(ctx context.Context, entityID, userID string) (*entities.Membership, error) {
	args := m.Called(ctx, entityID, userID)
	membership, _ := args.Get(0).(*entities.Membership)
	return membership, args.Error(1)
}

func (m *mockMemberships) Update(ctx context.Context, entityID, userID string, update entities.MembershipUpdate) (*entities.Membership, error) {
	args := m.Called(ctx, entityID, userID, update)
	membership, _ := args.Get(0).(*entities.Membership)
	return membership, args.Error(1)
}

func (m *mockMemberships) IncrementUnreadMessages(ctx context.Context, entityID, userID string) error {
	return m.Called(ctx, entityID, userID).Error(0)
}

func (m *mockMemberships) ResetUnreadMessages(ctx context.Context, entityID, userID string) error {
	return m.Called(ctx, entityID, userID).Error(0)
}

func (m *mockMemberships) Delete(ctx context.Context, entityID, userID string) error {
	return m.Called(ctx, entityID, userID).Error(0)
}

func (m *mockMemberships) ListByEntityID(ctx context.Context, entityID string, page common.PageRequest) (common.Page[entities.Membership], error) {
	args := m.Called(ctx, entityID, page)
	return args.Get(0).(common.Page[entities.Membership]), args.Error(1)
}

func (m *mockMemberships) ListByUserID(ctx context.Context, userID string, opts ports.ListByUserOptions, page common.PageRequest) (common.Page[entities.Membership], error) {
	args := m.Called(ctx, userID, opts, page)
	return args.Get(0).(common.Page[entities.Membership]), args.Error(1)
}

func (m *mockMemberships) ListMemberIDs(ctx context.Context, entityID string) ([]string, error) {
	args := m.Called(ctx, entityID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetUser(ctx context.Context, userID string) (*entities.User, error) {
	args := m.Called(ctx, userID)
	user, _ := args.Get(0).(*entities.User)
	return user, args.Error(1)
}

type mockEntities struct {
	mock.Mock
}

func (m *mockEntities) GetEntity(ctx context.Context, entityID string) (*entities.Entity, error) {
	args := m.Called(ctx, entityID)
	entity, _ := args.Get(0).(*entities.Entity)
	return entity, args.Error(1)
}

type mockMessages struct {
	mock.Mock
}

func (m *mockMessages) GetMessage(ctx context.Context, conversationID, messageID string) (*entities.Message, error) {
	args := m.Called(ctx, conversationID, messageID)
	message, _ := args.Get(0).(*entities.Message)
	return message, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, message events.FanoutMessage) error {
	return m.Called(ctx, message).Error(0)
}

type mockIndexer struct {
	mock.Mock
}

func (m *mockIndexer) IndexMessage(ctx context.Context, message entities.Message) error {
	return m.Called(ctx, message).Error(0)
}

func membershipRecord(t *testing.T, name streams.EventName, m *entities.Membership) streams.ChangeRecord {
	t.Helper()
	item, err := testCodec.EncodeMembership(*m)
	require.NoError(t, err)

	record := streams.ChangeRecord{
		TableName:               testTable,
		EventID:                 "evt-membership",
		EventName:               name,
		SequenceNumber:          "1000",
		ApproximateCreationTime: recordTime,
	}
	if name == streams.EventRemove {
		record.OldImage = item
	} else {
		record.NewImage = item
	}
	return record
}

func userRecord(t *testing.T, before, after entities.User) streams.ChangeRecord {
	t.Helper()
	oldImage, err := testCodec.EncodeUser(before)
	require.NoError(t, err)
	newImage, err := testCodec.EncodeUser(after)
	require.NoError(t, err)

	return streams.ChangeRecord{
		TableName:               testTable,
		EventID:                 "evt-user",
		EventName:               streams.EventModify,
		SequenceNumber:          "2000",
		ApproximateCreationTime: recordTime,
		OldImage:                oldImage,
		NewImage:                newImage,
	}
}

func messageRecord(t *testing.T, message entities.Message) streams.ChangeRecord {
	t.Helper()
	item, err := testCodec.EncodeMessage(message)
	require.NoError(t, err)

	return streams.ChangeRecord{
		TableName:               testTable,
		EventID:                 "evt-message",
		EventName:               streams.EventInsert,
		SequenceNumber:          "3000",
		ApproximateCreationTime: recordTime,
		NewImage:                item,
	}
}
