package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chat-backend/application/ports"
	"chat-backend/domain/core/entities"
	"chat-backend/domain/core/valueobjects"
	"chat-backend/infrastructure/persistence/dynamodb/dynamodbtest"
	"chat-backend/pkg/common"
	pkgerrors "chat-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTableName = "chat"

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestFake() *dynamodbtest.Fake {
	fake := dynamodbtest.NewFake()
	fake.CreateTable(testTableName, dynamodbtest.KeySchema{PartitionKey: "pk", SortKey: "sk"}, map[string]dynamodbtest.KeySchema{
		"gsi1": {PartitionKey: "gsi1pk", SortKey: "gsi1sk"},
		"gsi2": {PartitionKey: "gsi2pk", SortKey: "gsi2sk"},
		"gsi3": {PartitionKey: "gsi3pk", SortKey: "gsi3sk"},
	})
	return fake
}

func newTestMembershipRepository(t *testing.T) (*MembershipRepository, *dynamodbtest.Fake) {
	t.Helper()
	fake := newTestFake()
	repo := NewMembershipRepository(fake, TableConfig{
		TableName:       testTableName,
		GSI1IndexName:   "gsi1",
		GSI2IndexName:   "gsi2",
		GSI3IndexName:   "gsi3",
		DefaultPageSize: common.DefaultPageSize,
	}, zap.NewNop())
	return repo, fake
}

func createMembership(t *testing.T, repo *MembershipRepository, entityID, userID string, createdAt time.Time) *entities.Membership {
	t.Helper()
	m := entities.NewMembership(entityID, userID, entities.RoleUser, createdAt)
	require.NoError(t, repo.Create(context.Background(), m))
	return m
}

func userIDs(page common.Page[entities.Membership]) []string {
	ids := make([]string, 0, len(page.Items))
	for _, m := range page.Items {
		ids = append(ids, m.UserID)
	}
	return ids
}

func entityIDs(page common.Page[entities.Membership]) []string {
	ids := make([]string, 0, len(page.Items))
	for _, m := range page.Items {
		ids = append(ids, m.EntityID)
	}
	return ids
}

func stringAttr(t *testing.T, item map[string]types.AttributeValue, name string) string {
	t.Helper()
	v, ok := item[name].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %s is not a string", name)
	return v.Value
}

func TestMembershipRepository_CreateAndGet(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	ctx := context.Background()

	created := createMembership(t, repo, "group_g1", "user-1", baseTime)

	got, err := repo.Get(ctx, "group_g1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, valueobjects.MembershipTypeGroup, got.Type)
	assert.Equal(t, entities.RoleUser, got.Role)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, got.ActiveAt.Equal(got.CreatedAt))
	require.NotNil(t, got.UserActiveAt)
	assert.Equal(t, 0, got.UnseenMessages)
}

func TestMembershipRepository_CreateRejectsDuplicate(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	createMembership(t, repo, "team_t1", "user-1", baseTime)

	err := repo.Create(context.Background(), entities.NewMembership("team_t1", "user-1", entities.RoleAdmin, baseTime))

	require.Error(t, err)
	assert.True(t, pkgerrors.IsAlreadyExists(err))
}

func TestMembershipRepository_CreateValidates(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	ctx := context.Background()

	mismatched := entities.NewMembership("team_t1", "user-1", entities.RoleUser, baseTime)
	mismatched.Type = valueobjects.MembershipTypeGroup
	assert.True(t, pkgerrors.IsValidation(repo.Create(ctx, mismatched)))

	due := baseTime.Add(time.Hour)
	withDue := entities.NewMembership("group_g1", "user-1", entities.RoleUser, baseTime)
	withDue.DueAt = &due
	assert.True(t, pkgerrors.IsValidation(repo.Create(ctx, withDue)))

	badRole := entities.NewMembership("group_g1", "user-1", entities.Role("Owner"), baseTime)
	assert.True(t, pkgerrors.IsValidation(repo.Create(ctx, badRole)))
}

func TestMembershipRepository_GetNotFound(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)

	_, err := repo.Get(context.Background(), "group_missing", "user-1")

	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestMembershipRepository_TransientErrorsPropagate(t *testing.T) {
	repo, fake := newTestMembershipRepository(t)
	boom := errors.New("throughput exceeded")
	fake.FailNext("GetItem", boom)

	_, err := repo.Get(context.Background(), "group_g1", "user-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, pkgerrors.IsNotFound(err))
}

func TestMembershipRepository_ListByEntityIDOrdersByIDUntilNameIsBackfilled(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	ctx := context.Background()

	createMembership(t, repo, "group_g1", "user-a", baseTime)
	createMembership(t, repo, "group_g1", "user-b", baseTime)

	page, err := repo.ListByEntityID(ctx, "group_g1", common.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"user-a", "user-b"}, userIDs(page))

	zed, ada := "Zed", "Ada"
	_, err = repo.Update(ctx, "group_g1", "user-a", entities.MembershipUpdate{UserName: &zed})
	require.NoError(t, err)
	_, err = repo.Update(ctx, "group_g1", "user-b", entities.MembershipUpdate{UserName: &ada})
	require.NoError(t, err)

	page, err = repo.ListByEntityID(ctx, "group_g1", common.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"user-b", "user-a"}, userIDs(page))
	assert.Equal(t, "Ada", page.Items[0].UserName)
}

func TestMembershipRepository_UndecodableRowFailsListing(t *testing.T) {
	repo, fake := newTestMembershipRepository(t)
	ctx := context.Background()

	createMembership(t, repo, "group_g1", "user-a", baseTime)
	item, err := NewItemCodec().EncodeMembership(*entities.NewMembership("group_g1", "user-b", entities.RoleUser, baseTime))
	require.NoError(t, err)
	item[attrActiveAt] = &types.AttributeValueMemberS{Value: "1714564800000"}
	_, err = fake.PutItem(ctx, putInput(item))
	require.NoError(t, err)

	ids, err := repo.ListMemberIDs(ctx, "group_g1")
	require.Error(t, err)
	assert.Nil(t, ids)
	assert.Contains(t, err.Error(), "user-b/Membership#group_g1")

	_, err = repo.ListByEntityID(ctx, "group_g1", common.PageRequest{})
	assert.Error(t, err)
}

func TestMembershipRepository_ListByEntityIDPaginates(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	ctx := context.Background()
	for _, id := range []string{"user-1", "user-2", "user-3"} {
		createMembership(t, repo, "organization_o1", id, baseTime)
	}

	first, err := repo.ListByEntityID(ctx, "organization_o1", common.PageRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1", "user-2"}, userIDs(first))
	require.True(t, first.HasMore())

	second, err := repo.ListByEntityID(ctx, "organization_o1", common.PageRequest{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"user-3"}, userIDs(second))
	assert.False(t, second.HasMore())
}

func TestMembershipRepository_ListMemberIDsWalksEveryPage(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	const members = common.MaxPageSize + 5
	for i := 0; i < members; i++ {
		createMembership(t, repo, "group_big", fmt.Sprintf("user-%03d", i), baseTime)
	}

	ids, err := repo.ListMemberIDs(context.Background(), "group_big")

	require.NoError(t, err)
	assert.Len(t, ids, members)
	assert.Equal(t, "user-000", ids[0])
	assert.Equal(t, fmt.Sprintf("user-%03d", members-1), ids[members-1])
}

func TestMembershipRepository_ListByUserIDMeetingsByDueDate(t *testing.T) {
	repo, fake := newTestMembershipRepository(t)
	ctx := context.Background()

	due := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	meeting := entities.NewMembership("meeting_m1", "user-1", entities.RoleAdmin, baseTime)
	meeting.DueAt = &due
	require.NoError(t, repo.Create(ctx, meeting))

	sooner := due.Add(-24 * time.Hour)
	other := entities.NewMembership("meeting_m2", "user-1", entities.RoleUser, baseTime)
	other.DueAt = &sooner
	require.NoError(t, repo.Create(ctx, other))

	// Meetings without a due date never show up in the agenda.
	createMembership(t, repo, "meeting_m3", "user-1", baseTime)

	page, err := repo.ListByUserID(ctx, "user-1", ports.ListByUserOptions{
		Type:        valueobjects.MembershipTypeMeeting,
		SortByDueAt: true,
	}, common.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"meeting_m2", "meeting_m1"}, entityIDs(page))

	for _, item := range fake.Items(testTableName) {
		if stringAttr(t, item, "sk") == "Membership#meeting_m1" {
			assert.Equal(t, "Membership#Meeting_Due#2030-01-01T00:00:00Z", stringAttr(t, item, "gsi3sk"))
		}
		if stringAttr(t, item, "sk") == "Membership#meeting_m3" {
			assert.Nil(t, item["gsi3sk"])
		}
	}
}

func TestMembershipRepository_ListByUserIDMergedConversations(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	ctx := context.Background()

	createMembership(t, repo, "group_old", "user-1", baseTime)
	createMembership(t, repo, "dm-recent", "user-1", baseTime.Add(2*time.Hour))
	createMembership(t, repo, "group_mid", "user-1", baseTime.Add(time.Hour))
	createMembership(t, repo, "organization_o1", "user-1", baseTime.Add(3*time.Hour))
	createMembership(t, repo, "team_t1", "user-1", baseTime.Add(3*time.Hour))

	page, err := repo.ListByUserID(ctx, "user-1", ports.ListByUserOptions{MergedConversations: true}, common.PageRequest{})

	require.NoError(t, err)
	assert.Equal(t, []string{"dm-recent", "group_mid", "group_old"}, entityIDs(page))
}

func TestMembershipRepository_ListByUserIDSingleTypeMostRecentFirst(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	ctx := context.Background()

	createMembership(t, repo, "team_a", "user-1", baseTime)
	createMembership(t, repo, "team_b", "user-1", baseTime.Add(time.Minute))
	createMembership(t, repo, "organization_o1", "user-1", baseTime.Add(time.Hour))

	page, err := repo.ListByUserID(ctx, "user-1", ports.ListByUserOptions{Type: valueobjects.MembershipTypeTeam}, common.PageRequest{})

	require.NoError(t, err)
	assert.Equal(t, []string{"team_b", "team_a"}, entityIDs(page))
}

func TestMembershipRepository_ListByUserIDAllTypes(t *testing.T) {
	repo, fake := newTestMembershipRepository(t)
	ctx := context.Background()

	createMembership(t, repo, "team_a", "user-1", baseTime)
	createMembership(t, repo, "group_b", "user-1", baseTime)
	createMembership(t, repo, "team_a", "user-2", baseTime)

	// Other records sharing the table must not leak into the listing.
	userItem, err := NewItemCodec().EncodeUser(entities.User{ID: "user-1", Name: "Ada", CreatedAt: baseTime})
	require.NoError(t, err)
	_, err = fake.PutItem(ctx, putInput(userItem))
	require.NoError(t, err)

	page, err := repo.ListByUserID(ctx, "user-1", ports.ListByUserOptions{}, common.PageRequest{})

	require.NoError(t, err)
	assert.Equal(t, []string{"group_b", "team_a"}, entityIDs(page))
}

func TestMembershipRepository_ListByUserIDRejectsInvalidOptions(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	ctx := context.Background()

	_, err := repo.ListByUserID(ctx, "user-1", ports.ListByUserOptions{Type: valueobjects.MembershipTypeTeam, SortByDueAt: true}, common.PageRequest{})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = repo.ListByUserID(ctx, "user-1", ports.ListByUserOptions{Type: "Club"}, common.PageRequest{})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = repo.ListByUserID(ctx, "user-1", ports.ListByUserOptions{}, common.PageRequest{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestMembershipRepository_UpdateRecomputesActivityKeys(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	ctx := context.Background()

	createMembership(t, repo, "group_a", "user-1", baseTime)
	createMembership(t, repo, "group_b", "user-1", baseTime.Add(time.Minute))

	bumped := baseTime.Add(time.Hour)
	updated, err := repo.Update(ctx, "group_a", "user-1", entities.MembershipUpdate{ActiveAt: &bumped})
	require.NoError(t, err)
	assert.True(t, bumped.Equal(updated.ActiveAt))

	merged, err := repo.ListByUserID(ctx, "user-1", ports.ListByUserOptions{MergedConversations: true}, common.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"group_a", "group_b"}, entityIDs(merged))

	byType, err := repo.ListByUserID(ctx, "user-1", ports.ListByUserOptions{Type: valueobjects.MembershipTypeGroup}, common.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"group_a", "group_b"}, entityIDs(byType))
}

func TestMembershipRepository_UpdateDueAtAndRole(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	ctx := context.Background()
	createMembership(t, repo, "meeting_m1", "user-1", baseTime)
	createMembership(t, repo, "team_t1", "user-1", baseTime)

	due := baseTime.Add(48 * time.Hour)
	admin := entities.RoleAdmin
	updated, err := repo.Update(ctx, "meeting_m1", "user-1", entities.MembershipUpdate{DueAt: &due, Role: &admin})
	require.NoError(t, err)
	require.NotNil(t, updated.DueAt)
	assert.True(t, due.Equal(*updated.DueAt))
	assert.Equal(t, entities.RoleAdmin, updated.Role)

	agenda, err := repo.ListByUserID(ctx, "user-1", ports.ListByUserOptions{Type: valueobjects.MembershipTypeMeeting, SortByDueAt: true}, common.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"meeting_m1"}, entityIDs(agenda))

	_, err = repo.Update(ctx, "team_t1", "user-1", entities.MembershipUpdate{DueAt: &due})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestMembershipRepository_UpdateErrors(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	ctx := context.Background()

	_, err := repo.Update(ctx, "group_g1", "user-1", entities.MembershipUpdate{})
	assert.True(t, pkgerrors.IsValidation(err))

	name := "Ada"
	_, err = repo.Update(ctx, "group_g1", "user-1", entities.MembershipUpdate{UserName: &name})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestMembershipRepository_ConcurrentIncrementsAreNotLost(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	ctx := context.Background()
	createMembership(t, repo, "group_g1", "user-1", baseTime)

	var tick int64
	repo.WithClock(func() time.Time {
		return baseTime.Add(time.Duration(atomic.AddInt64(&tick, 1)) * time.Second)
	})

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.IncrementUnreadMessages(ctx, "group_g1", "user-1")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := repo.Get(ctx, "group_g1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, n, got.UnseenMessages)
	assert.True(t, baseTime.Add(n*time.Second).Equal(got.ActiveAt))
}

func TestMembershipRepository_IncrementKeepsLaterActivity(t *testing.T) {
	repo, fake := newTestMembershipRepository(t)
	ctx := context.Background()
	createMembership(t, repo, "dm-1", "user-1", baseTime)

	earlier := baseTime.Add(time.Minute)
	later := baseTime.Add(2 * time.Minute)
	stamps := []time.Time{later, earlier}
	repo.WithClock(func() time.Time {
		next := stamps[0]
		stamps = stamps[1:]
		return next
	})

	require.NoError(t, repo.IncrementUnreadMessages(ctx, "dm-1", "user-1"))
	require.NoError(t, repo.IncrementUnreadMessages(ctx, "dm-1", "user-1"))

	got, err := repo.Get(ctx, "dm-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnseenMessages)
	assert.True(t, later.Equal(got.ActiveAt))

	items := fake.Items(testTableName)
	require.Len(t, items, 1)
	assert.Equal(t, "Membership#OneOnOne_Active#2024-05-01T12:02:00Z", stringAttr(t, items[0], "gsi2sk"))
	assert.Equal(t, "Membership#OneOnOneAndGroup_Active#2024-05-01T12:02:00Z", stringAttr(t, items[0], "gsi3sk"))
}

func TestMembershipRepository_IncrementMissingMembership(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)

	err := repo.IncrementUnreadMessages(context.Background(), "group_g1", "user-1")

	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestMembershipRepository_ResetUnreadMessagesLeavesActivityAlone(t *testing.T) {
	repo, _ := newTestMembershipRepository(t)
	ctx := context.Background()
	createMembership(t, repo, "group_g1", "user-1", baseTime)

	viewed := baseTime.Add(time.Hour)
	repo.WithClock(func() time.Time { return viewed })
	require.NoError(t, repo.IncrementUnreadMessages(ctx, "group_g1", "user-1"))

	viewed = baseTime.Add(2 * time.Hour)
	require.NoError(t, repo.ResetUnreadMessages(ctx, "group_g1", "user-1"))

	got, err := repo.Get(ctx, "group_g1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnseenMessages)
	require.NotNil(t, got.UserActiveAt)
	assert.True(t, viewed.Equal(*got.UserActiveAt))
	assert.True(t, baseTime.Add(time.Hour).Equal(got.ActiveAt))

	assert.True(t, pkgerrors.IsNotFound(repo.ResetUnreadMessages(ctx, "group_g2", "user-1")))
}

func TestMembershipRepository_Delete(t *testing.T) {
	repo, fake := newTestMembershipRepository(t)
	ctx := context.Background()
	createMembership(t, repo, "group_g1", "user-1", baseTime)

	require.NoError(t, repo.Delete(ctx, "group_g1", "user-1"))
	assert.Empty(t, fake.Items(testTableName))

	page, err := repo.ListByEntityID(ctx, "group_g1", common.PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	assert.True(t, pkgerrors.IsNotFound(repo.Delete(ctx, "group_g1", "user-1")))
}
