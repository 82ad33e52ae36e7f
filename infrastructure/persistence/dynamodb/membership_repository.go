package dynamodb

import (
	"context"
	"fmt"
	"time"

	"chat-backend/application/ports"
	"chat-backend/domain/core/entities"
	"chat-backend/domain/core/valueobjects"
	"chat-backend/pkg/common"
	pkgerrors "chat-backend/pkg/errors"
	"chat-backend/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// TableConfig names the single table and its secondary indexes.
type TableConfig struct {
	TableName       string
	GSI1IndexName   string
	GSI2IndexName   string
	GSI3IndexName   string
	DefaultPageSize int
}

// MembershipRepository implements ports.MembershipRepository on the single
// table. All four key sets are recomputed on every write that touches a field
// they are derived from.
type MembershipRepository struct {
	client DynamoDBAPI
	table  TableConfig
	codec  *ItemCodec
	now    func() time.Time
	logger *zap.Logger
}

var _ ports.MembershipRepository = (*MembershipRepository)(nil)

// NewMembershipRepository creates a new MembershipRepository
func NewMembershipRepository(client DynamoDBAPI, table TableConfig, logger *zap.Logger) *MembershipRepository {
	return &MembershipRepository{
		client: client,
		table:  table,
		codec:  NewItemCodec(),
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source used for activity timestamps.
func (r *MembershipRepository) WithClock(now func() time.Time) *MembershipRepository {
	r.now = now
	return r
}

// Create stores a new membership. The put is conditional on the primary key
// being free, so a second membership for the same pair is rejected.
func (r *MembershipRepository) Create(ctx context.Context, m *entities.Membership) error {
	if m == nil {
		return pkgerrors.NewValidationError("membership is required")
	}
	if err := utils.ValidateStruct(m); err != nil {
		return err
	}
	if derived := valueobjects.DeriveType(m.EntityID); m.Type != derived {
		return pkgerrors.NewValidationError(fmt.Sprintf("type %s does not match entity id %s (want %s)", m.Type, m.EntityID, derived))
	}
	if m.DueAt != nil && m.Type != valueobjects.MembershipTypeMeeting {
		return pkgerrors.NewValidationError("dueAt is only allowed on meeting memberships")
	}

	item, err := r.codec.EncodeMembership(*m)
	if err != nil {
		return err
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(attrPK))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build create expression: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.table.TableName),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return pkgerrors.NewAlreadyExistsError("membership").WithDetails(map[string]interface{}{
				"entityId": m.EntityID,
				"userId":   m.UserID,
			})
		}
		r.logger.Error("Failed to create membership",
			zap.Error(err),
			zap.String("entityId", m.EntityID),
			zap.String("userId", m.UserID),
		)
		return fmt.Errorf("failed to create membership: %w", err)
	}

	r.logger.Debug("Created membership",
		zap.String("entityId", m.EntityID),
		zap.String("userId", m.UserID),
		zap.String("type", m.Type.String()),
	)
	return nil
}

// Get retrieves the membership of userID in entityID
func (r *MembershipRepository) Get(ctx context.Context, entityID, userID string) (*entities.Membership, error) {
	pk, sk := MembershipPrimaryKey(userID, entityID)
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table.TableName),
		Key:       tableKey(pk, sk),
	})
	if err != nil {
		r.logger.Error("Failed to get membership",
			zap.Error(err),
			zap.String("entityId", entityID),
			zap.String("userId", userID),
		)
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("membership")
	}
	return r.codec.DecodeMembership(result.Item)
}

// Update applies a partial update. Sort keys are recomputed from the updated
// fields and the type derived from entityID; sibling fields are not re-read,
// so racing updates are last-writer-wins per attribute.
func (r *MembershipRepository) Update(ctx context.Context, entityID, userID string, update entities.MembershipUpdate) (*entities.Membership, error) {
	if update.IsEmpty() {
		return nil, pkgerrors.NewValidationError("membership update has no fields")
	}

	t := valueobjects.DeriveType(entityID)
	var upd expression.UpdateBuilder

	if update.UserName != nil {
		_, gsi1sk := MembershipGSI1(entityID, *update.UserName, userID)
		upd = upd.Set(expression.Name(attrUserName), expression.Value(*update.UserName)).
			Set(expression.Name(attrGSI1SK), expression.Value(gsi1sk))
	}

	if update.ActiveAt != nil {
		_, gsi2sk := MembershipGSI2(userID, t, *update.ActiveAt)
		upd = upd.Set(expression.Name(attrActiveAt), expression.Value(utils.FormatTimestamp(*update.ActiveAt))).
			Set(expression.Name(attrGSI2SK), expression.Value(gsi2sk))
		if t.InMergedFeed() {
			gsi3pk, gsi3sk, _ := MembershipGSI3(userID, t, *update.ActiveAt, nil)
			upd = upd.Set(expression.Name(attrGSI3PK), expression.Value(gsi3pk)).
				Set(expression.Name(attrGSI3SK), expression.Value(gsi3sk))
		}
	}

	if update.DueAt != nil {
		if t != valueobjects.MembershipTypeMeeting {
			return nil, pkgerrors.NewValidationError("dueAt is only allowed on meeting memberships")
		}
		gsi3pk, gsi3sk, _ := MembershipGSI3(userID, t, time.Time{}, update.DueAt)
		upd = upd.Set(expression.Name(attrDueAt), expression.Value(utils.FormatTimestamp(*update.DueAt))).
			Set(expression.Name(attrGSI3PK), expression.Value(gsi3pk)).
			Set(expression.Name(attrGSI3SK), expression.Value(gsi3sk))
	}

	if update.Role != nil {
		if *update.Role != entities.RoleAdmin && *update.Role != entities.RoleUser {
			return nil, pkgerrors.NewValidationError("role must be one of: Admin User")
		}
		upd = upd.Set(expression.Name(attrRole), expression.Value(string(*update.Role)))
	}

	expr, err := expression.NewBuilder().
		WithUpdate(upd).
		WithCondition(expression.AttributeExists(expression.Name(attrPK))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build update expression: %w", err)
	}

	pk, sk := MembershipPrimaryKey(userID, entityID)
	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table.TableName),
		Key:                       tableKey(pk, sk),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return nil, pkgerrors.NewNotFoundError("membership")
		}
		r.logger.Error("Failed to update membership",
			zap.Error(err),
			zap.String("entityId", entityID),
			zap.String("userId", userID),
		)
		return nil, fmt.Errorf("failed to update membership: %w", err)
	}

	return r.codec.DecodeMembership(result.Attributes)
}

// IncrementUnreadMessages adds one unseen message and moves the membership to
// the top of its activity feeds in a single conditional write. When a newer
// activity timestamp is already stored, only the counter is bumped, so
// activeAt never moves backwards and no increment is lost.
func (r *MembershipRepository) IncrementUnreadMessages(ctx context.Context, entityID, userID string) error {
	now := r.now()
	stamp := utils.FormatTimestamp(now)
	t := valueobjects.DeriveType(entityID)
	pk, sk := MembershipPrimaryKey(userID, entityID)

	_, gsi2sk := MembershipGSI2(userID, t, now)
	upd := expression.Add(expression.Name(attrUnseenMessages), expression.Value(1)).
		Set(expression.Name(attrActiveAt), expression.Value(stamp)).
		Set(expression.Name(attrGSI2SK), expression.Value(gsi2sk))
	if gsi3pk, gsi3sk, ok := MembershipGSI3(userID, t, now, nil); ok {
		upd = upd.Set(expression.Name(attrGSI3PK), expression.Value(gsi3pk)).
			Set(expression.Name(attrGSI3SK), expression.Value(gsi3sk))
	}
	cond := expression.AttributeExists(expression.Name(attrPK)).
		And(expression.Name(attrActiveAt).LessThanEqual(expression.Value(stamp)))

	err := r.conditionalUpdate(ctx, pk, sk, upd, cond)
	if err == nil {
		return nil
	}
	if !isConditionalCheckFailed(err) {
		r.logger.Error("Failed to increment unread messages",
			zap.Error(err),
			zap.String("entityId", entityID),
			zap.String("userId", userID),
		)
		return fmt.Errorf("failed to increment unread messages: %w", err)
	}

	// Either the row is gone or a later activity timestamp won the race.
	err = r.conditionalUpdate(ctx, pk, sk,
		expression.Add(expression.Name(attrUnseenMessages), expression.Value(1)),
		expression.AttributeExists(expression.Name(attrPK)),
	)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return pkgerrors.NewNotFoundError("membership")
		}
		r.logger.Error("Failed to increment unread messages",
			zap.Error(err),
			zap.String("entityId", entityID),
			zap.String("userId", userID),
		)
		return fmt.Errorf("failed to increment unread messages: %w", err)
	}
	return nil
}

// ResetUnreadMessages zeroes the counter and records when the user last
// viewed the conversation. Activity sort keys are left alone.
func (r *MembershipRepository) ResetUnreadMessages(ctx context.Context, entityID, userID string) error {
	pk, sk := MembershipPrimaryKey(userID, entityID)
	upd := expression.Set(expression.Name(attrUnseenMessages), expression.Value(0)).
		Set(expression.Name(attrUserActiveAt), expression.Value(utils.FormatTimestamp(r.now())))

	err := r.conditionalUpdate(ctx, pk, sk, upd, expression.AttributeExists(expression.Name(attrPK)))
	if err != nil {
		if isConditionalCheckFailed(err) {
			return pkgerrors.NewNotFoundError("membership")
		}
		r.logger.Error("Failed to reset unread messages",
			zap.Error(err),
			zap.String("entityId", entityID),
			zap.String("userId", userID),
		)
		return fmt.Errorf("failed to reset unread messages: %w", err)
	}
	return nil
}

// Delete removes a membership. Index entries are projections of the same
// item and disappear with it.
func (r *MembershipRepository) Delete(ctx context.Context, entityID, userID string) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name(attrPK))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build delete expression: %w", err)
	}

	pk, sk := MembershipPrimaryKey(userID, entityID)
	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.table.TableName),
		Key:                      tableKey(pk, sk),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return pkgerrors.NewNotFoundError("membership")
		}
		r.logger.Error("Failed to delete membership",
			zap.Error(err),
			zap.String("entityId", entityID),
			zap.String("userId", userID),
		)
		return fmt.Errorf("failed to delete membership: %w", err)
	}

	r.logger.Debug("Deleted membership",
		zap.String("entityId", entityID),
		zap.String("userId", userID),
	)
	return nil
}

// ListByEntityID lists the members of an entity through GSI-1, ordered by
// user name (or user id until the name is backfilled).
func (r *MembershipRepository) ListByEntityID(ctx context.Context, entityID string, page common.PageRequest) (common.Page[entities.Membership], error) {
	keyCond := expression.Key(attrGSI1PK).Equal(expression.Value(entityID)).
		And(expression.KeyBeginsWith(expression.Key(attrGSI1SK), userNameKeyPrefix))
	return r.queryPage(ctx, r.table.GSI1IndexName, keyCond, true, page)
}

// ListByUserID lists a user's memberships:
//   - MergedConversations: GSI-3 group and one-on-one feed, most recent first
//   - Type=Meeting with SortByDueAt: GSI-3 meetings, soonest due first
//   - any other Type: GSI-2 for that type, most recent first
//   - no Type: every membership from the base table
func (r *MembershipRepository) ListByUserID(ctx context.Context, userID string, opts ports.ListByUserOptions, page common.PageRequest) (common.Page[entities.Membership], error) {
	switch {
	case opts.MergedConversations:
		if opts.Type != "" || opts.SortByDueAt {
			return common.Page[entities.Membership]{}, pkgerrors.NewValidationError("merged conversations cannot be combined with a type")
		}
		keyCond := expression.Key(attrGSI3PK).Equal(expression.Value(userID)).
			And(expression.KeyBeginsWith(expression.Key(attrGSI3SK), mergedFeedKeyPrefix))
		return r.queryPage(ctx, r.table.GSI3IndexName, keyCond, false, page)

	case opts.SortByDueAt:
		if opts.Type != valueobjects.MembershipTypeMeeting {
			return common.Page[entities.Membership]{}, pkgerrors.NewValidationError("sortByDueAt is only supported for meetings")
		}
		keyCond := expression.Key(attrGSI3PK).Equal(expression.Value(userID)).
			And(expression.KeyBeginsWith(expression.Key(attrGSI3SK), meetingDueKeyPrefix))
		return r.queryPage(ctx, r.table.GSI3IndexName, keyCond, true, page)

	case opts.Type != "":
		if !opts.Type.IsValid() {
			return common.Page[entities.Membership]{}, pkgerrors.NewValidationError(fmt.Sprintf("unknown membership type %q", opts.Type))
		}
		keyCond := expression.Key(attrGSI2PK).Equal(expression.Value(userID)).
			And(expression.KeyBeginsWith(expression.Key(attrGSI2SK), GSI2Prefix(opts.Type)))
		return r.queryPage(ctx, r.table.GSI2IndexName, keyCond, false, page)

	default:
		keyCond := expression.Key(attrPK).Equal(expression.Value(userID)).
			And(expression.KeyBeginsWith(expression.Key(attrSK), MembershipKeyPrefix))
		return r.queryPage(ctx, "", keyCond, true, page)
	}
}

// ListMemberIDs pages through GSI-1 and returns every member's user id.
func (r *MembershipRepository) ListMemberIDs(ctx context.Context, entityID string) ([]string, error) {
	var ids []string
	page := common.PageRequest{Limit: common.MaxPageSize}
	for {
		result, err := r.ListByEntityID(ctx, entityID, page)
		if err != nil {
			return nil, err
		}
		for _, m := range result.Items {
			ids = append(ids, m.UserID)
		}
		if !result.HasMore() {
			return ids, nil
		}
		page.Cursor = result.NextCursor
	}
}

func (r *MembershipRepository) queryPage(ctx context.Context, indexName string, keyCond expression.KeyConditionBuilder, forward bool, page common.PageRequest) (common.Page[entities.Membership], error) {
	var empty common.Page[entities.Membership]

	startKey, err := DecodeCursor(page.Cursor)
	if err != nil {
		return empty, err
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return empty, fmt.Errorf("failed to build query expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.table.TableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(forward),
		Limit:                     aws.Int32(page.EffectiveLimit(r.table.DefaultPageSize)),
		ExclusiveStartKey:         startKey,
	}
	if indexName != "" {
		input.IndexName = aws.String(indexName)
	}

	result, err := r.client.Query(ctx, input)
	if err != nil {
		r.logger.Error("Failed to query memberships",
			zap.Error(err),
			zap.String("index", indexName),
		)
		return empty, fmt.Errorf("failed to query memberships: %w", err)
	}

	items := make([]entities.Membership, 0, len(result.Items))
	for _, item := range result.Items {
		m, err := r.codec.DecodeMembership(item)
		if err != nil {
			r.logger.Error("Failed to decode membership item",
				zap.Error(err),
				zap.String("index", indexName),
				zap.String("pk", keyAttr(item, attrPK)),
				zap.String("sk", keyAttr(item, attrSK)),
			)
			return empty, fmt.Errorf("failed to decode membership %s/%s: %w", keyAttr(item, attrPK), keyAttr(item, attrSK), err)
		}
		items = append(items, *m)
	}

	next, err := EncodeCursor(result.LastEvaluatedKey)
	if err != nil {
		return empty, err
	}
	return common.Page[entities.Membership]{Items: items, NextCursor: next}, nil
}

func (r *MembershipRepository) conditionalUpdate(ctx context.Context, pk, sk string, upd expression.UpdateBuilder, cond expression.ConditionBuilder) error {
	expr, err := expression.NewBuilder().WithUpdate(upd).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build update expression: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table.TableName),
		Key:                       tableKey(pk, sk),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	return err
}

// keyAttr returns the string value of name, or "" when absent.
func keyAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func tableKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: pk},
		attrSK: &types.AttributeValueMemberS{Value: sk},
	}
}
