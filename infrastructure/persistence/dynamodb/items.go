package dynamodb

import (
	"fmt"
	"time"

	"chat-backend/application/ports"
	"chat-backend/domain/core/entities"
	"chat-backend/domain/core/valueobjects"
	"chat-backend/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names referenced by expressions.
const (
	attrPK             = "pk"
	attrSK             = "sk"
	attrGSI1PK         = "gsi1pk"
	attrGSI1SK         = "gsi1sk"
	attrGSI2PK         = "gsi2pk"
	attrGSI2SK         = "gsi2sk"
	attrGSI3PK         = "gsi3pk"
	attrGSI3SK         = "gsi3sk"
	attrActiveAt       = "activeAt"
	attrDueAt          = "dueAt"
	attrRole           = "role"
	attrUserName       = "userName"
	attrUserActiveAt   = "userActiveAt"
	attrUnseenMessages = "unseenMessages"
)

// membershipItem represents the DynamoDB item structure for a membership
type membershipItem struct {
	PK             string `dynamodbav:"pk"`
	SK             string `dynamodbav:"sk"`
	GSI1PK         string `dynamodbav:"gsi1pk"`
	GSI1SK         string `dynamodbav:"gsi1sk"`
	GSI2PK         string `dynamodbav:"gsi2pk"`
	GSI2SK         string `dynamodbav:"gsi2sk"`
	GSI3PK         string `dynamodbav:"gsi3pk,omitempty"`
	GSI3SK         string `dynamodbav:"gsi3sk,omitempty"`
	EntityType     string `dynamodbav:"entityType"`
	EntityID       string `dynamodbav:"entityId"`
	UserID         string `dynamodbav:"userId"`
	Type           string `dynamodbav:"type"`
	Role           string `dynamodbav:"role"`
	CreatedAt      string `dynamodbav:"createdAt"`
	ActiveAt       string `dynamodbav:"activeAt"`
	DueAt          string `dynamodbav:"dueAt,omitempty"`
	UserName       string `dynamodbav:"userName,omitempty"`
	UserActiveAt   string `dynamodbav:"userActiveAt,omitempty"`
	UnseenMessages *int   `dynamodbav:"unseenMessages,omitempty"`
}

// userItem represents the DynamoDB item structure for a user
type userItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	EntityType string `dynamodbav:"entityType"`
	ID         string `dynamodbav:"id"`
	Name       string `dynamodbav:"name,omitempty"`
	Username   string `dynamodbav:"username,omitempty"`
	Email      string `dynamodbav:"email,omitempty"`
	Phone      string `dynamodbav:"phone,omitempty"`
	ImageURL   string `dynamodbav:"imageUrl,omitempty"`
	CreatedAt  string `dynamodbav:"createdAt"`
}

// entityItem represents an organization, team, group, meeting or one-on-one.
// Its entityType is the membership type it is the target of.
type entityItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	EntityType string `dynamodbav:"entityType"`
	ID         string `dynamodbav:"id"`
	Name       string `dynamodbav:"name,omitempty"`
	CreatedBy  string `dynamodbav:"createdBy,omitempty"`
	DueAt      string `dynamodbav:"dueAt,omitempty"`
	CreatedAt  string `dynamodbav:"createdAt"`
}

// messageItem represents the DynamoDB item structure for a chat message
type messageItem struct {
	PK             string `dynamodbav:"pk"`
	SK             string `dynamodbav:"sk"`
	EntityType     string `dynamodbav:"entityType"`
	ID             string `dynamodbav:"id"`
	ConversationID string `dynamodbav:"conversationId"`
	SenderID       string `dynamodbav:"senderId"`
	Body           string `dynamodbav:"body"`
	CreatedAt      string `dynamodbav:"createdAt"`
}

// ItemCodec converts between domain snapshots and stored items. It also
// decodes change record images, which share the item layout.
type ItemCodec struct{}

// NewItemCodec creates a new ItemCodec
func NewItemCodec() *ItemCodec {
	return &ItemCodec{}
}

var _ ports.ImageDecoder = (*ItemCodec)(nil)

// EncodeMembership builds the full item of m, key attributes included.
func (c *ItemCodec) EncodeMembership(m entities.Membership) (map[string]types.AttributeValue, error) {
	keys := ComposeMembershipKeys(m)
	item := membershipItem{
		PK:         keys.PK,
		SK:         keys.SK,
		GSI1PK:     keys.GSI1PK,
		GSI1SK:     keys.GSI1SK,
		GSI2PK:     keys.GSI2PK,
		GSI2SK:     keys.GSI2SK,
		GSI3PK:     keys.GSI3PK,
		GSI3SK:     keys.GSI3SK,
		EntityType: entities.EntityTypeMembership,
		EntityID:   m.EntityID,
		UserID:     m.UserID,
		Type:       valueobjects.DeriveType(m.EntityID).String(),
		Role:       string(m.Role),
		CreatedAt:  utils.FormatTimestamp(m.CreatedAt),
		ActiveAt:   utils.FormatTimestamp(m.ActiveAt),
		DueAt:      formatOptional(m.DueAt),
		UserName:   m.UserName,
	}
	if valueobjects.DeriveType(m.EntityID).IsConversation() {
		unseen := m.UnseenMessages
		item.UnseenMessages = &unseen
		item.UserActiveAt = formatOptional(m.UserActiveAt)
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal membership: %w", err)
	}
	return av, nil
}

// DecodeMembership converts a stored item or stream image to a Membership.
func (c *ItemCodec) DecodeMembership(image ports.Image) (*entities.Membership, error) {
	var item membershipItem
	if err := attributevalue.UnmarshalMap(image, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal membership: %w", err)
	}
	if item.EntityID == "" || item.UserID == "" {
		return nil, fmt.Errorf("membership item is missing entityId or userId")
	}

	createdAt, err := parseRequired(item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid membership createdAt: %w", err)
	}
	activeAt, err := parseRequired(item.ActiveAt)
	if err != nil {
		return nil, fmt.Errorf("invalid membership activeAt: %w", err)
	}
	dueAt, err := parseOptional(item.DueAt)
	if err != nil {
		return nil, fmt.Errorf("invalid membership dueAt: %w", err)
	}
	userActiveAt, err := parseOptional(item.UserActiveAt)
	if err != nil {
		return nil, fmt.Errorf("invalid membership userActiveAt: %w", err)
	}

	m := &entities.Membership{
		EntityID:     item.EntityID,
		UserID:       item.UserID,
		Type:         valueobjects.DeriveType(item.EntityID),
		Role:         entities.Role(item.Role),
		CreatedAt:    createdAt,
		ActiveAt:     activeAt,
		DueAt:        dueAt,
		UserName:     item.UserName,
		UserActiveAt: userActiveAt,
	}
	if item.UnseenMessages != nil {
		m.UnseenMessages = *item.UnseenMessages
	}
	return m, nil
}

// EncodeUser builds the stored item of a user.
func (c *ItemCodec) EncodeUser(u entities.User) (map[string]types.AttributeValue, error) {
	pk, sk := UserKey(u.ID)
	av, err := attributevalue.MarshalMap(userItem{
		PK:         pk,
		SK:         sk,
		EntityType: entities.EntityTypeUser,
		ID:         u.ID,
		Name:       u.Name,
		Username:   u.Username,
		Email:      u.Email,
		Phone:      u.Phone,
		ImageURL:   u.ImageURL,
		CreatedAt:  utils.FormatTimestamp(u.CreatedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}
	return av, nil
}

// DecodeUser converts a stored item or stream image to a User.
func (c *ItemCodec) DecodeUser(image ports.Image) (*entities.User, error) {
	var item userItem
	if err := attributevalue.UnmarshalMap(image, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	createdAt, err := parseOptional(item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid user createdAt: %w", err)
	}

	u := &entities.User{
		ID:       item.ID,
		Name:     item.Name,
		Username: item.Username,
		Email:    item.Email,
		Phone:    item.Phone,
		ImageURL: item.ImageURL,
	}
	if createdAt != nil {
		u.CreatedAt = *createdAt
	}
	return u, nil
}

// EncodeEntity builds the stored item of a membership target.
func (c *ItemCodec) EncodeEntity(e entities.Entity) (map[string]types.AttributeValue, error) {
	pk, sk := EntityKey(e.ID)
	av, err := attributevalue.MarshalMap(entityItem{
		PK:         pk,
		SK:         sk,
		EntityType: valueobjects.DeriveType(e.ID).String(),
		ID:         e.ID,
		Name:       e.Name,
		CreatedBy:  e.CreatedBy,
		DueAt:      formatOptional(e.DueAt),
		CreatedAt:  utils.FormatTimestamp(e.CreatedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}
	return av, nil
}

// DecodeEntity converts a stored item to an Entity.
func (c *ItemCodec) DecodeEntity(image ports.Image) (*entities.Entity, error) {
	var item entityItem
	if err := attributevalue.UnmarshalMap(image, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	createdAt, err := parseOptional(item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid entity createdAt: %w", err)
	}
	dueAt, err := parseOptional(item.DueAt)
	if err != nil {
		return nil, fmt.Errorf("invalid entity dueAt: %w", err)
	}

	e := &entities.Entity{
		ID:        item.ID,
		Type:      valueobjects.DeriveType(item.ID),
		Name:      item.Name,
		CreatedBy: item.CreatedBy,
		DueAt:     dueAt,
	}
	if createdAt != nil {
		e.CreatedAt = *createdAt
	}
	return e, nil
}

// EncodeMessage builds the stored item of a message.
func (c *ItemCodec) EncodeMessage(m entities.Message) (map[string]types.AttributeValue, error) {
	pk, sk := MessageKey(m.ConversationID, m.ID)
	av, err := attributevalue.MarshalMap(messageItem{
		PK:             pk,
		SK:             sk,
		EntityType:     entities.EntityTypeMessage,
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		CreatedAt:      utils.FormatTimestamp(m.CreatedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return av, nil
}

// DecodeMessage converts a stored item or stream image to a Message.
func (c *ItemCodec) DecodeMessage(image ports.Image) (*entities.Message, error) {
	var item messageItem
	if err := attributevalue.UnmarshalMap(image, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if item.ID == "" || item.ConversationID == "" {
		return nil, fmt.Errorf("message item is missing id or conversationId")
	}
	createdAt, err := parseOptional(item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid message createdAt: %w", err)
	}

	m := &entities.Message{
		ID:             item.ID,
		ConversationID: item.ConversationID,
		SenderID:       item.SenderID,
		Body:           item.Body,
	}
	if createdAt != nil {
		m.CreatedAt = *createdAt
	}
	return m, nil
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return utils.FormatTimestamp(*t)
}

func parseRequired(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	return utils.ParseTimestamp(s)
}

func parseOptional(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := utils.ParseTimestamp(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
