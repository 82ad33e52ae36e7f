package streams

import (
	"fmt"
	"strings"
	"time"

	"chat-backend/application/ports"
	"chat-backend/domain/core/entities"
	"chat-backend/domain/core/valueobjects"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// EventName is the kind of mutation a change record describes.
type EventName string

const (
	EventInsert EventName = "INSERT"
	EventModify EventName = "MODIFY"
	EventRemove EventName = "REMOVE"
)

// ChangeRecord is one captured mutation of a table item. Records may be
// redelivered, so everything derived from them must be reproducible.
type ChangeRecord struct {
	TableName               string
	EventID                 string
	EventName               EventName
	SequenceNumber          string
	ApproximateCreationTime time.Time
	OldImage                ports.Image
	NewImage                ports.Image
}

// Image returns the after-image, or the before-image for removals.
func (r ChangeRecord) Image() ports.Image {
	if r.EventName == EventRemove || r.NewImage == nil {
		return r.OldImage
	}
	return r.NewImage
}

// Attribute returns a string attribute of Image, or "" when absent.
func (r ChangeRecord) Attribute(name string) string {
	if v, ok := r.Image()[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// EntityType returns the record discriminator (User, Membership, Message, ...).
func (r ChangeRecord) EntityType() string {
	return r.Attribute("entityType")
}

// Subtype returns the entity-specific discriminator. Memberships are
// discriminated by the type derived from their entity id; other records
// have none.
func (r ChangeRecord) Subtype() string {
	if r.EntityType() == entities.EntityTypeMembership {
		return valueobjects.DeriveType(r.Attribute("entityId")).String()
	}
	return ""
}

// FromDynamoDBEvent converts a Lambda stream batch, preserving record order.
func FromDynamoDBEvent(event events.DynamoDBEvent) ([]ChangeRecord, error) {
	records := make([]ChangeRecord, 0, len(event.Records))
	for _, rec := range event.Records {
		record, err := FromDynamoDBEventRecord(rec)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// FromDynamoDBEventRecord converts a single Lambda stream record.
func FromDynamoDBEventRecord(rec events.DynamoDBEventRecord) (ChangeRecord, error) {
	oldImage, err := convertImage(rec.Change.OldImage)
	if err != nil {
		return ChangeRecord{}, fmt.Errorf("record %s old image: %w", rec.EventID, err)
	}
	newImage, err := convertImage(rec.Change.NewImage)
	if err != nil {
		return ChangeRecord{}, fmt.Errorf("record %s new image: %w", rec.EventID, err)
	}

	return ChangeRecord{
		TableName:               TableNameFromARN(rec.EventSourceArn),
		EventID:                 rec.EventID,
		EventName:               EventName(rec.EventName),
		SequenceNumber:          rec.Change.SequenceNumber,
		ApproximateCreationTime: rec.Change.ApproximateCreationDateTime.UTC(),
		OldImage:                oldImage,
		NewImage:                newImage,
	}, nil
}

// TableNameFromARN extracts the table name from a stream ARN of the form
// arn:aws:dynamodb:<region>:<account>:table/<name>/stream/<label>.
func TableNameFromARN(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

func convertImage(image map[string]events.DynamoDBAttributeValue) (ports.Image, error) {
	if len(image) == 0 {
		return nil, nil
	}
	out := make(ports.Image, len(image))
	for name, value := range image {
		av, err := convertAttribute(value)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = av
	}
	return out, nil
}

func convertAttribute(value events.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch value.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: value.String()}, nil
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: value.Number()}, nil
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: value.Binary()}, nil
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: value.Boolean()}, nil
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: value.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: value.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: value.BinarySet()}, nil
	case events.DataTypeList:
		list := value.List()
		out := make([]types.AttributeValue, 0, len(list))
		for _, v := range list {
			av, err := convertAttribute(v)
			if err != nil {
				return nil, err
			}
			out = append(out, av)
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		m := value.Map()
		out := make(map[string]types.AttributeValue, len(m))
		for k, v := range m {
			av, err := convertAttribute(v)
			if err != nil {
				return nil, err
			}
			out[k] = av
		}
		return &types.AttributeValueMemberM{Value: out}, nil
	default:
		return nil, fmt.Errorf("unsupported attribute data type %v", value.DataType())
	}
}
