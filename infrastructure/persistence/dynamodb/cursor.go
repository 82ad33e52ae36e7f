package dynamodb

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	pkgerrors "chat-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// EncodeCursor turns a LastEvaluatedKey into an opaque continuation token.
// Every key attribute in this table is a string.
func EncodeCursor(lastKey map[string]types.AttributeValue) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}

	var attrs map[string]string
	if err := attributevalue.UnmarshalMap(lastKey, &attrs); err != nil {
		return "", fmt.Errorf("failed to unmarshal last evaluated key: %w", err)
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor reverses EncodeCursor. An empty cursor yields a nil key.
func DecodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, pkgerrors.NewValidationError("invalid cursor encoding").WithCause(err)
	}
	var attrs map[string]string
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, pkgerrors.NewValidationError("invalid cursor format").WithCause(err)
	}
	if len(attrs) == 0 {
		return nil, pkgerrors.NewValidationError("invalid cursor format")
	}

	key, err := attributevalue.MarshalMap(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cursor key: %w", err)
	}
	return key, nil
}
