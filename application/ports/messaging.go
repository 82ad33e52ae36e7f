package ports

import (
	"context"

	"chat-backend/domain/core/entities"
	"chat-backend/domain/events"
)

// FanoutPublisher publishes one message to one topic per call. A failed
// publish is returned to the caller so the change record is redelivered.
type FanoutPublisher interface {
	Publish(ctx context.Context, message events.FanoutMessage) error
}

// MessageIndexer hands a message to the search index. Callers treat it as
// best effort.
type MessageIndexer interface {
	IndexMessage(ctx context.Context, message entities.Message) error
}

// ConnectionPusher pushes a payload to one live connection.
type ConnectionPusher interface {
	Push(ctx context.Context, listenerID string, payload []byte) error
}
