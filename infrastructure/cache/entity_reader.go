package cache

import (
	"context"
	"time"

	"chat-backend/application/ports"
	"chat-backend/domain/core/entities"
)

// EntityReader serves entity snapshots from memory for a short TTL. Only
// successful lookups are cached, so a missing entity is re-read every time.
type EntityReader struct {
	next  ports.EntityReader
	cache *InMemoryCache[entities.Entity]
}

// NewEntityReader wraps next. A non-positive ttl disables caching.
func NewEntityReader(next ports.EntityReader, ttl time.Duration) ports.EntityReader {
	if ttl <= 0 {
		return next
	}
	return &EntityReader{next: next, cache: NewInMemoryCache[entities.Entity](ttl)}
}

// GetEntity returns a copy of the cached snapshot or reads through.
func (r *EntityReader) GetEntity(ctx context.Context, entityID string) (*entities.Entity, error) {
	if entity, ok := r.cache.Get(entityID); ok {
		return &entity, nil
	}

	entity, err := r.next.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(entityID, *entity)
	return entity, nil
}
