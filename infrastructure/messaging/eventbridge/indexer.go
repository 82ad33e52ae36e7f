package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chat-backend/domain/core/entities"
	"chat-backend/domain/events"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings tunes the circuit breaker in front of the search indexer.
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerSettings returns the settings used in production.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Indexer implements ports.MessageIndexer by publishing a
// MessageIndexRequested event. Once the bus keeps rejecting index requests
// the breaker opens and calls fail fast until it half-opens again.
type Indexer struct {
	publisher *Publisher
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewIndexer creates a new Indexer
func NewIndexer(publisher *Publisher, settings BreakerSettings, logger *zap.Logger) *Indexer {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "search-index",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Indexer{
		publisher: publisher,
		breaker:   breaker,
		logger:    logger,
	}
}

// IndexMessage requests indexing of message.
func (i *Indexer) IndexMessage(ctx context.Context, message entities.Message) error {
	event := events.NewMessageIndexRequested(message)
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal index request: %w", err)
	}

	_, err = i.breaker.Execute(func() (interface{}, error) {
		return nil, i.publisher.put(ctx, events.MessageIndexRequestedType, string(detail), event.Timestamp)
	})
	if err != nil {
		return fmt.Errorf("search index request for message %s: %w", message.ID, err)
	}
	return nil
}

// State reports the breaker state.
func (i *Indexer) State() gobreaker.State {
	return i.breaker.State()
}
