package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"chat-backend/application/ports"
	"chat-backend/domain/core/entities"
	"chat-backend/domain/events"
	pkgerrors "chat-backend/pkg/errors"
	"chat-backend/pkg/observability"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentPushes bounds the PostToConnection calls in flight per user.
const maxConcurrentPushes = 16

// Envelope is the frame written to every live connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DeliveryReport counts the outcome of pushing one event.
type DeliveryReport struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Add accumulates another report.
func (r *DeliveryReport) Add(other DeliveryReport) {
	r.Delivered += other.Delivered
	r.Failed += other.Failed
}

// DeliveryService maintains the connection directory and pushes events to
// the live connections of a user.
type DeliveryService struct {
	listeners ports.ListenerRepository
	pusher    ports.ConnectionPusher
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewDeliveryService creates a new DeliveryService
func NewDeliveryService(listeners ports.ListenerRepository, pusher ports.ConnectionPusher, metrics *observability.Metrics, logger *zap.Logger) *DeliveryService {
	return &DeliveryService{
		listeners: listeners,
		pusher:    pusher,
		metrics:   metrics,
		logger:    logger,
	}
}

// PersistListener records a newly opened connection.
func (s *DeliveryService) PersistListener(ctx context.Context, listener entities.Listener) error {
	if listener.UserID == "" || listener.ListenerID == "" {
		return fmt.Errorf("invalid listener: userId and listenerId are required")
	}
	if listener.Transport == "" {
		listener.Transport = entities.TransportWebSocket
	}
	return s.listeners.Save(ctx, listener)
}

// DeleteListener forgets a closed connection.
func (s *DeliveryService) DeleteListener(ctx context.Context, transport, listenerID string) error {
	if transport == "" {
		transport = entities.TransportWebSocket
	}
	return s.listeners.Delete(ctx, transport, listenerID)
}

// GetListenersByUserID returns every live connection of a user.
func (s *DeliveryService) GetListenersByUserID(ctx context.Context, userID string) ([]entities.Listener, error) {
	return s.listeners.GetByUserID(ctx, userID)
}

// SendMessage pushes event to every listener of userID independently. A
// failed push is logged and counted; it is neither retried nor used to evict
// the listener. Only a directory lookup failure is returned.
func (s *DeliveryService) SendMessage(ctx context.Context, userID, event string, data json.RawMessage) (DeliveryReport, error) {
	listeners, err := s.listeners.GetByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to resolve listeners",
			zap.Error(err),
			zap.String("userId", userID),
		)
		return DeliveryReport{}, err
	}
	if len(listeners) == 0 {
		return DeliveryReport{}, nil
	}

	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return DeliveryReport{}, pkgerrors.NewInternalError(fmt.Sprintf("failed to marshal %s frame", event)).WithCause(err)
	}

	var (
		mu     sync.Mutex
		g      errgroup.Group
		report DeliveryReport
	)
	g.SetLimit(maxConcurrentPushes)
	for _, l := range listeners {
		g.Go(func() error {
			err := s.pusher.Push(ctx, l.ListenerID, frame)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				s.logger.Warn("Push to listener failed",
					zap.Error(err),
					zap.String("userId", userID),
					zap.String("listenerId", l.ListenerID),
					zap.String("event", event),
				)
				return nil
			}
			report.Delivered++
			return nil
		})
	}
	_ = g.Wait()

	return report, nil
}

// Deliver sends a fan-out message to each of its recipients. Directory
// failures for one recipient do not stop delivery to the others; they are
// returned together once every recipient has been attempted.
func (s *DeliveryService) Deliver(ctx context.Context, message events.FanoutMessage) (DeliveryReport, error) {
	var (
		total DeliveryReport
		errs  []error
	)
	for _, userID := range message.Recipients {
		report, err := s.SendMessage(ctx, userID, string(message.Topic), message.Payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", userID, err))
			continue
		}
		total.Add(report)
	}

	s.metrics.RecordDelivery(ctx, string(message.Topic), total.Delivered, total.Failed)
	s.logger.Info("Fan-out message delivered",
		zap.String("topic", string(message.Topic)),
		zap.Int("recipients", len(message.Recipients)),
		zap.Int("delivered", total.Delivered),
		zap.Int("failed", total.Failed),
	)
	return total, errors.Join(errs...)
}
