package di

import (
	"chat-backend/application/services"
	"chat-backend/application/streams"
	"chat-backend/infrastructure/config"
	"chat-backend/pkg/auth"

	"go.uber.org/zap"
)

// StreamContainer holds the stream processor dependencies
type StreamContainer struct {
	Config     *config.Config
	Logger     *zap.Logger
	Dispatcher *streams.Dispatcher
}

// ConnectionContainer holds the $connect/$disconnect dependencies
type ConnectionContainer struct {
	Config    *config.Config
	Logger    *zap.Logger
	Validator *auth.JWTValidator
	Limiter   *auth.DistributedRateLimiter
	Delivery  *services.DeliveryService
}

// DeliveryContainer holds the fan-out subscriber dependencies
type DeliveryContainer struct {
	Config   *config.Config
	Logger   *zap.Logger
	Delivery *services.DeliveryService
}
