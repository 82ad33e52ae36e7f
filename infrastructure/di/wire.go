//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"chat-backend/application/ports"
	"chat-backend/infrastructure/config"
	"chat-backend/infrastructure/persistence/dynamodb"
	"chat-backend/infrastructure/websocket"

	"github.com/google/wire"
)

// AWSSet provides the SDK configuration and shared clients
var AWSSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideMetrics,
)

// StreamSet wires the stream processor deployable
var StreamSet = wire.NewSet(
	AWSSet,
	ProvideEventBridgeClient,
	ProvideTracer,
	ProvideMembershipRepository,
	ProvideEntityReaders,
	ProvidePublisher,
	ProvideIndexer,
	ProvideProcessors,
	ProvideRegistry,
	ProvideDispatcher,
	wire.Struct(new(StreamContainer), "*"),
)

// DeliverySet wires the connection directory and push delivery
var DeliverySet = wire.NewSet(
	AWSSet,
	ProvideListenerRepository,
	wire.Bind(new(ports.ListenerRepository), new(*dynamodb.ListenerRepository)),
	ProvidePusher,
	wire.Bind(new(ports.ConnectionPusher), new(*websocket.Pusher)),
	ProvideDeliveryService,
)

// InitializeStreamContainer creates a fully wired stream processor
func InitializeStreamContainer(ctx context.Context, cfg *config.Config) (*StreamContainer, error) {
	wire.Build(StreamSet)
	return nil, nil // Wire will replace this
}

// InitializeConnectionContainer creates a fully wired $connect/$disconnect handler
func InitializeConnectionContainer(ctx context.Context, cfg *config.Config) (*ConnectionContainer, error) {
	wire.Build(DeliverySet, ProvideJWTValidator, ProvideConnectRateLimiter, wire.Struct(new(ConnectionContainer), "*"))
	return nil, nil // Wire will replace this
}

// InitializeDeliveryContainer creates a fully wired fan-out subscriber
func InitializeDeliveryContainer(ctx context.Context, cfg *config.Config) (*DeliveryContainer, error) {
	wire.Build(DeliverySet, wire.Struct(new(DeliveryContainer), "*"))
	return nil, nil // Wire will replace this
}
