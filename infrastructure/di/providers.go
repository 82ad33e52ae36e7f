package di

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"chat-backend/application/ports"
	"chat-backend/application/services"
	"chat-backend/application/streams"
	"chat-backend/application/streams/processors"
	"chat-backend/infrastructure/cache"
	"chat-backend/infrastructure/config"
	"chat-backend/infrastructure/messaging/eventbridge"
	"chat-backend/infrastructure/persistence/dynamodb"
	"chat-backend/infrastructure/websocket"
	"chat-backend/pkg/auth"
	"chat-backend/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"go.uber.org/zap"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
		}
		zapCfg.Level = level
	}

	return zapCfg.Build()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.EnableTracing {
		// Every SDK call made inside a traced invocation becomes a subsegment.
		awsv2.AWSV2Instrumentor(&awsCfg.APIOptions)
	}
	return awsCfg, nil
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideMetrics creates the metrics recorder. With metrics disabled it has
// no client and records nothing.
func ProvideMetrics(awsCfg aws.Config, cfg *config.Config, logger *zap.Logger) *observability.Metrics {
	namespace := fmt.Sprintf("%s/%s", cfg.MetricsNamespace, cfg.Environment)
	if !cfg.EnableMetrics {
		return observability.NewMetrics(namespace, nil, logger)
	}
	return observability.NewMetrics(namespace, awscloudwatch.NewFromConfig(awsCfg), logger)
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer("chat-"+cfg.Environment, cfg.EnableTracing)
}

// ProvideMembershipRepository creates the membership store
func ProvideMembershipRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *dynamodb.MembershipRepository {
	return dynamodb.NewMembershipRepository(client, dynamodb.TableConfig{
		TableName:       cfg.TableName,
		GSI1IndexName:   cfg.GSI1IndexName,
		GSI2IndexName:   cfg.GSI2IndexName,
		GSI3IndexName:   cfg.GSI3IndexName,
		DefaultPageSize: cfg.DefaultPageSize,
	}, logger)
}

// ProvideEntityReaders creates the user, entity and message readers
func ProvideEntityReaders(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *dynamodb.EntityReaders {
	return dynamodb.NewEntityReaders(client, cfg.TableName, logger)
}

// ProvideListenerRepository creates the connection directory
func ProvideListenerRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *dynamodb.ListenerRepository {
	return dynamodb.NewListenerRepository(client, cfg.ConnectionsTable, cfg.ConnectionsIndexName, cfg.ConnectionTTL, logger)
}

// ProvidePublisher creates the EventBridge fan-out publisher
func ProvidePublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) *eventbridge.Publisher {
	return eventbridge.NewPublisher(client, cfg.EventBusName, cfg.EventSource, logger)
}

// ProvideIndexer creates the circuit-broken search index requester
func ProvideIndexer(publisher *eventbridge.Publisher, logger *zap.Logger) *eventbridge.Indexer {
	return eventbridge.NewIndexer(publisher, eventbridge.DefaultBreakerSettings(), logger)
}

// ProvideProcessors builds the change processor set
func ProvideProcessors(
	cfg *config.Config,
	memberships *dynamodb.MembershipRepository,
	readers *dynamodb.EntityReaders,
	publisher *eventbridge.Publisher,
	indexer *eventbridge.Indexer,
	logger *zap.Logger,
) []streams.Processor {
	return processors.DefaultSet(processors.Dependencies{
		TableName:   cfg.TableName,
		Memberships: memberships,
		Users:       readers,
		Entities:    cache.NewEntityReader(readers, cfg.EntityCacheTTL),
		Messages:    readers,
		Decoder:     dynamodb.NewItemCodec(),
		Publisher:   publisher,
		Indexer:     indexer,
		Logger:      logger,
	})
}

// ProvideRegistry creates the dispatch table
func ProvideRegistry(set []streams.Processor) (*streams.Registry, error) {
	return streams.NewRegistry(set...)
}

// ProvideDispatcher creates the stream dispatcher
func ProvideDispatcher(registry *streams.Registry, tracer *observability.Tracer, metrics *observability.Metrics, logger *zap.Logger) *streams.Dispatcher {
	return streams.NewDispatcher(registry, tracer, metrics, logger)
}

// ProvidePusher creates the WebSocket pusher for the configured stage
func ProvidePusher(awsCfg aws.Config, cfg *config.Config, logger *zap.Logger) *websocket.Pusher {
	return websocket.NewPusher(websocket.NewManagementClient(awsCfg, cfg.WebSocketEndpoint), logger)
}

// ProvideDeliveryService creates the delivery service
func ProvideDeliveryService(listeners ports.ListenerRepository, pusher ports.ConnectionPusher, metrics *observability.Metrics, logger *zap.Logger) *services.DeliveryService {
	return services.NewDeliveryService(listeners, pusher, metrics, logger)
}

// ProvideJWTValidator creates the token validator for $connect
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}

	switch {
	case cfg.JWTPublicKey != "":
		jwtCfg.SigningMethod = "RS256"
		jwtCfg.PublicKey = cfg.JWTPublicKey
	case cfg.JWTSecret != "":
		jwtCfg.SigningMethod = "HS256"
		jwtCfg.SecretKey = cfg.JWTSecret
	default:
		// No key configured: a per-process random secret nobody holds, so
		// every token is rejected.
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		jwtCfg.SigningMethod = "HS256"
		jwtCfg.SecretKey = hex.EncodeToString(secret)
	}

	return auth.NewJWTValidator(jwtCfg)
}

// ProvideConnectRateLimiter creates the per-user $connect throttle
func ProvideConnectRateLimiter(client *awsdynamodb.Client, cfg *config.Config) *auth.DistributedRateLimiter {
	return auth.NewConnectRateLimiter(client, cfg.ConnectionsTable, cfg.ConnectsPerMinute)
}
