// Package main implements the WebSocket $connect Lambda. It authenticates
// the connection with a JWT and records it in the connection directory.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"chat-backend/application/services"
	"chat-backend/domain/core/entities"
	"chat-backend/infrastructure/config"
	"chat-backend/infrastructure/di"
	"chat-backend/pkg/auth"
	"chat-backend/pkg/common"
	pkgerrors "chat-backend/pkg/errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

// TokenValidator checks a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// RateLimiter counts connect attempts per user.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Limit() string
}

// ListenerStore persists new connections.
type ListenerStore interface {
	PersistListener(ctx context.Context, listener entities.Listener) error
}

// ConnectHandler handles $connect requests.
type ConnectHandler struct {
	validator TokenValidator
	limiter   RateLimiter
	listeners ListenerStore
	logger    *zap.Logger
	now       func() time.Time
}

// NewConnectHandler creates a new ConnectHandler
func NewConnectHandler(validator TokenValidator, limiter RateLimiter, listeners ListenerStore, logger *zap.Logger) *ConnectHandler {
	return &ConnectHandler{
		validator: validator,
		limiter:   limiter,
		listeners: listeners,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle authenticates and registers one connection.
func (h *ConnectHandler) Handle(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := request.RequestContext.ConnectionID

	claims, err := h.authenticate(request)
	if pkgerrors.IsUnauthorized(err) {
		h.logger.Info("WebSocket authentication failed",
			zap.Error(err),
			zap.String("connectionId", connectionID),
		)
		return response(http.StatusUnauthorized, map[string]string{"error": "unauthorized"}), nil
	}
	ctx = common.WithUserID(ctx, claims.UserID)

	allowed, err := h.limiter.Allow(ctx, claims.UserID)
	if err != nil {
		h.logger.Warn("Connect rate limiter unavailable", zap.Error(err), zap.String("userId", claims.UserID))
	}
	if !allowed {
		h.logger.Info("WebSocket connect throttled",
			zap.String("connectionId", connectionID),
			zap.String("userId", claims.UserID),
			zap.String("limit", h.limiter.Limit()),
		)
		resp := response(http.StatusTooManyRequests, map[string]string{"error": "too many connections"})
		resp.Headers = map[string]string{"X-RateLimit-Limit": h.limiter.Limit()}
		return resp, nil
	}

	listener := entities.Listener{
		UserID:      claims.UserID,
		Transport:   entities.TransportWebSocket,
		ListenerID:  connectionID,
		ConnectedAt: h.now().UTC(),
	}
	if err := h.listeners.PersistListener(ctx, listener); err != nil {
		h.logger.Error("Failed to store connection",
			zap.Error(err),
			zap.String("connectionId", connectionID),
			zap.String("userId", claims.UserID),
		)
		return response(http.StatusInternalServerError, map[string]string{"error": "internal server error"}), nil
	}

	h.logger.Info("WebSocket connection established",
		zap.String("connectionId", connectionID),
		zap.String("userId", claims.UserID),
	)
	return response(http.StatusOK, map[string]string{"connectionId": connectionID, "userId": claims.UserID}), nil
}

// authenticate validates the request's token. Every failure is reported as
// an unauthorized error.
func (h *ConnectHandler) authenticate(request events.APIGatewayWebsocketProxyRequest) (*auth.Claims, error) {
	claims, err := h.validator.ValidateToken(extractToken(request))
	if err != nil {
		return nil, pkgerrors.NewUnauthorizedError("invalid $connect token").WithCause(err)
	}
	return claims, nil
}

// extractToken reads the token query parameter, falling back to the
// Authorization header.
func extractToken(request events.APIGatewayWebsocketProxyRequest) string {
	if token := request.QueryStringParameters["token"]; token != "" {
		return token
	}
	for name, value := range request.Headers {
		if strings.EqualFold(name, "Authorization") {
			return value
		}
	}
	return ""
}

func response(status int, body map[string]string) events.APIGatewayProxyResponse {
	payload, _ := json.Marshal(body)
	return events.APIGatewayProxyResponse{StatusCode: status, Body: string(payload)}
}

var _ ListenerStore = (*services.DeliveryService)(nil)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	container, err := di.InitializeConnectionContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize dependency container: %v", err)
	}
	defer container.Logger.Sync()

	h := NewConnectHandler(container.Validator, container.Limiter, container.Delivery, container.Logger)
	lambda.Start(h.Handle)
}
