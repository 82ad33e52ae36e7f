// Package main implements the WebSocket $disconnect Lambda. It is the only
// path that removes a connection from the directory.
package main

import (
	"context"
	"log"
	"net/http"

	"chat-backend/domain/core/entities"
	"chat-backend/infrastructure/config"
	"chat-backend/infrastructure/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

// ListenerRemover forgets closed connections.
type ListenerRemover interface {
	DeleteListener(ctx context.Context, transport, listenerID string) error
}

// DisconnectHandler handles $disconnect requests.
type DisconnectHandler struct {
	listeners ListenerRemover
	logger    *zap.Logger
}

// Handle deletes the connection's listener entry. A failure is reported to
// API Gateway; the entry then lingers until its ttl expires.
func (h *DisconnectHandler) Handle(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := request.RequestContext.ConnectionID

	if err := h.listeners.DeleteListener(ctx, entities.TransportWebSocket, connectionID); err != nil {
		h.logger.Error("Failed to remove connection",
			zap.Error(err),
			zap.String("connectionId", connectionID),
		)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}

	h.logger.Info("WebSocket connection closed", zap.String("connectionId", connectionID))
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

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

	h := &DisconnectHandler{listeners: container.Delivery, logger: container.Logger}
	lambda.Start(h.Handle)
}
