// Package websocket pushes payloads to live API Gateway WebSocket
// connections.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgerrors "chat-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// ManagementAPI is the part of the API Gateway management client the pusher
// uses.
type ManagementAPI interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

var _ ManagementAPI = (*apigatewaymanagementapi.Client)(nil)

// NewManagementClient creates a management client for a WebSocket stage
// endpoint such as abc.execute-api.us-east-1.amazonaws.com/prod.
func NewManagementClient(cfg aws.Config, endpoint string) *apigatewaymanagementapi.Client {
	if !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

// Pusher implements ports.ConnectionPusher.
type Pusher struct {
	client ManagementAPI
	logger *zap.Logger
}

// NewPusher creates a new Pusher
func NewPusher(client ManagementAPI, logger *zap.Logger) *Pusher {
	return &Pusher{client: client, logger: logger}
}

// Push posts payload to one connection. Stale connections are reported like
// any other failure; the directory entry expires through its ttl.
func (p *Pusher) Push(ctx context.Context, connectionID string, payload []byte) error {
	_, err := p.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         payload,
	})
	if err == nil {
		return nil
	}

	code := "Unknown"
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}
	p.logger.Warn("Failed to push to connection",
		zap.Error(err),
		zap.String("connectionId", connectionID),
		zap.String("errorCode", code),
		zap.Bool("gone", IsGone(err)),
	)
	return pkgerrors.NewExternalError("apigateway", fmt.Errorf("push to connection %s: %w", connectionID, err)).
		WithDetails(map[string]interface{}{"connectionId": connectionID, "errorCode": code})
}

// IsGone reports whether err says the connection no longer exists.
func IsGone(err error) bool {
	var gone *apigwtypes.GoneException
	return errors.As(err, &gone)
}
