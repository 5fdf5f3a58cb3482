package channel

import (
	"context"

	"github.com/labstack/echo/v4"
)

// Adapter is the base interface every channel adapter must implement.
type Adapter interface {
	Type() ChannelType
	Descriptor() Descriptor
}

// Replier sends a text reply to the origin of an inbound message.
type Replier interface {
	Reply(ctx context.Context, msg InboundMessage, text string) error
}

// WebhookAdapter is an adapter that receives platform callbacks over HTTP.
type WebhookAdapter interface {
	Adapter
	RegisterRoutes(e *echo.Echo)
}

// InboundHandler processes a message parsed from a webhook.
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg InboundMessage) error
}

// InboundHandlerFunc adapts a function to InboundHandler.
type InboundHandlerFunc func(ctx context.Context, msg InboundMessage) error

func (f InboundHandlerFunc) HandleInbound(ctx context.Context, msg InboundMessage) error {
	return f(ctx, msg)
}
