package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/docdesk/internal/channel"
)

// ChannelListResponse describes the enabled bot channels.
type ChannelListResponse struct {
	Channels []channel.Descriptor `json:"channels"`
}

// ChannelHandler mounts the webhook routes of every registered adapter.
type ChannelHandler struct {
	logger   *slog.Logger
	registry *channel.Registry
}

func NewChannelHandler(log *slog.Logger, registry *channel.Registry) *ChannelHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChannelHandler{
		logger:   log.With(slog.String("handler", "channel")),
		registry: registry,
	}
}

func (h *ChannelHandler) Register(e *echo.Echo) {
	e.GET("/channels", h.ListChannels)
	for _, adapter := range h.registry.List() {
		webhook, ok := adapter.(channel.WebhookAdapter)
		if !ok {
			continue
		}
		webhook.RegisterRoutes(e)
		desc := adapter.Descriptor()
		h.logger.Info("webhook routes registered",
			slog.String("channel", desc.Type.String()),
			slog.Any("paths", desc.WebhookPaths),
		)
	}
}

// ListChannels godoc
// @Summary List enabled bot channels
// @Tags channel
// @Success 200 {object} ChannelListResponse
// @Router /channels [get]
func (h *ChannelHandler) ListChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, ChannelListResponse{Channels: h.registry.ListDescriptors()})
}
