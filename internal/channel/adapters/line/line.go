// Package line receives LINE Messaging API webhooks, one route per configured
// channel, and answers with the reply token.
package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/memohai/docdesk/internal/channel"
	"github.com/memohai/docdesk/internal/config"
	"github.com/memohai/docdesk/internal/metrics"
)

// Type is the LINE channel type.
const Type = channel.TypeLine

const lineMaxMessageLength = 5000

type replyClient interface {
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
}

// LineAdapter serves every configured LINE channel.
type LineAdapter struct {
	logger   *slog.Logger
	channels []config.LineChannel
	inbound  channel.InboundHandler

	mu        sync.Mutex
	clients   map[string]replyClient // keyed by channel name
	newClient func(token string) (replyClient, error)
}

func NewLineAdapter(log *slog.Logger, channels []config.LineChannel, inbound channel.InboundHandler) *LineAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &LineAdapter{
		logger:   log.With(slog.String("adapter", "line")),
		channels: channels,
		inbound:  inbound,
		clients:  map[string]replyClient{},
		newClient: func(token string) (replyClient, error) {
			return messaging_api.NewMessagingApiAPI(token)
		},
	}
}

func (a *LineAdapter) Type() channel.ChannelType {
	return Type
}

func (a *LineAdapter) Descriptor() channel.Descriptor {
	paths := make([]string, 0, len(a.channels))
	for _, ch := range a.channels {
		paths = append(paths, ch.Path)
	}
	return channel.Descriptor{
		Type:         Type,
		DisplayName:  "LINE",
		TextLimit:    lineMaxMessageLength,
		WebhookPaths: paths,
	}
}

// RegisterRoutes mounts one POST route per configured channel.
func (a *LineAdapter) RegisterRoutes(e *echo.Echo) {
	for _, ch := range a.channels {
		if strings.TrimSpace(ch.Path) == "" {
			continue
		}
		e.POST(ch.Path, a.webhook(ch))
	}
}

func (a *LineAdapter) webhook(ch config.LineChannel) echo.HandlerFunc {
	return func(c echo.Context) error {
		if strings.TrimSpace(ch.ChannelSecret) == "" {
			a.logger.Error("line channel secret is not configured", slog.String("config", ch.Name))
			return c.String(http.StatusInternalServerError, "Internal server error")
		}
		cb, err := webhook.ParseRequest(ch.ChannelSecret, c.Request())
		if err != nil {
			if errors.Is(err, webhook.ErrInvalidSignature) {
				metrics.RecordWebhookEvent(Type.String(), "invalid_signature")
				return c.String(http.StatusBadRequest, "Invalid signature")
			}
			a.logger.Error("parse line webhook failed", slog.String("config", ch.Name), slog.Any("error", err))
			return c.String(http.StatusInternalServerError, "Internal server error")
		}

		ctx := c.Request().Context()
		for _, event := range cb.Events {
			msg, ok := toInbound(ch, event)
			if !ok {
				continue
			}
			if err := a.inbound.HandleInbound(ctx, msg); err != nil {
				a.logger.Error("handle line message failed",
					slog.String("config", ch.Name),
					slog.String("user_id", msg.UserID),
					slog.Any("error", err),
				)
				return c.String(http.StatusInternalServerError, "Internal server error")
			}
		}
		return c.String(http.StatusOK, "OK")
	}
}

// toInbound keeps text messages sent by users and drops every other event.
func toInbound(ch config.LineChannel, event webhook.EventInterface) (channel.InboundMessage, bool) {
	var me webhook.MessageEvent
	switch e := event.(type) {
	case webhook.MessageEvent:
		me = e
	case *webhook.MessageEvent:
		if e == nil {
			return channel.InboundMessage{}, false
		}
		me = *e
	default:
		return channel.InboundMessage{}, false
	}

	var text, messageID string
	switch m := me.Message.(type) {
	case webhook.TextMessageContent:
		text, messageID = m.Text, m.Id
	case *webhook.TextMessageContent:
		if m == nil {
			return channel.InboundMessage{}, false
		}
		text, messageID = m.Text, m.Id
	default:
		return channel.InboundMessage{}, false
	}

	var userID string
	switch s := me.Source.(type) {
	case webhook.UserSource:
		userID = s.UserId
	case *webhook.UserSource:
		if s != nil {
			userID = s.UserId
		}
	}
	if strings.TrimSpace(userID) == "" {
		return channel.InboundMessage{}, false
	}

	return channel.InboundMessage{
		Channel:    Type,
		ConfigName: ch.Name,
		Mode:       ch.Mode,
		UserID:     userID,
		ChatID:     userID,
		MessageID:  messageID,
		Text:       text,
		ReplyToken: me.ReplyToken,
		Raw:        me,
	}, true
}

// Reply answers with the reply token of msg through the channel it arrived on.
func (a *LineAdapter) Reply(_ context.Context, msg channel.InboundMessage, text string) error {
	if strings.TrimSpace(msg.ReplyToken) == "" {
		return fmt.Errorf("line reply token is required")
	}
	client, err := a.client(msg.ConfigName)
	if err != nil {
		return err
	}
	_, err = client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: msg.ReplyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: text},
		},
	})
	if err != nil {
		return fmt.Errorf("line reply: %w", err)
	}
	return nil
}

func (a *LineAdapter) client(name string) (replyClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.clients[name]; ok {
		return c, nil
	}
	var token string
	for _, ch := range a.channels {
		if ch.Name == name {
			token = ch.ChannelToken
			break
		}
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("line channel %q has no access token", name)
	}
	c, err := a.newClient(token)
	if err != nil {
		a.logger.Error("create line client failed", slog.String("config", name), slog.Any("error", err))
		return nil, err
	}
	a.clients[name] = c
	return c, nil
}
