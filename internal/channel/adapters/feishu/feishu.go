// Package feishu receives Feishu/Lark event-subscription callbacks and replies
// through the IM message API.
package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/memohai/docdesk/internal/channel"
	"github.com/memohai/docdesk/internal/config"
	"github.com/memohai/docdesk/internal/files"
	"github.com/memohai/docdesk/internal/metrics"
)

// Type is the Feishu channel type.
const Type = channel.TypeFeishu

const (
	feishuMaxMessageLength       = 4000
	webhookPath                  = "/channels/feishu/webhook"
	webhookMaxBodyBytes    int64 = 1 << 20 // 1 MiB
)

var mentionPattern = regexp.MustCompile(`@_user_\d+`)

type messageReplier interface {
	Reply(ctx context.Context, req *larkim.ReplyMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.ReplyMessageResp, error)
}

// FeishuAdapter implements the webhook receiver and Replier for Feishu/Lark.
type FeishuAdapter struct {
	logger  *slog.Logger
	cfg     config.FeishuConfig
	inbound channel.InboundHandler

	mu        sync.Mutex
	replier   messageReplier
	newClient func(appID, appSecret string) messageReplier
}

// NewFeishuAdapter creates a FeishuAdapter.
func NewFeishuAdapter(log *slog.Logger, cfg config.FeishuConfig, inbound channel.InboundHandler) *FeishuAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &FeishuAdapter{
		logger:  log.With(slog.String("adapter", "feishu")),
		cfg:     cfg,
		inbound: inbound,
		newClient: func(appID, appSecret string) messageReplier {
			return lark.NewClient(appID, appSecret).Im.V1.Message
		},
	}
}

// Type returns the Feishu channel type.
func (a *FeishuAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Feishu channel metadata.
func (a *FeishuAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:         Type,
		DisplayName:  "Feishu",
		TextLimit:    feishuMaxMessageLength,
		WebhookPaths: []string{webhookPath},
	}
}

func (a *FeishuAdapter) RegisterRoutes(e *echo.Echo) {
	e.GET(webhookPath, a.HandleProbe)
	e.POST(webhookPath, a.Handle)
}

// HandleProbe responds to health/probe requests on the webhook URL.
func (a *FeishuAdapter) HandleProbe(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Handle processes Feishu/Lark event-subscription webhook requests.
func (a *FeishuAdapter) Handle(c echo.Context) error {
	payload, err := files.ReadAllWithLimit(c.Request().Body, webhookMaxBodyBytes)
	if err != nil {
		if errors.Is(err, files.ErrTooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", webhookMaxBodyBytes))
		}
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if err := validateWebhookCallbackAuth(payload, a.cfg); err != nil {
		metrics.RecordWebhookEvent(Type.String(), "invalid_token")
		return err
	}

	ctx := context.WithoutCancel(c.Request().Context())
	eventDispatcher := dispatcher.NewEventDispatcher(a.cfg.VerificationToken, a.cfg.EncryptKey)
	eventDispatcher.OnP2MessageReceiveV1(func(_ context.Context, event *larkim.P2MessageReceiveV1) error {
		msg, ok := a.toInbound(event)
		if !ok {
			return nil
		}
		if err := a.inbound.HandleInbound(ctx, msg); err != nil {
			a.logger.Error("handle feishu message failed", slog.String("user_id", msg.UserID), slog.Any("error", err))
		}
		return nil
	})

	resp := eventDispatcher.Handle(c.Request().Context(), &larkevent.EventReq{
		Header:     c.Request().Header,
		Body:       payload,
		RequestURI: c.Request().RequestURI,
	})
	if resp == nil {
		return c.NoContent(http.StatusOK)
	}
	for key, values := range resp.Header {
		for _, value := range values {
			c.Response().Header().Add(key, value)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)
	if len(resp.Body) == 0 {
		return nil
	}
	_, err = c.Response().Write(resp.Body)
	return err
}

func validateWebhookCallbackAuth(payload []byte, cfg config.FeishuConfig) error {
	if strings.TrimSpace(cfg.EncryptKey) != "" {
		// The SDK verifies the request signature when an encrypt key is set.
		return nil
	}
	var fuzzy larkevent.EventFuzzy
	if err := json.Unmarshal(payload, &fuzzy); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid feishu webhook payload: %v", err))
	}
	if larkevent.ReqType(strings.TrimSpace(fuzzy.Type)) == larkevent.ReqTypeChallenge {
		return nil
	}
	expectedToken := strings.TrimSpace(cfg.VerificationToken)
	if expectedToken == "" {
		return echo.NewHTTPError(http.StatusForbidden, "feishu webhook requires verification_token when encrypt_key is empty")
	}
	requestToken := strings.TrimSpace(fuzzy.Token)
	if fuzzy.Header != nil && strings.TrimSpace(fuzzy.Header.Token) != "" {
		requestToken = strings.TrimSpace(fuzzy.Header.Token)
	}
	if requestToken == "" || requestToken != expectedToken {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid feishu webhook token")
	}
	return nil
}

func (a *FeishuAdapter) toInbound(event *larkim.P2MessageReceiveV1) (channel.InboundMessage, bool) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return channel.InboundMessage{}, false
	}
	message := event.Event.Message
	if deref(message.MessageType) != larkim.MsgTypeText {
		return channel.InboundMessage{}, false
	}
	var content struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(deref(message.Content)), &content); err != nil {
		a.logger.Warn("unmarshal feishu content failed", slog.Any("error", err))
		return channel.InboundMessage{}, false
	}
	text := strings.TrimSpace(mentionPattern.ReplaceAllString(content.Text, ""))
	if text == "" {
		return channel.InboundMessage{}, false
	}
	openID := ""
	if sender := event.Event.Sender; sender != nil && sender.SenderId != nil {
		openID = deref(sender.SenderId.OpenId)
	}
	if openID == "" {
		return channel.InboundMessage{}, false
	}
	return channel.InboundMessage{
		Channel:    Type,
		ConfigName: "default",
		Mode:       a.cfg.Mode,
		UserID:     "feishu:" + openID,
		ChatID:     deref(message.ChatId),
		MessageID:  deref(message.MessageId),
		Text:       text,
		Raw:        event,
	}, true
}

// Reply answers the source message in its thread.
func (a *FeishuAdapter) Reply(ctx context.Context, msg channel.InboundMessage, text string) error {
	if strings.TrimSpace(msg.MessageID) == "" {
		return fmt.Errorf("feishu message id is required")
	}
	replier, err := a.getOrCreateReplier()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal text content: %w", err)
	}
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(msg.MessageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			Content(string(payload)).
			MsgType(larkim.MsgTypeText).
			Uuid(uuid.NewString()).
			Build()).
		Build()
	resp, err := replier.Reply(ctx, req)
	if err != nil {
		a.logger.Error("reply failed", slog.Any("error", err))
		return err
	}
	if resp == nil || !resp.Success() {
		code, detail := 0, ""
		if resp != nil {
			code, detail = resp.Code, resp.Msg
		}
		a.logger.Error("reply failed", slog.Int("code", code), slog.String("msg", detail))
		return fmt.Errorf("feishu reply failed: %s (code: %d)", detail, code)
	}
	return nil
}

func (a *FeishuAdapter) getOrCreateReplier() (messageReplier, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.replier != nil {
		return a.replier, nil
	}
	if strings.TrimSpace(a.cfg.AppID) == "" || strings.TrimSpace(a.cfg.AppSecret) == "" {
		return nil, fmt.Errorf("feishu app credentials are not configured")
	}
	a.replier = a.newClient(a.cfg.AppID, a.cfg.AppSecret)
	return a.replier, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
