// Package telegram receives Telegram Bot API webhook updates and replies with
// sendMessage.
package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/memohai/docdesk/internal/channel"
	"github.com/memohai/docdesk/internal/config"
	"github.com/memohai/docdesk/internal/files"
	"github.com/memohai/docdesk/internal/metrics"
)

// Type is the Telegram channel type.
const Type = channel.TypeTelegram

const (
	telegramMaxMessageLength = 4096
	webhookPath              = "/channels/telegram/webhook"
	secretTokenHeader        = "X-Telegram-Bot-Api-Secret-Token"
	webhookMaxBodyBytes      = 1 << 20
)

var setLoggerOnce sync.Once

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAdapter implements the webhook receiver and Replier for Telegram.
type TelegramAdapter struct {
	logger  *slog.Logger
	cfg     config.TelegramConfig
	inbound channel.InboundHandler

	mu     sync.RWMutex
	bot    botSender
	newBot func(token string) (botSender, error)
}

// NewTelegramAdapter creates a TelegramAdapter with the given logger.
func NewTelegramAdapter(log *slog.Logger, cfg config.TelegramConfig, inbound channel.InboundHandler) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	adapter := &TelegramAdapter{
		logger:  log.With(slog.String("adapter", "telegram")),
		cfg:     cfg,
		inbound: inbound,
		newBot: func(token string) (botSender, error) {
			return tgbotapi.NewBotAPI(token)
		},
	}
	setLoggerOnce.Do(func() {
		_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	})
	return adapter
}

// Type returns the Telegram channel type.
func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Telegram channel metadata.
func (a *TelegramAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:         Type,
		DisplayName:  "Telegram",
		TextLimit:    telegramMaxMessageLength,
		WebhookPaths: []string{webhookPath},
	}
}

func (a *TelegramAdapter) RegisterRoutes(e *echo.Echo) {
	e.POST(webhookPath, a.Handle)
}

// Handle receives one webhook update. The answer is sent later through Reply,
// so the update is acknowledged right away. Updates are only accepted with the
// secret token set through setWebhook.
func (a *TelegramAdapter) Handle(c echo.Context) error {
	want := strings.TrimSpace(a.cfg.WebhookSecret)
	if want == "" {
		metrics.RecordWebhookEvent(Type.String(), "missing_secret")
		return echo.NewHTTPError(http.StatusForbidden, "telegram webhook secret is not configured")
	}
	got := strings.TrimSpace(c.Request().Header.Get(secretTokenHeader))
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		metrics.RecordWebhookEvent(Type.String(), "invalid_secret")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid telegram secret token")
	}
	payload, err := files.ReadAllWithLimit(c.Request().Body, webhookMaxBodyBytes)
	if err != nil {
		if errors.Is(err, files.ErrTooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
		}
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	var update tgbotapi.Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid telegram update: %v", err))
	}
	msg, ok := a.toInbound(update)
	if !ok {
		return c.NoContent(http.StatusOK)
	}
	if err := a.inbound.HandleInbound(c.Request().Context(), msg); err != nil {
		a.logger.Error("handle telegram message failed", slog.String("user_id", msg.UserID), slog.Any("error", err))
	}
	return c.NoContent(http.StatusOK)
}

func (a *TelegramAdapter) toInbound(update tgbotapi.Update) (channel.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil || m.From.IsBot {
		return channel.InboundMessage{}, false
	}
	text := strings.TrimSpace(m.Text)
	if m.IsCommand() {
		// "/ask question" and "/start" carry the question in the arguments.
		text = strings.TrimSpace(m.CommandArguments())
	}
	if text == "" {
		return channel.InboundMessage{}, false
	}
	return channel.InboundMessage{
		Channel:    Type,
		ConfigName: "default",
		Mode:       a.cfg.Mode,
		UserID:     "telegram:" + strconv.FormatInt(m.From.ID, 10),
		ChatID:     strconv.FormatInt(m.Chat.ID, 10),
		MessageID:  strconv.Itoa(m.MessageID),
		Text:       text,
		Raw:        update,
	}, true
}

// Reply sends text to the chat the message came from, replying to it.
func (a *TelegramAdapter) Reply(_ context.Context, msg channel.InboundMessage, text string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.ChatID), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id: %w", err)
	}
	bot, err := a.getOrCreateBot()
	if err != nil {
		return err
	}
	out := tgbotapi.NewMessage(chatID, text)
	if id, err := strconv.Atoi(msg.MessageID); err == nil && id > 0 {
		out.ReplyToMessageID = id
	}
	if _, err := bot.Send(out); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (a *TelegramAdapter) getOrCreateBot() (botSender, error) {
	a.mu.RLock()
	bot := a.bot
	a.mu.RUnlock()
	if bot != nil {
		return bot, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bot != nil {
		return a.bot, nil
	}
	if strings.TrimSpace(a.cfg.BotToken) == "" {
		return nil, fmt.Errorf("telegram bot token is not configured")
	}
	bot, err := a.newBot(a.cfg.BotToken)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	a.bot = bot
	return bot, nil
}

// slogBotLogger routes the bot library's log output through slog.
type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
