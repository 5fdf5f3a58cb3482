// Package discord answers the /ask slash command over the interactions
// endpoint.
package discord

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/labstack/echo/v4"

	"github.com/memohai/docdesk/internal/channel"
	"github.com/memohai/docdesk/internal/config"
	"github.com/memohai/docdesk/internal/files"
	"github.com/memohai/docdesk/internal/metrics"
)

// Type is the Discord channel type.
const Type = channel.TypeDiscord

const (
	discordMaxMessageLength = 2000
	interactionsPath        = "/channels/discord/interactions"
	questionOption          = "question"
	interactionMaxBodyBytes = 1 << 20
)

type followupSession interface {
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordAdapter struct {
	logger    *slog.Logger
	cfg       config.DiscordConfig
	publicKey ed25519.PublicKey
	inbound   channel.InboundHandler

	mu         sync.Mutex
	session    followupSession
	newSession func(token string) (followupSession, error)
}

func NewDiscordAdapter(log *slog.Logger, cfg config.DiscordConfig, inbound channel.InboundHandler) (*DiscordAdapter, error) {
	if log == nil {
		log = slog.Default()
	}
	key, err := hex.DecodeString(strings.TrimSpace(cfg.PublicKey))
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("discord public key must be %d hex encoded bytes", ed25519.PublicKeySize)
	}
	return &DiscordAdapter{
		logger:    log.With(slog.String("adapter", "discord")),
		cfg:       cfg,
		publicKey: ed25519.PublicKey(key),
		inbound:   inbound,
		newSession: func(token string) (followupSession, error) {
			return discordgo.New("Bot " + token)
		},
	}, nil
}

func (a *DiscordAdapter) Type() channel.ChannelType {
	return Type
}

func (a *DiscordAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:         Type,
		DisplayName:  "Discord",
		TextLimit:    discordMaxMessageLength,
		WebhookPaths: []string{interactionsPath},
	}
}

func (a *DiscordAdapter) RegisterRoutes(e *echo.Echo) {
	e.POST(interactionsPath, a.Handle)
}

// Handle verifies and answers one interaction. Questions are acknowledged
// with a deferred response and answered later with a follow-up message.
func (a *DiscordAdapter) Handle(c echo.Context) error {
	req := c.Request()
	payload, err := files.ReadAllWithLimit(http.MaxBytesReader(c.Response(), req.Body, interactionMaxBodyBytes+1), interactionMaxBodyBytes)
	if err != nil {
		if errors.Is(err, files.ErrTooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
		}
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	req.Body = io.NopCloser(bytes.NewReader(payload))
	if !discordgo.VerifyInteraction(req, a.publicKey) {
		metrics.RecordWebhookEvent(Type.String(), "invalid_signature")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid request signature")
	}
	var interaction discordgo.Interaction
	if err := json.Unmarshal(payload, &interaction); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid interaction: %v", err))
	}

	switch interaction.Type {
	case discordgo.InteractionPing:
		return c.JSON(http.StatusOK, discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
	case discordgo.InteractionApplicationCommand:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported interaction type")
	}

	msg, ok := a.toInbound(&interaction)
	if !ok {
		return c.JSON(http.StatusOK, discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "Please provide a question.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
	}
	if err := a.inbound.HandleInbound(req.Context(), msg); err != nil {
		a.logger.Error("handle discord interaction failed", slog.String("user_id", msg.UserID), slog.Any("error", err))
	}
	return c.JSON(http.StatusOK, discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func (a *DiscordAdapter) toInbound(i *discordgo.Interaction) (channel.InboundMessage, bool) {
	data, ok := i.Data.(discordgo.ApplicationCommandInteractionData)
	if !ok {
		return channel.InboundMessage{}, false
	}
	var question string
	for _, opt := range data.Options {
		if opt.Name == questionOption && opt.Type == discordgo.ApplicationCommandOptionString {
			question = strings.TrimSpace(opt.StringValue())
		}
	}
	if question == "" {
		return channel.InboundMessage{}, false
	}
	var userID string
	switch {
	case i.Member != nil && i.Member.User != nil:
		userID = i.Member.User.ID
	case i.User != nil:
		userID = i.User.ID
	}
	if userID == "" {
		return channel.InboundMessage{}, false
	}
	return channel.InboundMessage{
		Channel:    Type,
		ConfigName: data.Name,
		Mode:       a.cfg.Mode,
		UserID:     "discord:" + userID,
		ChatID:     i.ChannelID,
		MessageID:  i.ID,
		Text:       question,
		ReplyToken: i.Token,
		Raw:        i,
	}, true
}

// Reply completes the deferred interaction with a follow-up message.
func (a *DiscordAdapter) Reply(_ context.Context, msg channel.InboundMessage, text string) error {
	interaction, ok := msg.Raw.(*discordgo.Interaction)
	if !ok || interaction == nil {
		return fmt.Errorf("discord reply needs the source interaction")
	}
	session, err := a.getOrCreateSession()
	if err != nil {
		return err
	}
	if _, err := session.FollowupMessageCreate(interaction, false, &discordgo.WebhookParams{Content: text}); err != nil {
		return fmt.Errorf("discord followup: %w", err)
	}
	return nil
}

func (a *DiscordAdapter) getOrCreateSession() (followupSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return a.session, nil
	}
	session, err := a.newSession(a.cfg.BotToken)
	if err != nil {
		a.logger.Error("create session failed", slog.Any("error", err))
		return nil, err
	}
	a.session = session
	return session, nil
}
