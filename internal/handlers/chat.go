package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/memohai/docdesk/internal/conversation"
	"github.com/memohai/docdesk/internal/history"
)

const answerPrefix = "AI回答:\n"

// ChatSubmitRequest is the web chat form.
type ChatSubmitRequest struct {
	Text   string `form:"text" json:"text" validate:"required"`
	ChatID string `form:"chat_id" json:"chat_id"`
}

// ChatSubmitResponse carries the answer and the chat id to reuse.
type ChatSubmitResponse struct {
	Result string `json:"result"`
	ChatID string `json:"chat_id"`
}

// ChatHistoryResponse lists the stored turns of one chat.
type ChatHistoryResponse struct {
	ChatID   string            `json:"chat_id"`
	Messages []history.Message `json:"messages"`
}

type chatService interface {
	Ask(ctx context.Context, mode, userID, question string) (conversation.Answer, error)
	History(ctx context.Context, userID string) ([]history.Message, error)
	Reset(ctx context.Context, userID string) error
}

type ChatHandler struct {
	logger *slog.Logger
	chat   chatService
}

func NewChatHandler(log *slog.Logger, chat chatService) *ChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatHandler{
		logger: log.With(slog.String("handler", "chat")),
		chat:   chat,
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	e.POST("/chat-submit", h.Submit)
	e.GET("/chat/history/:chat_id", h.History)
	e.DELETE("/chat/history/:chat_id", h.Reset)
}

// Submit godoc
// @Summary Ask the assistant
// @Description The chat id keys the stored history; a new one is issued when omitted.
// @Tags chat
// @Param text formData string true "Question"
// @Param chat_id formData string false "Chat ID"
// @Success 200 {object} ChatSubmitResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /chat-submit [post]
func (h *ChatHandler) Submit(c echo.Context) error {
	var req ChatSubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := c.Validate(&req); err != nil {
		return err
	}
	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" {
		chatID = uuid.NewString()
	}
	answer, err := h.chat.Ask(c.Request().Context(), conversation.ModeWebChat, chatID, req.Text)
	if err != nil {
		if errors.Is(err, conversation.ErrEmptyQuestion) || errors.Is(err, history.ErrEmptyUser) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logger.Error("chat failed", slog.String("chat_id", chatID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "failed to get an answer")
	}
	return c.JSON(http.StatusOK, ChatSubmitResponse{
		Result: answerPrefix + answer.Text,
		ChatID: chatID,
	})
}

// History godoc
// @Summary Stored history of a chat
// @Tags chat
// @Param chat_id path string true "Chat ID"
// @Success 200 {object} ChatHistoryResponse
// @Failure 500 {object} ErrorResponse
// @Router /chat/history/{chat_id} [get]
func (h *ChatHandler) History(c echo.Context) error {
	chatID := strings.TrimSpace(c.Param("chat_id"))
	if chatID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chat id is required")
	}
	msgs, err := h.chat.History(c.Request().Context(), chatID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ChatHistoryResponse{ChatID: chatID, Messages: msgs})
}

// Reset godoc
// @Summary Forget the history of a chat
// @Tags chat
// @Param chat_id path string true "Chat ID"
// @Success 204
// @Failure 500 {object} ErrorResponse
// @Router /chat/history/{chat_id} [delete]
func (h *ChatHandler) Reset(c echo.Context) error {
	chatID := strings.TrimSpace(c.Param("chat_id"))
	if chatID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chat id is required")
	}
	if err := h.chat.Reset(c.Request().Context(), chatID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
