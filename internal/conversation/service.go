// Package conversation merges stored history with a new question, asks the
// model and persists the exchange.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/docdesk/internal/history"
	"github.com/memohai/docdesk/internal/llm"
)

var (
	// ErrEmptyQuestion indicates a blank question.
	ErrEmptyQuestion = errors.New("question is required")
	// ErrUnknownMode indicates a mode without a system prompt.
	ErrUnknownMode = errors.New("unknown conversation mode")
)

// HistoryStore is the subset of the history client used here.
type HistoryStore interface {
	Get(ctx context.Context, userID string) ([]history.Message, error)
	Append(ctx context.Context, userID string, msgs ...history.Message) error
	Clear(ctx context.Context, userID string) error
}

// Options are the sampling settings sent with every completion. A nil
// Temperature or TopP leaves the provider default.
type Options struct {
	Model       string
	Temperature *float64
	TopP        *float64
}

// Answer is the outcome of one Ask call.
type Answer struct {
	Text   string
	Mode   string
	UserID string
	Cached bool
	Usage  llm.Usage
}

type Service struct {
	store    HistoryStore
	provider llm.Provider
	prompts  Prompts
	opts     Options
	logger   *slog.Logger
}

func NewService(log *slog.Logger, store HistoryStore, provider llm.Provider, prompts Prompts, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		provider: provider,
		prompts:  prompts,
		opts:     opts,
		logger:   log.With(slog.String("service", "conversation")),
	}
}

// Ask answers question for userID in the given mode.
func (s *Service) Ask(ctx context.Context, mode, userID, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	systemPrompt, ok := s.prompts.SystemPrompt(mode)
	if !ok {
		return Answer{}, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
	past, err := s.store.Get(ctx, userID)
	if err != nil {
		return Answer{}, fmt.Errorf("load history: %w", err)
	}

	messages := make([]llm.Message, 0, len(past)+2)
	if !hasSystemMessage(past) {
		messages = append(messages, llm.Message{Role: history.RoleSystem, Content: systemPrompt})
	}
	for _, m := range past {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: history.RoleUser, Content: question})

	req := llm.Request{
		Messages:    messages,
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
		TopP:        s.opts.TopP,
	}
	res, err := s.provider.Complete(ctx, req)
	if err != nil {
		return Answer{}, fmt.Errorf("ask model: %w", err)
	}
	text := strings.TrimSpace(res.Message.Content)

	if err := s.store.Append(ctx, userID,
		history.Message{Role: history.RoleUser, Content: question},
		history.Message{Role: history.RoleAssistant, Content: text},
	); err != nil {
		s.logger.Error("persist history failed",
			slog.String("mode", mode),
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
	s.logger.Info("question answered",
		slog.String("mode", mode),
		slog.String("user_id", userID),
		slog.Int("history", len(past)),
		slog.Bool("cached", res.Cached),
	)
	return Answer{
		Text:   text,
		Mode:   mode,
		UserID: userID,
		Cached: res.Cached,
		Usage:  res.Usage,
	}, nil
}

// History returns the stored conversation of userID.
func (s *Service) History(ctx context.Context, userID string) ([]history.Message, error) {
	return s.store.Get(ctx, userID)
}

// Reset drops the stored conversation of userID.
func (s *Service) Reset(ctx context.Context, userID string) error {
	return s.store.Clear(ctx, userID)
}

func hasSystemMessage(msgs []history.Message) bool {
	for _, m := range msgs {
		if m.Role == history.RoleSystem {
			return true
		}
	}
	return false
}
