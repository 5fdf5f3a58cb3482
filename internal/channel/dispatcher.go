package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/memohai/docdesk/internal/conversation"
	"github.com/memohai/docdesk/internal/metrics"
	"github.com/memohai/docdesk/internal/prune"
)

// FallbackReply is sent when the conversation cannot produce an answer.
const FallbackReply = "Sorry, I can't answer right now. Please try again later."

const asyncTimeout = 2 * time.Minute

// Asker answers a question for a user in a conversation mode.
type Asker interface {
	Ask(ctx context.Context, mode, userID, question string) (conversation.Answer, error)
}

// Dispatcher forwards inbound messages to the conversation and replies
// through the adapter that received them.
type Dispatcher struct {
	registry *Registry
	asker    Asker
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(log *slog.Logger, registry *Registry, asker Asker) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		asker:    asker,
		logger:   log.With(slog.String("service", "channel_dispatcher")),
	}
}

// HandleInbound answers msg and sends the reply. Messages without text are ignored.
func (d *Dispatcher) HandleInbound(ctx context.Context, msg InboundMessage) error {
	if !msg.HasText() {
		return nil
	}
	replier, ok := d.registry.Replier(msg.Channel)
	if !ok {
		metrics.RecordWebhookEvent(msg.Channel.String(), "no_replier")
		return fmt.Errorf("no replier registered for channel %s", msg.Channel)
	}

	text := FallbackReply
	answer, askErr := d.asker.Ask(ctx, msg.Mode, msg.UserID, msg.Text)
	if askErr != nil {
		d.logger.Error("conversation failed",
			slog.String("channel", msg.Channel.String()),
			slog.String("config", msg.ConfigName),
			slog.String("user_id", msg.UserID),
			slog.Any("error", askErr),
		)
	} else {
		text = answer.Text
	}

	limit := 0
	if desc, ok := d.registry.GetDescriptor(msg.Channel); ok {
		limit = desc.TextLimit
	}
	if err := replier.Reply(ctx, msg, prune.TruncateRunes(text, limit)); err != nil {
		metrics.RecordWebhookEvent(msg.Channel.String(), "reply_failed")
		return fmt.Errorf("reply via %s: %w", msg.Channel, err)
	}
	outcome := "answered"
	if askErr != nil {
		outcome = "fallback"
	}
	metrics.RecordWebhookEvent(msg.Channel.String(), outcome)
	return nil
}

// Async returns a handler that answers in the background so the webhook can
// be acknowledged immediately.
func (d *Dispatcher) Async() InboundHandler {
	return InboundHandlerFunc(func(ctx context.Context, msg InboundMessage) error {
		if !msg.HasText() {
			return nil
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), asyncTimeout)
			defer cancel()
			if err := d.HandleInbound(bg, msg); err != nil {
				d.logger.Error("async dispatch failed",
					slog.String("channel", msg.Channel.String()),
					slog.Any("error", err),
				)
			}
		}()
		return nil
	})
}

// Wait blocks until background replies finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
