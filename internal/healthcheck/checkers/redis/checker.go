package redischecker

import (
	"context"
	"log/slog"
	"time"

	"github.com/memohai/docdesk/internal/healthcheck"
)

const (
	checkTypeRedis      = "redis.ping"
	defaultCheckTimeout = 3 * time.Second
)

// Pinger pings the history store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker reports whether the history store answers.
type Checker struct {
	logger  *slog.Logger
	pinger  Pinger
	timeout time.Duration
}

// NewChecker creates a redis health checker.
func NewChecker(log *slog.Logger, pinger Pinger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:  log.With(slog.String("checker", "healthcheck_redis")),
		pinger:  pinger,
		timeout: defaultCheckTimeout,
	}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	item := healthcheck.CheckResult{
		ID:    checkTypeRedis,
		Type:  checkTypeRedis,
		Title: "Conversation history store",
	}
	if c.pinger == nil {
		item.Status = healthcheck.StatusWarn
		item.Summary = "History store is not configured."
		return []healthcheck.CheckResult{item}
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	started := time.Now()
	err := c.pinger.Ping(checkCtx)
	latency := time.Since(started)
	item.Metadata = map[string]any{"latency_ms": latency.Milliseconds()}
	if err != nil {
		c.logger.Warn("redis ping failed", slog.Any("error", err))
		item.Status = healthcheck.StatusError
		item.Summary = "History store is unreachable."
		item.Detail = err.Error()
		return []healthcheck.CheckResult{item}
	}
	item.Status = healthcheck.StatusOK
	item.Summary = "History store is reachable."
	return []healthcheck.CheckResult{item}
}
