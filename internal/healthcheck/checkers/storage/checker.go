package storagechecker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/memohai/docdesk/internal/files"
	"github.com/memohai/docdesk/internal/healthcheck"
)

const (
	checkTypeStorage = "storage.writable"
	probeKey         = ".healthcheck-probe"
)

// Checker verifies each storage root accepts writes.
type Checker struct {
	logger *slog.Logger
	stores map[string]files.Provider
}

// NewChecker creates a storage checker over the named providers.
func NewChecker(log *slog.Logger, stores map[string]files.Provider) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger: log.With(slog.String("checker", "healthcheck_storage")),
		stores: stores,
	}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	names := make([]string, 0, len(c.stores))
	for name := range c.stores {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]healthcheck.CheckResult, 0, len(names))
	for _, name := range names {
		store := c.stores[name]
		item := healthcheck.CheckResult{
			ID:       checkTypeStorage + "." + name,
			Type:     checkTypeStorage,
			Title:    "Storage " + name,
			Subtitle: store.Root(),
			Status:   healthcheck.StatusOK,
			Summary:  fmt.Sprintf("Storage %s is writable.", name),
		}
		if err := probe(ctx, store); err != nil {
			c.logger.Warn("storage probe failed", slog.String("store", name), slog.Any("error", err))
			item.Status = healthcheck.StatusError
			item.Summary = fmt.Sprintf("Storage %s is not writable.", name)
			item.Detail = err.Error()
		}
		checks = append(checks, item)
	}
	return checks
}

func probe(ctx context.Context, store files.Provider) error {
	if err := store.Put(ctx, probeKey, strings.NewReader("ok")); err != nil {
		return err
	}
	return store.Delete(ctx, probeKey)
}
