package memstore

import (
	"context"
	"fmt"
	"log/slog"

	"memobot/internal/domain"
)

// TwoTier fronts the remote memory store with an optional local stand-in.
// The primary is always tried first; the fallback handles a primary failure
// only when degraded-mode operation was explicitly configured. Keeping the
// policy in one visible type makes it testable instead of an implicit
// catch-and-ignore inside callers.
type TwoTier struct {
	primary  domain.MemoryStore
	fallback domain.MemoryStore // nil unless degraded mode is enabled
	logger   *slog.Logger
}

// NewTwoTier wires the tiers. fallback may be nil, in which case primary
// failures propagate untouched.
func NewTwoTier(primary, fallback domain.MemoryStore, logger *slog.Logger) *TwoTier {
	return &TwoTier{primary: primary, fallback: fallback, logger: logger}
}

func (t *TwoTier) Create(ctx context.Context, content string, metadata map[string]string) (string, error) {
	id, err := t.primary.Create(ctx, content, metadata)
	if err == nil {
		return id, nil
	}
	if t.fallback == nil {
		return "", err
	}
	t.logger.Warn("memory store create failed, using degraded-mode fallback", "error", err)
	id, ferr := t.fallback.Create(ctx, content, metadata)
	if ferr != nil {
		return "", fmt.Errorf("fallback create after primary failure (%v): %w", err, ferr)
	}
	return id, nil
}

func (t *TwoTier) Search(ctx context.Context, query, userID string, limit int) ([]domain.SearchResult, error) {
	results, err := t.primary.Search(ctx, query, userID, limit)
	if err == nil {
		return results, nil
	}
	if t.fallback == nil {
		return nil, err
	}
	t.logger.Warn("memory store search failed, using degraded-mode fallback", "error", err)
	results, ferr := t.fallback.Search(ctx, query, userID, limit)
	if ferr != nil {
		return nil, fmt.Errorf("fallback search after primary failure (%v): %w", err, ferr)
	}
	return results, nil
}

func (t *TwoTier) Delete(ctx context.Context, id string) error {
	err := t.primary.Delete(ctx, id)
	if err == nil || t.fallback == nil {
		return err
	}
	t.logger.Warn("memory store delete failed, using degraded-mode fallback", "error", err)
	return t.fallback.Delete(ctx, id)
}

func (t *TwoTier) Healthy(ctx context.Context) error {
	if err := t.primary.Healthy(ctx); err == nil {
		return nil
	} else if t.fallback == nil {
		return err
	}
	return t.fallback.Healthy(ctx)
}
