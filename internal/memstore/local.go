package memstore

import (
	"context"

	"github.com/google/uuid"

	"memobot/internal/domain"
)

// Local is the degraded-mode stand-in: content lands in the relational store
// only (which already holds a copy for every memory), and recall degrades to
// the store's keyword search. Create hands out a locally minted id with a
// prefix so it can never be confused with a remote opaque id.
type Local struct {
	store domain.InteractionStore
}

func NewLocal(store domain.InteractionStore) *Local {
	return &Local{store: store}
}

func (l *Local) Create(ctx context.Context, content string, metadata map[string]string) (string, error) {
	// The orchestrator persists the Memory row itself; minting an id here is
	// all the degraded tier has to do.
	return "local-" + uuid.NewString(), nil
}

func (l *Local) Search(ctx context.Context, query, userID string, limit int) ([]domain.SearchResult, error) {
	return l.store.SearchMemories(ctx, query, userID, limit)
}

func (l *Local) Delete(ctx context.Context, id string) error {
	// Local rows are owned by the relational store and removed through it.
	return nil
}

func (l *Local) Healthy(ctx context.Context) error { return nil }
