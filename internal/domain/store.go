package domain

import (
	"context"
	"errors"
)

// ErrDuplicateInteraction reports that an interaction with the same provider
// message id already exists. Callers treat this as a redelivery, not a failure.
var ErrDuplicateInteraction = errors.New("interaction already exists for provider message id")

// InteractionStore persists interactions and their derived memories.
type InteractionStore interface {
	// CreateInteraction inserts a new interaction. Returns
	// ErrDuplicateInteraction when the provider message id is already taken;
	// the unique index is the linearization point for concurrent redeliveries.
	CreateInteraction(ctx context.Context, in Interaction) error
	GetInteractionByProviderMessageID(ctx context.Context, providerMessageID string) (*Interaction, error)
	UpdateInteractionStatus(ctx context.Context, id string, status InteractionStatus) error
	ListInteractions(ctx context.Context, userID string, limit int) ([]Interaction, error)

	SaveMemory(ctx context.Context, mem Memory) error
	GetMemoryByInteraction(ctx context.Context, interactionID string) (*Memory, error)
	SearchMemories(ctx context.Context, query, userID string, limit int) ([]SearchResult, error)

	Close() error
}
