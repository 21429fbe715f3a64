package domain

import (
	"context"
	"time"
)

// Memory is the persisted artifact derived from an interaction's content.
// ExternalID is the opaque identifier assigned by the semantic memory store.
type Memory struct {
	ID            string
	InteractionID string
	ExternalID    string
	Content       string
	CreatedAt     time.Time
}

// SearchResult is one ranked hit from the semantic memory store.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]string
}

// MemoryStore is the boundary to the hosted semantic memory service.
type MemoryStore interface {
	Create(ctx context.Context, content string, metadata map[string]string) (string, error)
	Search(ctx context.Context, query, userID string, limit int) ([]SearchResult, error)
	Delete(ctx context.Context, id string) error
	Healthy(ctx context.Context) error
}

// MediaProcessor is the boundary to the media transcription/storage service.
// A failed attachment is the caller's problem to log and drop, never to
// propagate.
type MediaProcessor interface {
	Process(ctx context.Context, ownerID, interactionID, url, contentType string) ([]StoredAttachment, error)
}
