package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"memobot/internal/domain"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memobot.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleInteraction(id, providerID string) domain.Interaction {
	return domain.Interaction{
		ID:                id,
		UserID:            "user-1",
		ProviderMessageID: providerID,
		Type:              domain.TypeText,
		Content:           "buy milk",
		Direction:         domain.DirectionInbound,
		Status:            domain.StatusPending,
	}
}

func TestCreateInteraction_DuplicateProviderID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateInteraction(ctx, sampleInteraction("i1", "SM123")); err != nil {
		t.Fatal(err)
	}
	err := s.CreateInteraction(ctx, sampleInteraction("i2", "SM123"))
	if !errors.Is(err, domain.ErrDuplicateInteraction) {
		t.Fatalf("expected ErrDuplicateInteraction, got %v", err)
	}

	// The original row must be untouched.
	got, err := s.GetInteractionByProviderMessageID(ctx, "SM123")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "i1" {
		t.Errorf("expected original interaction i1, got %+v", got)
	}
}

func TestGetInteractionByProviderMessageID_Missing(t *testing.T) {
	s := testStore(t)
	got, err := s.GetInteractionByProviderMessageID(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestUpdateInteractionStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateInteraction(ctx, sampleInteraction("i1", "SM1")); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateInteractionStatus(ctx, "i1", domain.StatusProcessed); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetInteractionByProviderMessageID(ctx, "SM1")
	if got.Status != domain.StatusProcessed {
		t.Errorf("expected PROCESSED, got %s", got.Status)
	}

	if err := s.UpdateInteractionStatus(ctx, "missing", domain.StatusFailed); err == nil {
		t.Error("expected error for unknown interaction")
	}
}

func TestSaveAndGetMemory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateInteraction(ctx, sampleInteraction("i1", "SM1")); err != nil {
		t.Fatal(err)
	}
	mem := domain.Memory{ID: "m1", InteractionID: "i1", ExternalID: "ext-9", Content: "buy milk"}
	if err := s.SaveMemory(ctx, mem); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMemoryByInteraction(ctx, "i1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ExternalID != "ext-9" {
		t.Errorf("unexpected memory: %+v", got)
	}
}

func TestSaveMemory_OnePerInteraction(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateInteraction(ctx, sampleInteraction("i1", "SM1")); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveMemory(ctx, domain.Memory{ID: "m1", InteractionID: "i1", Content: "buy milk"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveMemory(ctx, domain.Memory{ID: "m2", InteractionID: "i1", Content: "buy milk"}); err == nil {
		t.Fatal("second memory for the same interaction must be rejected")
	}

	got, _ := s.GetMemoryByInteraction(ctx, "i1")
	if got == nil || got.ID != "m1" {
		t.Errorf("expected original memory m1, got %+v", got)
	}
}

func TestSearchMemories_KeywordMatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.CreateInteraction(ctx, sampleInteraction("i1", "SM1"))
	s.SaveMemory(ctx, domain.Memory{ID: "m1", InteractionID: "i1", Content: "dentist appointment friday"})

	results, err := s.SearchMemories(ctx, "dentist", "user-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	// Other users never see these rows.
	results, err = s.SearchMemories(ctx, "dentist", "someone-else", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no cross-user results, got %d", len(results))
	}
}

func TestListInteractions_OrderAndLimit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		in := sampleInteraction("", "")
		in.ID = string(rune('a' + i))
		in.ProviderMessageID = "SM" + in.ID
		if err := s.CreateInteraction(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListInteractions(ctx, "user-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 interactions, got %d", len(got))
	}
}
