// Package intake orchestrates inbound message processing: idempotent
// interaction creation, media intake, classification, and hand-off to the
// semantic memory store.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"memobot/internal/classify"
	"memobot/internal/domain"
	"memobot/internal/media"
	"memobot/internal/metrics"
)

// Outcome is what the webhook channel turns into an HTTP response. Every
// path (new memory, query, duplicate) produces one.
type Outcome struct {
	Message       string // human-readable acknowledgement
	Content       string // reply body for the user
	InteractionID string
	MemoryID      string
	Intent        classify.Intent
	Duplicate     bool
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Store       domain.InteractionStore
	Memories    domain.MemoryStore
	Media       *media.Intake
	Classifier  *classify.Classifier
	CallTimeout time.Duration // bound on each external call; zero means 15s
	SearchLimit int
	Logger      *slog.Logger
}

// Orchestrator drives one inbound message through the intake state machine:
// RECEIVED → INTERACTION_CREATED → (MEDIA_PROCESSED) → MEMORY_STORED →
// FINALIZED, with FAILED reachable from any state.
type Orchestrator struct {
	store       domain.InteractionStore
	memories    domain.MemoryStore
	media       *media.Intake
	classifier  *classify.Classifier
	callTimeout time.Duration
	searchLimit int
	logger      *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 5
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classify.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		store:       cfg.Store,
		memories:    cfg.Memories,
		media:       cfg.Media,
		classifier:  cfg.Classifier,
		callTimeout: cfg.CallTimeout,
		searchLimit: cfg.SearchLimit,
		logger:      cfg.Logger,
	}
}

// HandleInbound processes one provider delivery end to end.
//
// The idempotency read up front is advisory; the unique constraint inside
// CreateInteraction is authoritative. An existing PROCESSED interaction
// short-circuits as a duplicate. An existing PENDING one is a redelivery of
// a message that failed mid-flight, so processing resumes against it rather
// than reporting a duplicate.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg domain.InboundMessage) (*Outcome, error) {
	userID := domain.NormalizeAddress(msg.From)
	itype := domain.TypeForContent(msg.Body, msg.Media)
	content := msg.Body
	if content == "" {
		content = itype.Placeholder()
	}

	interaction := domain.Interaction{
		ID:                uuid.NewString(),
		UserID:            userID,
		ProviderMessageID: msg.ProviderMessageID,
		Type:              itype,
		Content:           content,
		Direction:         domain.DirectionInbound,
		Status:            domain.StatusPending,
		CreatedAt:         msg.ReceivedAt,
	}

	existing, err := o.store.GetInteractionByProviderMessageID(ctx, msg.ProviderMessageID)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("idempotency read: %w", err))
	}
	if existing == nil {
		err = o.store.CreateInteraction(ctx, interaction)
		if errors.Is(err, domain.ErrDuplicateInteraction) {
			// Lost the race against a concurrent redelivery.
			existing, err = o.store.GetInteractionByProviderMessageID(ctx, msg.ProviderMessageID)
			if err != nil || existing == nil {
				return nil, domain.Internal(fmt.Errorf("re-fetch after duplicate insert: %w", err))
			}
		} else if err != nil {
			return nil, domain.Internal(fmt.Errorf("create interaction: %w", err))
		}
	}
	resumed := false
	if existing != nil {
		if existing.Status == domain.StatusProcessed {
			return o.duplicateOutcome(ctx, existing)
		}
		o.logger.Info("resuming interaction left retryable by earlier delivery",
			"interaction_id", existing.ID, "provider_message_id", existing.ProviderMessageID)
		interaction = *existing
		resumed = true
	}

	metrics.MessagesTotal.Inc()

	result := o.classifier.Classify(msg.Body)
	o.logger.Info("message classified",
		"interaction_id", interaction.ID,
		"intent", result.Intent,
		"trigger", result.Trigger,
	)

	if result.Intent == classify.IntentQuery {
		return o.handleQuery(ctx, interaction, msg.Body, result)
	}
	return o.handleMemory(ctx, interaction, msg, result, resumed)
}

// duplicateOutcome reuses the persisted outcome of the earlier delivery.
func (o *Orchestrator) duplicateOutcome(ctx context.Context, existing *domain.Interaction) (*Outcome, error) {
	metrics.DuplicatesTotal.Inc()
	o.logger.Info("duplicate delivery short-circuited",
		"interaction_id", existing.ID, "provider_message_id", existing.ProviderMessageID)

	out := &Outcome{
		Message:       "Message already processed",
		Content:       "I already have this message.",
		InteractionID: existing.ID,
		Duplicate:     true,
	}
	mem, err := o.store.GetMemoryByInteraction(ctx, existing.ID)
	if err == nil && mem != nil {
		out.MemoryID = mem.ID
	}
	return out, nil
}

func (o *Orchestrator) handleQuery(ctx context.Context, interaction domain.Interaction, query string, result classify.Result) (*Outcome, error) {
	metrics.QueriesTotal.Inc()

	searchCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	start := time.Now()
	hits, err := o.memories.Search(searchCtx, query, interaction.UserID, o.searchLimit)
	metrics.MemoryStoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		// The interaction stays retryable; redelivery will run the search again.
		return nil, domain.Internal(fmt.Errorf("memory search: %w", err))
	}

	if err := o.store.UpdateInteractionStatus(ctx, interaction.ID, domain.StatusProcessed); err != nil {
		return nil, domain.Internal(fmt.Errorf("finalize query interaction: %w", err))
	}

	return &Outcome{
		Message:       "Query processed",
		Content:       formatResults(hits),
		InteractionID: interaction.ID,
		Intent:        result.Intent,
	}, nil
}

func (o *Orchestrator) handleMemory(ctx context.Context, interaction domain.Interaction, msg domain.InboundMessage, result classify.Result, resumed bool) (*Outcome, error) {
	if resumed {
		// The earlier delivery may have died between persisting the memory
		// and the status flip; repeating the hand-off would store the same
		// content in the memory store twice.
		mem, err := o.store.GetMemoryByInteraction(ctx, interaction.ID)
		if err != nil {
			return nil, domain.Internal(fmt.Errorf("resume memory lookup: %w", err))
		}
		if mem != nil {
			return o.finalizeMemory(ctx, interaction, *mem, result, 0)
		}
	}

	var stored []domain.StoredAttachment
	if len(msg.Media) > 0 && o.media != nil {
		mediaCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		stored = o.media.Run(mediaCtx, interaction.UserID, interaction.ID, msg.Media)
		cancel()
		if dropped := len(msg.Media) - len(stored); dropped > 0 {
			metrics.MediaFailures.Add(int64(dropped))
		}
	}

	metadata := map[string]string{
		"user_id":        interaction.UserID,
		"interaction_id": interaction.ID,
		"type":           string(interaction.Type),
	}
	for i, att := range stored {
		metadata[fmt.Sprintf("attachment_%d", i)] = att.ID
	}

	createCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	start := time.Now()
	externalID, err := o.memories.Create(createCtx, interaction.Content, metadata)
	metrics.MemoryStoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		// Leave the interaction PENDING: the provider redelivers, and the
		// resumed pipeline retries the store hand-off.
		return nil, domain.Internal(fmt.Errorf("memory store create: %w", err))
	}

	mem := domain.Memory{
		ID:            uuid.NewString(),
		InteractionID: interaction.ID,
		ExternalID:    externalID,
		Content:       interaction.Content,
	}
	if err := o.store.SaveMemory(ctx, mem); err != nil {
		return nil, domain.Internal(fmt.Errorf("persist memory record: %w", err))
	}

	return o.finalizeMemory(ctx, interaction, mem, result, len(stored))
}

// finalizeMemory flips the interaction to PROCESSED and shapes the response.
// Shared between the normal path and a resumed redelivery whose memory was
// already persisted.
func (o *Orchestrator) finalizeMemory(ctx context.Context, interaction domain.Interaction, mem domain.Memory, result classify.Result, attachments int) (*Outcome, error) {
	if err := o.store.UpdateInteractionStatus(ctx, interaction.ID, domain.StatusProcessed); err != nil {
		return nil, domain.Internal(fmt.Errorf("finalize interaction: %w", err))
	}
	metrics.MemoriesStored.Inc()

	o.logger.Info("memory stored",
		"interaction_id", interaction.ID,
		"memory_id", mem.ID,
		"external_id", mem.ExternalID,
		"attachments", attachments,
	)

	return &Outcome{
		Message:       "Memory created",
		Content:       "Got it! I'll remember that.",
		InteractionID: interaction.ID,
		MemoryID:      mem.ID,
		Intent:        result.Intent,
	}, nil
}

func formatResults(hits []domain.SearchResult) string {
	if len(hits) == 0 {
		return "I couldn't find any memories matching that."
	}
	var sb strings.Builder
	sb.WriteString("Here's what I found:\n")
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, h.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}
