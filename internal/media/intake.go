package media

import (
	"context"
	"log/slog"

	"memobot/internal/domain"
)

// Intake runs attachments through a processor, dropping failures.
type Intake struct {
	processor domain.MediaProcessor
	logger    *slog.Logger
}

func NewIntake(processor domain.MediaProcessor, logger *slog.Logger) *Intake {
	return &Intake{processor: processor, logger: logger}
}

// Run processes each attachment independently and returns the ordered
// successful results. A failed attachment is logged and skipped; it never
// aborts its siblings or the surrounding interaction, so the result can be
// empty even when the request declared attachments.
func (in *Intake) Run(ctx context.Context, ownerID, interactionID string, attachments []domain.MediaAttachment) []domain.StoredAttachment {
	var stored []domain.StoredAttachment
	for i, att := range attachments {
		got, err := in.processor.Process(ctx, ownerID, interactionID, att.URL, att.ContentType)
		if err != nil {
			in.logger.Error("media attachment failed, dropping",
				"interaction_id", interactionID,
				"index", i,
				"content_type", att.ContentType,
				"error", err,
			)
			continue
		}
		stored = append(stored, got...)
	}
	return stored
}
