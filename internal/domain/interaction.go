package domain

import (
	"strings"
	"time"
)

// InteractionType classifies what kind of content an interaction carried.
type InteractionType string

const (
	TypeText     InteractionType = "TEXT"
	TypeImage    InteractionType = "IMAGE"
	TypeAudio    InteractionType = "AUDIO"
	TypeVideo    InteractionType = "VIDEO"
	TypeDocument InteractionType = "DOCUMENT"
)

// Direction marks whether a message came from the user or went to them.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// InteractionStatus tracks intake progress. PENDING rows are retryable; the
// orchestrator flips them to PROCESSED only after the memory store accepted
// the content.
type InteractionStatus string

const (
	StatusPending   InteractionStatus = "PENDING"
	StatusProcessed InteractionStatus = "PROCESSED"
	StatusFailed    InteractionStatus = "FAILED"
)

// Interaction is the persisted record of one message exchange.
// ProviderMessageID is unique across all interactions; that constraint, not
// any in-process cache, is the idempotency source of truth.
type Interaction struct {
	ID                string
	UserID            string
	ProviderMessageID string
	Type              InteractionType
	Content           string
	Direction         Direction
	Status            InteractionStatus
	CreatedAt         time.Time
}

// contentTypeClasses is the closed MIME-class → interaction-type table.
// Unknown classes fall through to DOCUMENT.
var contentTypeClasses = map[string]InteractionType{
	"image": TypeImage,
	"audio": TypeAudio,
	"video": TypeVideo,
	"text":  TypeText,
}

// TypeForContent derives the interaction type: the first attachment's MIME
// class decides, a bare body is TEXT.
func TypeForContent(body string, media []MediaAttachment) InteractionType {
	if len(media) == 0 {
		return TypeText
	}
	class, _, _ := strings.Cut(media[0].ContentType, "/")
	if t, ok := contentTypeClasses[strings.ToLower(strings.TrimSpace(class))]; ok {
		return t
	}
	return TypeDocument
}

// Placeholder returns the canonical content for an interaction whose body is
// empty, e.g. "Image message" for a bare picture.
func (t InteractionType) Placeholder() string {
	switch t {
	case TypeImage:
		return "Image message"
	case TypeAudio:
		return "Audio message"
	case TypeVideo:
		return "Video message"
	case TypeDocument:
		return "Document message"
	default:
		return "Text message"
	}
}
