package channel

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"memobot/internal/domain"
	"memobot/internal/intake"
)

// successBody is the 200 response for every handled delivery: new memory,
// recall query, and redelivery alike.
type successBody struct {
	Success  bool        `json:"success"`
	Message  string      `json:"message"`
	Response replyPart   `json:"response"`
	IDs      identifiers `json:"identifiers"`
}

type replyPart struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type identifiers struct {
	InteractionID string `json:"interactionId"`
	MemoryID      string `json:"memoryId,omitempty"`
}

// errorBody is the JSON shape for every non-200 outcome. Internal failures
// carry a generic message; detail stays in the logs.
type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	Timestamp  string `json:"timestamp"`
}

func writeSuccess(rw http.ResponseWriter, outcome *intake.Outcome) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	json.NewEncoder(rw).Encode(successBody{
		Success: true,
		Message: outcome.Message,
		Response: replyPart{
			Type:    "text",
			Content: outcome.Content,
		},
		IDs: identifiers{
			InteractionID: outcome.InteractionID,
			MemoryID:      outcome.MemoryID,
		},
	})
}

func writeError(rw http.ResponseWriter, reqErr *domain.RequestError) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(reqErr.HTTPStatus())
	json.NewEncoder(rw).Encode(errorBody{
		Error:     http.StatusText(reqErr.HTTPStatus()),
		Message:   reqErr.Message,
		Code:      string(reqErr.Code),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeRateLimited(rw http.ResponseWriter, retryAfter int) {
	reqErr := domain.RateLimited(retryAfter)
	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	rw.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(rw).Encode(errorBody{
		Error:      http.StatusText(http.StatusTooManyRequests),
		Message:    reqErr.Message,
		Code:       string(reqErr.Code),
		RetryAfter: retryAfter,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}
