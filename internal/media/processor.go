// Package media registers inbound media attachments with the external
// media-processing service and tolerates per-attachment failure.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"memobot/internal/domain"
)

// ProcessorConfig configures the media processor client.
type ProcessorConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // per-attachment bound; zero means 30s
	Logger  *slog.Logger
}

// Processor is the HTTP client for the media-processing boundary.
type Processor struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Processor{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}
}

type processRequest struct {
	OwnerID       string `json:"owner_id"`
	InteractionID string `json:"interaction_id"`
	URL           string `json:"url"`
	ContentType   string `json:"content_type"`
}

type processResponse struct {
	Attachments []struct {
		ID          string `json:"id"`
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"attachments"`
}

// Process registers one attachment and returns the stored descriptors.
func (p *Processor) Process(ctx context.Context, ownerID, interactionID, url, contentType string) ([]domain.StoredAttachment, error) {
	body, err := json.Marshal(processRequest{
		OwnerID:       ownerID,
		InteractionID: interactionID,
		URL:           url,
		ContentType:   contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/media/process", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media processor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("media processor %d: %s", resp.StatusCode, string(respBody))
	}

	var out processResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode process response: %w", err)
	}
	stored := make([]domain.StoredAttachment, len(out.Attachments))
	for i, a := range out.Attachments {
		stored[i] = domain.StoredAttachment{ID: a.ID, URL: a.URL, ContentType: a.ContentType}
	}
	return stored, nil
}
