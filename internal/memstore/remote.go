// Package memstore talks to the hosted semantic memory service: create,
// search, and delete over opaque ids. A two-tier wrapper can fall back to the
// local keyword store when degraded-mode operation is explicitly enabled.
package memstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"memobot/internal/domain"
)

const defaultMaxRetries = 3

// RemoteConfig configures the remote memory store client.
type RemoteConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // per-request bound; zero means 15s
	MaxRetries int
	Logger     *slog.Logger
}

// Remote is the HTTP client for the hosted memory service.
type Remote struct {
	baseURL    string
	apiKey     string
	maxRetries int
	client     *http.Client
	logger     *slog.Logger
}

func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Remote{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
	}
}

type createRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type createResponse struct {
	ID string `json:"id"`
}

// Create stores content and returns the service-assigned opaque id.
func (r *Remote) Create(ctx context.Context, content string, metadata map[string]string) (string, error) {
	body, err := json.Marshal(createRequest{Content: content, Metadata: metadata})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	resp, err := r.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/memories", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("memory store create %d: %s", resp.StatusCode, string(respBody))
	}

	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("memory store returned empty id")
	}
	return out.ID, nil
}

type searchHit struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

// Search returns ranked hits for the query, filtered to one user's memories.
func (r *Remote) Search(ctx context.Context, query, userID string, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	resp, err := r.doWithRetry(ctx, func() (*http.Request, error) {
		q := url.Values{}
		q.Set("q", query)
		q.Set("user_id", userID)
		q.Set("limit", strconv.Itoa(limit))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/memories/search?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("memory store search %d: %s", resp.StatusCode, string(respBody))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	results := make([]domain.SearchResult, len(out.Results))
	for i, h := range out.Results {
		results[i] = domain.SearchResult{ID: h.ID, Content: h.Content, Score: h.Score, Metadata: h.Metadata}
	}
	return results, nil
}

// Delete removes a memory by its opaque id. A 404 is already-deleted, not an
// error.
func (r *Remote) Delete(ctx context.Context, id string) error {
	resp, err := r.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, r.baseURL+"/memories/"+url.PathEscape(id), nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("memory store delete %d: %s", resp.StatusCode, string(respBody))
	}
}

// Healthy probes the service health endpoint.
func (r *Remote) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	r.authorize(req)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("memory store unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (r *Remote) authorize(req *http.Request) {
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
}

// doWithRetry executes a request with exponential backoff and jitter for
// transient failures (network errors, 5xx, 429).
func (r *Remote) doWithRetry(ctx context.Context, buildReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * time.Second
			jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
			backoff := base + jitter
			r.logger.Warn("retrying memory store request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		r.authorize(req)

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			if attempt < r.maxRetries {
				r.logger.Warn("memory store request failed, will retry", "error", err)
				continue
			}
			return nil, fmt.Errorf("memory store request failed after %d retries: %w", r.maxRetries, err)
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
			if attempt < r.maxRetries {
				r.logger.Warn("memory store server error, will retry", "status", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("memory store error after %d retries: %w", r.maxRetries, lastErr)
		}

		return resp, nil
	}

	return nil, lastErr
}
