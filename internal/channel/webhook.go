// Package channel exposes the inbound webhook surface of the gateway: the
// provider posts form-encoded message deliveries, and the pipeline runs
// signature verification, rate limiting, sanitization, and orchestration
// before shaping the JSON response.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"memobot/internal/domain"
	"memobot/internal/intake"
	"memobot/internal/metrics"
	"memobot/internal/ratelimit"
	"memobot/internal/sanitize"
)

const maxBodyBytes = 1 << 20 // 1MB max

// WebhookConfig configures the provider webhook channel.
type WebhookConfig struct {
	Port          int
	Path          string // webhook URL path (default: /webhook/messages)
	SigningSecret string // provider shared secret for signature verification
	PublicBaseURL string // externally visible base URL, part of the signed payload
	Limiter       *ratelimit.Limiter
	Orchestrator  *intake.Orchestrator
	Logger        *slog.Logger
}

// Webhook is the HTTP intake server for provider message deliveries.
type Webhook struct {
	port          int
	path          string
	signingSecret string
	publicBaseURL string
	limiter       *ratelimit.Limiter
	orchestrator  *intake.Orchestrator
	logger        *slog.Logger
	server        *http.Server
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Path == "" {
		cfg.Path = "/webhook/messages"
	}
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
	return &Webhook{
		port:          cfg.Port,
		path:          cfg.Path,
		signingSecret: cfg.SigningSecret,
		publicBaseURL: cfg.PublicBaseURL,
		limiter:       cfg.Limiter,
		orchestrator:  cfg.Orchestrator,
		logger:        cfg.Logger,
	}
}

// Start runs the webhook HTTP server until ctx is cancelled.
func (w *Webhook) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+w.path, w.handleInbound)
	mux.HandleFunc("GET /healthz", w.handleHealthz)
	mux.HandleFunc("GET /metrics", metrics.Collector.Handler())

	w.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", w.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	w.logger.Info("webhook server starting", "port", w.port, "path", w.path)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (w *Webhook) handleHealthz(rw http.ResponseWriter, r *http.Request) {
	if d := w.limiter.Check("ops", clientIP(r)); !d.Allowed {
		writeRateLimited(rw, d.RetryAfter)
		return
	}
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("ok"))
}

// handleInbound runs the full admission pipeline for one delivery:
// signature → rate limit → sanitize → orchestrate.
func (w *Webhook) handleInbound(rw http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.IntakeLatency.Observe(time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(rw, domain.Validation("cannot read request body"))
		return
	}
	defer r.Body.Close()

	sig := r.Header.Get("X-Provider-Signature")
	if !VerifySignature(w.signingSecret, w.signedURL(r), body, sig) {
		metrics.BadSignatures.Inc()
		w.logger.Warn("webhook signature rejected", "remote", r.RemoteAddr, "has_header", sig != "")
		writeError(rw, domain.Unauthorized("invalid or missing signature"))
		return
	}

	// The global and route tiers need no request content, so they gate
	// before parsing and malformed floods stay rate-limited. The identity
	// tier runs after the parse because it keys on the sender address.
	if d := w.limiter.CheckRoute("webhook"); !d.Allowed {
		metrics.RateLimitedTotal.Inc()
		writeRateLimited(rw, d.RetryAfter)
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		writeError(rw, domain.Validation("malformed form body"))
		return
	}

	msg, err := parseInbound(form, r.RemoteAddr)
	if err != nil {
		var reqErr *domain.RequestError
		if errors.As(err, &reqErr) {
			writeError(rw, reqErr)
			return
		}
		writeError(rw, domain.Validation(err.Error()))
		return
	}

	identity := domain.NormalizeAddress(msg.From)
	if identity == "" {
		identity = clientIP(r)
	}
	if d := w.limiter.CheckIdentity("webhook", identity); !d.Allowed {
		metrics.RateLimitedTotal.Inc()
		writeRateLimited(rw, d.RetryAfter)
		return
	}

	outcome, err := w.orchestrator.HandleInbound(r.Context(), *msg)
	if err != nil {
		w.logger.Error("intake failed", "provider_message_id", msg.ProviderMessageID, "error", err)
		var reqErr *domain.RequestError
		if errors.As(err, &reqErr) {
			writeError(rw, reqErr)
			return
		}
		writeError(rw, domain.Internal(err))
		return
	}

	writeSuccess(rw, outcome)
}

// parseInbound decodes and sanitizes the provider form fields into an
// InboundMessage. Sanitization happens here, on the raw untrusted values,
// and nowhere downstream.
func parseInbound(form url.Values, remoteAddr string) (*domain.InboundMessage, error) {
	fields := sanitize.Values(map[string]string{
		"MessageSid": form.Get("MessageSid"),
		"From":       form.Get("From"),
		"To":         form.Get("To"),
		"Body":       form.Get("Body"),
	})

	if fields["MessageSid"] == "" {
		return nil, domain.Validation("MessageSid is required")
	}
	if fields["From"] == "" {
		return nil, domain.Validation("From is required")
	}

	numMedia := 0
	if raw := form.Get("NumMedia"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, domain.Validation("NumMedia must be a non-negative integer")
		}
		numMedia = n
	}
	if numMedia > 10 {
		numMedia = 10
	}

	var media []domain.MediaAttachment
	for i := 0; i < numMedia; i++ {
		u := sanitize.String(form.Get(fmt.Sprintf("MediaUrl%d", i)))
		if u == "" {
			continue
		}
		media = append(media, domain.MediaAttachment{
			URL:         u,
			ContentType: sanitize.String(form.Get(fmt.Sprintf("MediaContentType%d", i))),
		})
	}

	return &domain.InboundMessage{
		ProviderMessageID: fields["MessageSid"],
		From:              fields["From"],
		To:                fields["To"],
		Body:              fields["Body"],
		Media:             media,
		ReceivedAt:        time.Now(),
		RemoteAddr:        remoteAddr,
	}, nil
}

// signedURL reconstructs the URL the provider signed: the configured public
// base plus the request URI, falling back to the request's own host.
func (w *Webhook) signedURL(r *http.Request) string {
	if w.publicBaseURL != "" {
		return w.publicBaseURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
