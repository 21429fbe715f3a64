package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"memobot/internal/classify"
	"memobot/internal/domain"
	"memobot/internal/intake"
	"memobot/internal/ratelimit"
)

func testChannelLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestVerifySignature_Valid(t *testing.T) {
	secret := "test-secret"
	url := "https://bot.example.com/webhook/messages"
	body := []byte("MessageSid=SM1&From=%2B15551234567&Body=hi")

	sig := ComputeSignature(secret, url, body)
	if !VerifySignature(secret, url, body, sig) {
		t.Error("valid signature should verify")
	}
}

func TestVerifySignature_FlippedBodyByte(t *testing.T) {
	secret := "test-secret"
	url := "https://bot.example.com/webhook/messages"
	body := []byte("MessageSid=SM1&From=%2B15551234567&Body=hi")

	sig := ComputeSignature(secret, url, body)
	tampered := append([]byte(nil), body...)
	tampered[0] ^= 0x01
	if VerifySignature(secret, url, tampered, sig) {
		t.Error("tampered body must not verify")
	}
}

func TestVerifySignature_Empty(t *testing.T) {
	if VerifySignature("secret", "https://x", []byte("body"), "") {
		t.Error("empty signature should not verify")
	}
}

func TestVerifySignature_WrongURL(t *testing.T) {
	secret := "s"
	body := []byte("a=b")
	sig := ComputeSignature(secret, "https://a.example.com/webhook", body)
	if VerifySignature(secret, "https://b.example.com/webhook", body, sig) {
		t.Error("signature must bind the URL")
	}
}

// memoryStoreStub satisfies domain.MemoryStore for handler tests.
type memoryStoreStub struct{}

func (memoryStoreStub) Create(context.Context, string, map[string]string) (string, error) {
	return "ext-1", nil
}
func (memoryStoreStub) Search(context.Context, string, string, int) ([]domain.SearchResult, error) {
	return nil, nil
}
func (memoryStoreStub) Delete(context.Context, string) error { return nil }
func (memoryStoreStub) Healthy(context.Context) error        { return nil }

// interactionStoreStub is a minimal in-memory InteractionStore.
type interactionStoreStub struct {
	interactions map[string]*domain.Interaction
}

func newInteractionStoreStub() *interactionStoreStub {
	return &interactionStoreStub{interactions: make(map[string]*domain.Interaction)}
}

func (s *interactionStoreStub) CreateInteraction(ctx context.Context, in domain.Interaction) error {
	if _, ok := s.interactions[in.ProviderMessageID]; ok {
		return domain.ErrDuplicateInteraction
	}
	copied := in
	s.interactions[in.ProviderMessageID] = &copied
	return nil
}

func (s *interactionStoreStub) GetInteractionByProviderMessageID(ctx context.Context, pid string) (*domain.Interaction, error) {
	if in, ok := s.interactions[pid]; ok {
		copied := *in
		return &copied, nil
	}
	return nil, nil
}

func (s *interactionStoreStub) UpdateInteractionStatus(ctx context.Context, id string, status domain.InteractionStatus) error {
	for _, in := range s.interactions {
		if in.ID == id {
			in.Status = status
			return nil
		}
	}
	return nil
}

func (s *interactionStoreStub) ListInteractions(context.Context, string, int) ([]domain.Interaction, error) {
	return nil, nil
}
func (s *interactionStoreStub) SaveMemory(context.Context, domain.Memory) error { return nil }
func (s *interactionStoreStub) GetMemoryByInteraction(context.Context, string) (*domain.Memory, error) {
	return nil, nil
}
func (s *interactionStoreStub) SearchMemories(context.Context, string, string, int) ([]domain.SearchResult, error) {
	return nil, nil
}
func (s *interactionStoreStub) Close() error { return nil }

func testWebhook(identityMax int) *Webhook {
	orch := intake.New(intake.Config{
		Store:      newInteractionStoreStub(),
		Memories:   memoryStoreStub{},
		Classifier: classify.New(),
		Logger:     testChannelLogger(),
	})
	return NewWebhook(WebhookConfig{
		Port:          9090,
		SigningSecret: "secret",
		PublicBaseURL: "https://bot.example.com",
		Limiter: ratelimit.New(ratelimit.Config{
			Global:   ratelimit.Rule{Max: 1000, Window: time.Minute},
			Routes:   map[string]ratelimit.Rule{"webhook": {Max: 500, Window: time.Minute}},
			Identity: ratelimit.Rule{Max: identityMax, Window: time.Minute},
			Logger:   testChannelLogger(),
		}),
		Orchestrator: orch,
		Logger:       testChannelLogger(),
	})
}

func signedRequest(t *testing.T, w *Webhook, form url.Values) *http.Request {
	t.Helper()
	body := form.Encode()
	req := httptest.NewRequest(http.MethodPost, "/webhook/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Provider-Signature",
		ComputeSignature("secret", "https://bot.example.com/webhook/messages", []byte(body)))
	return req
}

func sampleForm(sid string) url.Values {
	return url.Values{
		"MessageSid": {sid},
		"From":       {"whatsapp:+15551234567"},
		"To":         {"whatsapp:+15550000000"},
		"Body":       {"remember the gate code is 9981"},
	}
}

func TestHandleInbound_Success(t *testing.T) {
	w := testWebhook(100)
	rr := httptest.NewRecorder()
	w.handleInbound(rr, signedRequest(t, w, sampleForm("SM1")))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Success  bool   `json:"success"`
		Message  string `json:"message"`
		Response struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		} `json:"response"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Response.Type != "text" || resp.Response.Content == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleInbound_MissingSignature(t *testing.T) {
	w := testWebhook(100)
	body := sampleForm("SM1").Encode()
	req := httptest.NewRequest(http.MethodPost, "/webhook/messages", strings.NewReader(body))
	rr := httptest.NewRecorder()

	w.handleInbound(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestHandleInbound_InvalidSignature(t *testing.T) {
	w := testWebhook(100)
	body := sampleForm("SM1").Encode()
	req := httptest.NewRequest(http.MethodPost, "/webhook/messages", strings.NewReader(body))
	req.Header.Set("X-Provider-Signature", "sha1=bm90LXRoZS1yaWdodC1zaWc=")
	rr := httptest.NewRecorder()

	w.handleInbound(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestHandleInbound_MissingMessageSid(t *testing.T) {
	w := testWebhook(100)
	form := sampleForm("SM1")
	form.Del("MessageSid")
	rr := httptest.NewRecorder()

	w.handleInbound(rr, signedRequest(t, w, form))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rr.Code)
	}
}

func TestHandleInbound_RateLimited(t *testing.T) {
	w := testWebhook(2)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		w.handleInbound(rr, signedRequest(t, w, sampleForm("SM-ok-"+letter(i))))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	w.handleInbound(rr, signedRequest(t, w, sampleForm("SM-over")))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	var resp struct {
		Code       string `json:"code"`
		RetryAfter int    `json:"retryAfter"`
		Timestamp  string `json:"timestamp"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q", resp.Code)
	}
	if resp.RetryAfter < 1 || resp.RetryAfter > 60 {
		t.Errorf("retryAfter out of range: %d", resp.RetryAfter)
	}
	if resp.Timestamp == "" {
		t.Error("missing timestamp")
	}
}

func TestHandleInbound_RouteTierGatesBeforeParsing(t *testing.T) {
	orch := intake.New(intake.Config{
		Store:      newInteractionStoreStub(),
		Memories:   memoryStoreStub{},
		Classifier: classify.New(),
		Logger:     testChannelLogger(),
	})
	w := NewWebhook(WebhookConfig{
		SigningSecret: "secret",
		PublicBaseURL: "https://bot.example.com",
		Limiter: ratelimit.New(ratelimit.Config{
			Global:   ratelimit.Rule{Max: 1000, Window: time.Minute},
			Routes:   map[string]ratelimit.Rule{"webhook": {Max: 1, Window: time.Minute}},
			Identity: ratelimit.Rule{Max: 100, Window: time.Minute},
			Logger:   testChannelLogger(),
		}),
		Orchestrator: orch,
		Logger:       testChannelLogger(),
	})

	rr := httptest.NewRecorder()
	w.handleInbound(rr, signedRequest(t, w, sampleForm("SM-a")))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	// Route window exhausted: a delivery missing its required fields is
	// still rate-gated rather than reaching the parser for a 422.
	form := sampleForm("SM-b")
	form.Del("MessageSid")
	rr = httptest.NewRecorder()
	w.handleInbound(rr, signedRequest(t, w, form))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 before parsing, got %d", rr.Code)
	}
}

func TestHandleInbound_DuplicateIsSuccess(t *testing.T) {
	w := testWebhook(100)

	first := httptest.NewRecorder()
	w.handleInbound(first, signedRequest(t, w, sampleForm("SM-dup")))
	second := httptest.NewRecorder()
	w.handleInbound(second, signedRequest(t, w, sampleForm("SM-dup")))

	if second.Code != http.StatusOK {
		t.Fatalf("duplicate should be 200, got %d", second.Code)
	}
	var a, b struct {
		IDs struct {
			InteractionID string `json:"interactionId"`
		} `json:"identifiers"`
	}
	json.Unmarshal(first.Body.Bytes(), &a)
	json.Unmarshal(second.Body.Bytes(), &b)
	if a.IDs.InteractionID == "" || a.IDs.InteractionID != b.IDs.InteractionID {
		t.Errorf("duplicate must reference the original interaction: %q vs %q",
			a.IDs.InteractionID, b.IDs.InteractionID)
	}
}

func TestHandleInbound_BodySanitized(t *testing.T) {
	store := newInteractionStoreStub()
	orch := intake.New(intake.Config{
		Store:      store,
		Memories:   memoryStoreStub{},
		Classifier: classify.New(),
		Logger:     testChannelLogger(),
	})
	w := NewWebhook(WebhookConfig{
		SigningSecret: "secret",
		PublicBaseURL: "https://bot.example.com",
		Limiter:       ratelimit.New(ratelimit.Config{Logger: testChannelLogger()}),
		Orchestrator:  orch,
		Logger:        testChannelLogger(),
	})

	form := sampleForm("SM-x")
	form.Set("Body", "  <script>alert(1)</script>note the door code 4411  ")
	rr := httptest.NewRecorder()
	w.handleInbound(rr, signedRequest(t, w, form))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	in, _ := store.GetInteractionByProviderMessageID(context.Background(), "SM-x")
	if in == nil {
		t.Fatal("interaction not persisted")
	}
	if in.Content != "note the door code 4411" {
		t.Errorf("body not sanitized: %q", in.Content)
	}
}

func letter(i int) string {
	return string(rune('a' + i))
}
