package media

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"memobot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedProcessor fails for URLs present in failures.
type scriptedProcessor struct {
	failures map[string]bool
}

func (s scriptedProcessor) Process(ctx context.Context, ownerID, interactionID, url, contentType string) ([]domain.StoredAttachment, error) {
	if s.failures[url] {
		return nil, errors.New("fetch failed")
	}
	return []domain.StoredAttachment{{ID: "att-" + url, URL: url, ContentType: contentType}}, nil
}

func TestRun_PartialFailureKeepsSiblings(t *testing.T) {
	in := NewIntake(scriptedProcessor{failures: map[string]bool{"u1": true}}, testLogger())

	stored := in.Run(context.Background(), "owner", "i1", []domain.MediaAttachment{
		{URL: "u1", ContentType: "image/jpeg"},
		{URL: "u2", ContentType: "image/png"},
	})

	if len(stored) != 1 {
		t.Fatalf("expected 1 stored attachment, got %d", len(stored))
	}
	if stored[0].URL != "u2" {
		t.Errorf("expected surviving attachment u2, got %s", stored[0].URL)
	}
}

func TestRun_AllFailuresYieldEmptyResult(t *testing.T) {
	in := NewIntake(scriptedProcessor{failures: map[string]bool{"u1": true, "u2": true}}, testLogger())

	stored := in.Run(context.Background(), "owner", "i1", []domain.MediaAttachment{
		{URL: "u1", ContentType: "image/jpeg"},
		{URL: "u2", ContentType: "audio/ogg"},
	})
	if len(stored) != 0 {
		t.Errorf("expected empty result, got %d", len(stored))
	}
}

func TestRun_PreservesOrder(t *testing.T) {
	in := NewIntake(scriptedProcessor{}, testLogger())
	stored := in.Run(context.Background(), "owner", "i1", []domain.MediaAttachment{
		{URL: "a", ContentType: "image/jpeg"},
		{URL: "b", ContentType: "image/jpeg"},
		{URL: "c", ContentType: "image/jpeg"},
	})
	if len(stored) != 3 || stored[0].URL != "a" || stored[2].URL != "c" {
		t.Errorf("order not preserved: %+v", stored)
	}
}

func TestProcessor_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media/process" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"attachments":[{"id":"a1","url":"https://cdn/x","content_type":"image/jpeg"}]}`))
	}))
	defer srv.Close()

	p := NewProcessor(ProcessorConfig{BaseURL: srv.URL, Logger: testLogger()})
	got, err := p.Process(context.Background(), "owner", "i1", "https://provider/media/0", "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a1" {
		t.Errorf("unexpected attachments: %+v", got)
	}
}

func TestProcessor_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewProcessor(ProcessorConfig{BaseURL: srv.URL, Logger: testLogger()})
	if _, err := p.Process(context.Background(), "owner", "i1", "u", "image/jpeg"); err == nil {
		t.Error("expected error on 502")
	}
}
