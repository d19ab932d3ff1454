package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewProviderDefaults(t *testing.T) {
	tests := []struct {
		provider string
		wantURL  string
		prefix   string
	}{
		{"ollama", "http://localhost:11434", "/v1"},
		{"lmstudio", "http://localhost:1234", "/v1"},
		{"openrouter", "https://openrouter.ai/api", "/v1"},
		{"gemini", "https://generativelanguage.googleapis.com/v1beta/openai", ""},
		{"custom", "", "/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, Model: "test-model"})
			if err != nil {
				t.Fatalf("NewProvider(%q) returned error: %v", tt.provider, err)
			}
			cp := p.(*compatProvider)
			if cp.base.cfg.BaseURL != tt.wantURL {
				t.Errorf("BaseURL = %q, want %q", cp.base.cfg.BaseURL, tt.wantURL)
			}
			if cp.base.pathPrefix != tt.prefix {
				t.Errorf("prefix = %q, want %q", cp.base.pathPrefix, tt.prefix)
			}
			if cp.base.cfg.Model != "test-model" {
				t.Errorf("model = %q, want explicit model kept", cp.base.cfg.Model)
			}
		})
	}
}

func TestNewProviderDefaultModel(t *testing.T) {
	p, err := NewProvider(Config{Provider: "openai"})
	if err != nil {
		t.Fatal(err)
	}
	if got := p.(*compatProvider).base.cfg.Model; got != "gpt-4o-mini" {
		t.Errorf("model = %q", got)
	}
}

func TestNewProviderErrors(t *testing.T) {
	if _, err := NewProvider(Config{}); err == nil || err.Error() != "llm provider not specified" {
		t.Errorf("empty provider err = %v", err)
	}
	if _, err := NewProvider(Config{Provider: "doesnotexist"}); err == nil || err.Error() != "unknown llm provider: doesnotexist" {
		t.Errorf("unknown provider err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// HTTP round trip
// ---------------------------------------------------------------------------

func TestChatWithImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var req chatCompletionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		if req.Model != "vision-model" {
			t.Errorf("model = %q", req.Model)
		}
		if !strings.Contains(string(req.Messages), "data:image/png;base64,") {
			t.Errorf("messages missing image: %s", req.Messages)
		}
		w.Write([]byte(`{"model":"vision-model","choices":[{"message":{"content":"दफा १"},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`))
	}))
	defer srv.Close()

	p, err := NewProvider(Config{Provider: "custom", BaseURL: srv.URL, Model: "vision-model", APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.ChatWithImages(context.Background(), VisionChatRequest{
		Messages: []VisionMessage{{
			Role: "user",
			Content: []ContentPart{
				{Type: "text", Text: "transcribe"},
				{Type: "image_url", ImageURL: &ImageURL{URL: "data:image/png;base64,AAAA"}},
			},
		}},
	})
	if err != nil {
		t.Fatalf("ChatWithImages: %v", err)
	}
	if resp.Content != "दफा १" || resp.TotalTokens != 12 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestChatWithImagesRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p, _ := NewProvider(Config{Provider: "custom", BaseURL: srv.URL})
	cp := p.(*compatProvider)
	cp.base.maxRetries = 2
	cp.base.retryDelay = time.Millisecond

	_, err := cp.ChatWithImages(context.Background(), VisionChatRequest{})
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Fatalf("err = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestChatWithImagesNonRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	p, _ := NewProvider(Config{Provider: "custom", BaseURL: srv.URL})
	if _, err := p.ChatWithImages(context.Background(), VisionChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
