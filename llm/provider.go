// Package llm is a minimal client for OpenAI-compatible multimodal chat
// endpoints. It backs the vision OCR engine, which transcribes scanned
// gazette pages that Tesseract cannot read well.
package llm

import (
	"context"
	"fmt"
)

// VisionProvider sends chat requests that include images.
type VisionProvider interface {
	ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error)
}

// VisionChatRequest is a chat request with image content.
type VisionChatRequest struct {
	Model       string          `json:"model"`
	Messages    []VisionMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

// VisionMessage represents a chat message that may contain images.
type VisionMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is either text or an image in a vision message.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL contains a base64 data URL or a remote URL of an image.
type ImageURL struct {
	URL string `json:"url"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures a provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openai, openrouter, gemini, groq, xai, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

type providerDefaults struct {
	baseURL string
	prefix  string
	model   string
}

// defaults per provider. Gemini's OpenAI-compatible endpoint has no /v1.
var defaults = map[string]providerDefaults{
	"ollama":     {baseURL: "http://localhost:11434", prefix: "/v1", model: "llama3.2-vision"},
	"lmstudio":   {baseURL: "http://localhost:1234", prefix: "/v1"},
	"openai":     {baseURL: "https://api.openai.com", prefix: "/v1", model: "gpt-4o-mini"},
	"openrouter": {baseURL: "https://openrouter.ai/api", prefix: "/v1"},
	"gemini":     {baseURL: "https://generativelanguage.googleapis.com/v1beta/openai", model: "gemini-2.5-flash"},
	"groq":       {baseURL: "https://api.groq.com/openai", prefix: "/v1"},
	"xai":        {baseURL: "https://api.x.ai", prefix: "/v1"},
	"custom":     {prefix: "/v1"},
}

// NewProvider creates a vision provider from configuration. Empty BaseURL
// and Model fields take the provider's defaults.
func NewProvider(cfg Config) (VisionProvider, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("llm provider not specified")
	}
	d, ok := defaults[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = d.model
	}
	return &compatProvider{base: newOpenAICompatClientPrefix(cfg, d.prefix)}, nil
}

// compatProvider speaks the OpenAI chat completions protocol.
type compatProvider struct {
	base openAICompatClient
}

func (p *compatProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	return p.base.chatWithImages(ctx, req)
}
