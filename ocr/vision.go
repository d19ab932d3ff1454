package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/brunobiangulo/vidhi/llm"
)

const transcribePrompt = `Transcribe all text on this scanned page of a Nepal Gazette Act exactly as printed.
- Keep the original script: Devanagari stays Devanagari, Latin stays Latin. Do not translate.
- Keep Devanagari digits (१, २, ३) as they appear; do not convert them to 0-9.
- Keep one output line per printed line, including markers such as "दफा ३", "(क)", "(१)".
- Omit running headers, page numbers and watermarks.
- Output only the transcription, with no commentary or markdown.`

// Vision transcribes pages with a multimodal LLM. Chat APIs return no
// per-character confidence, so every result carries the configured
// Confidence.
type Vision struct {
	provider   llm.VisionProvider
	model      string
	confidence float64
	maxTokens  int
}

// NewVision returns a vision engine over provider. A zero confidence
// defaults to 0.8.
func NewVision(provider llm.VisionProvider, model string, confidence float64) *Vision {
	if confidence <= 0 || confidence > 1 {
		confidence = 0.8
	}
	return &Vision{provider: provider, model: model, confidence: confidence, maxTokens: 4096}
}

func (v *Vision) Recognize(ctx context.Context, image []byte) (Result, error) {
	if len(image) == 0 {
		return Result{}, ErrNoImage
	}
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/png"
	}

	resp, err := v.provider.ChatWithImages(ctx, llm.VisionChatRequest{
		Model: v.model,
		Messages: []llm.VisionMessage{{
			Role: "user",
			Content: []llm.ContentPart{
				{Type: "text", Text: transcribePrompt},
				{Type: "image_url", ImageURL: &llm.ImageURL{
					URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		MaxTokens: v.maxTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("vision transcription failed: %w", err)
	}

	text := Normalize(stripFences(resp.Content))
	if text == "" {
		return Result{}, errors.New("vision transcription returned no text")
	}
	return Result{Text: text, Confidence: v.confidence}, nil
}

// stripFences removes a surrounding ``` block some models add anyway.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
