// Package ocr recognizes text in page images. Engines are Tesseract (run
// as an external command) and a vision LLM; a Limiter caps how many
// recognitions run at once across the process.
package ocr

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// ErrNoImage is returned when a page has no image to recognize.
var ErrNoImage = errors.New("ocr: page has no image")

// Result is the text recognized on one page image.
type Result struct {
	Text string
	// Confidence is the mean per-word confidence in [0, 1].
	Confidence float64
}

// Engine recognizes text in an encoded page image (PNG or JPEG).
type Engine interface {
	Recognize(ctx context.Context, image []byte) (Result, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, image []byte) (Result, error)

func (f EngineFunc) Recognize(ctx context.Context, image []byte) (Result, error) {
	return f(ctx, image)
}

// Limiter caps concurrent recognitions on the wrapped engine. Share one
// Limiter across every pipeline in the process.
type Limiter struct {
	engine Engine
	sem    *semaphore.Weighted
}

// NewLimiter wraps engine so that at most n recognitions run at once.
func NewLimiter(engine Engine, n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{engine: engine, sem: semaphore.NewWeighted(int64(n))}
}

// Acquire blocks until a slot is free or ctx ends. Callers that need to
// do work of their own inside the slot, such as rendering the page image,
// pair it with Release and call Engine directly.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("ocr: waiting for slot: %w", err)
	}
	return nil
}

func (l *Limiter) Release() { l.sem.Release(1) }

// Engine returns the wrapped engine.
func (l *Limiter) Engine() Engine { return l.engine }

// Recognize waits for a slot, or for ctx to end.
func (l *Limiter) Recognize(ctx context.Context, image []byte) (Result, error) {
	if err := l.Acquire(ctx); err != nil {
		return Result{}, err
	}
	defer l.Release()
	return l.engine.Recognize(ctx, image)
}
