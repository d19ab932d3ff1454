package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/vidhi/chunker"
	"github.com/brunobiangulo/vidhi/citation"
	"github.com/brunobiangulo/vidhi/store"
	"github.com/brunobiangulo/vidhi/structure"
)

// Builder resolves cross references of emitted Acts and persists them.
// It must run after the store has saved the Act.
type Builder struct {
	store  *store.Store
	logger *slog.Logger
}

// NewBuilder creates a Builder that writes to s.
func NewBuilder(s *store.Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: s, logger: logger}
}

// Emit implements store.Sink.
func (b *Builder) Emit(ctx context.Context, act *structure.Act, chunks []chunker.Chunk, _ *citation.Report) error {
	start := time.Now()
	refs := Resolve(act.ID, chunks)
	if err := b.store.ReplaceReferences(ctx, act.ID, refs); err != nil {
		return fmt.Errorf("graph: storing references: %w", err)
	}
	resolved := 0
	for _, r := range refs {
		if r.Resolved {
			resolved++
		}
	}
	b.logger.Debug("graph: references resolved",
		"act_id", act.ID,
		"references", len(refs),
		"resolved", resolved,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}
