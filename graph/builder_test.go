//go:build cgo

package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/vidhi/citation"
	"github.com/brunobiangulo/vidhi/store"
	"github.com/brunobiangulo/vidhi/structure"
)

func TestBuilderEmitAndTraverse(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "graph.db"), 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	act := &structure.Act{ID: "act-graph", SourceID: "graph", Title: "ऐन"}
	chunks := sampleChunks()
	for i := range chunks {
		chunks[i].ActID = act.ID
		chunks[i].Position = i
	}
	rep := &citation.Report{Status: citation.Clean}
	if err := s.SaveAct(ctx, act, chunks, rep); err != nil {
		t.Fatalf("SaveAct: %v", err)
	}

	b := NewBuilder(s, nil)
	if err := b.Emit(ctx, act, chunks, rep); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	stored, err := s.ReferencesForAct(ctx, act.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != len(Resolve(act.ID, chunks)) {
		t.Errorf("stored %d references", len(stored))
	}

	// A second emit replaces rather than appends.
	if err := b.Emit(ctx, act, chunks, rep); err != nil {
		t.Fatal(err)
	}
	again, _ := s.ReferencesForAct(ctx, act.ID)
	if len(again) != len(stored) {
		t.Errorf("references after re-emit = %d, want %d", len(again), len(stored))
	}

	res, err := Traverse(ctx, s, act.ID, []string{"Act/Dapha ३"}, 2, Incoming)
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if len(res.Paths) == 0 || res.Paths[0] != "Act/Dapha २" {
		t.Errorf("paths = %v", res.Paths)
	}
}

func TestBuilderUnknownAct(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "graph.db"), 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	act := &structure.Act{ID: "never-saved"}
	if err := NewBuilder(s, nil).Emit(context.Background(), act, sampleChunks(), nil); err == nil {
		t.Error("expected error when the act is not stored")
	}
}
