//go:build cgo

package vidhi

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/vidhi/citation"
	"github.com/brunobiangulo/vidhi/parser"
)

func TestStructurePersistsToStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "acts.db")
	cfg.OCR.Backend = BackendNone
	cfg.EmbeddingDim = 4
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	ctx := context.Background()

	in := ActInput{SourceID: "gharelu-hinsa", Pages: []parser.PageRecord{digital(1, pageOne), digital(2, pageTwo)}}
	res, err := e.Structure(ctx, in)
	if err != nil {
		t.Fatal(err)
	}

	row, err := e.Store().GetAct(ctx, res.Act.ID)
	if err != nil {
		t.Fatalf("GetAct: %v", err)
	}
	if row.Title != res.Act.Title || row.Status != citation.Clean {
		t.Errorf("row = %+v", row)
	}

	// Structuring the same source again replaces its chunks.
	in.Pages = []parser.PageRecord{digital(1, pageOne)}
	res2, err := e.Structure(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := e.Store().ChunksForAct(ctx, res.Act.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != len(res2.Chunks) {
		t.Errorf("stored %d chunks, want %d", len(stored), len(res2.Chunks))
	}

	hits, err := e.Store().SearchChunks(ctx, "संक्षिप्त", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Error("stored chunks not searchable")
	}
}

func TestStructureStoresReferences(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "acts.db")
	cfg.OCR.Backend = BackendNone
	cfg.EmbeddingDim = 4
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	ctx := context.Background()

	in := ActInput{SourceID: "gharelu-hinsa", Pages: []parser.PageRecord{
		digital(1, pageOne), digital(2, pageTwo), digital(3, pageThree),
	}}
	res, err := e.Structure(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	refs, err := e.Store().ReferencesForAct(ctx, res.Act.ID)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range refs {
		if r.Resolved && strings.HasSuffix(r.From, "Khanda (ख)") && strings.HasSuffix(r.To, "Dapha ३") {
			found = true
		}
	}
	if !found {
		t.Errorf("reference from clause (ख) to section ३ not stored: %+v", refs)
	}
}
