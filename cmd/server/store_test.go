//go:build cgo

package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/vidhi"
)

const refManifest = `{"source_id": "gharelu-hinsa", "pages": [
 {"page_index": 1, "has_digital_text_layer": true, "glyph_coverage": 0.97,
  "digital_text": "घरेलु हिंसा ऐन, २०६६\nदफा १ संक्षिप्त नाम\nयो ऐन तुरुन्त प्रारम्भ हुनेछ।\nदफा २ उजुरी\nपीडितले दफा १ बमोजिम उजुरी दिन सकिनेछ।"}]}`

func newStoreServer(t *testing.T) string {
	t.Helper()
	cfg := vidhi.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "server.db")
	cfg.OCR.Backend = vidhi.BackendNone
	cfg.EmbeddingDim = 4
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := vidhi.New(cfg, vidhi.WithLogger(logger))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return testServer(t, e, "").URL
}

func TestStoreEndpoints(t *testing.T) {
	base := newStoreServer(t)

	resp, err := http.Post(base+"/structure", "application/json", strings.NewReader(refManifest))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("structure status = %d", resp.StatusCode)
	}

	var acts struct {
		Acts []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"acts"`
	}
	resp, err = http.Get(base + "/acts")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &acts)
	if len(acts.Acts) != 1 || acts.Acts[0].ID != vidhi.ActID("gharelu-hinsa") {
		t.Fatalf("acts = %+v", acts)
	}

	// Source ids resolve to act ids.
	var chunks struct {
		Chunks []struct {
			CitationPath string `json:"citation_path"`
		} `json:"chunks"`
	}
	resp, err = http.Get(base + "/acts/gharelu-hinsa/chunks")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &chunks)
	if len(chunks.Chunks) == 0 {
		t.Error("no chunks returned")
	}

	var walk struct {
		Paths []string `json:"paths"`
	}
	resp, err = http.Get(base + "/acts/gharelu-hinsa/refs?dir=incoming&path=" + url.QueryEscape("Act/Dapha १"))
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &walk)
	if len(walk.Paths) != 1 || walk.Paths[0] != "Act/Dapha २" {
		t.Errorf("incoming refs = %v", walk.Paths)
	}

	var search struct {
		Results []struct {
			CitationPath string `json:"citation_path"`
		} `json:"results"`
	}
	resp, err = http.Get(base + "/search?q=" + url.QueryEscape("उजुरी"))
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &search)
	if len(search.Results) == 0 {
		t.Error("search returned nothing")
	}

	resp, err = http.Get(base + "/acts/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing act status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, base+"/acts/gharelu-hinsa", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
}
