package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brunobiangulo/vidhi"
	"github.com/brunobiangulo/vidhi/citation"
	"github.com/brunobiangulo/vidhi/graph"
	"github.com/brunobiangulo/vidhi/parser"
	"github.com/brunobiangulo/vidhi/store"
)

const (
	maxManifestBytes = 64 << 20
	maxUploadBytes   = 100 << 20
)

type handler struct {
	engine vidhi.Engine
	logger *slog.Logger
}

func newHandler(e vidhi.Engine, logger *slog.Logger) *handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &handler{engine: e, logger: logger}
}

// store returns the engine's store, writing 503 when persistence is off.
func (h *handler) store(w http.ResponseWriter) *store.Store {
	s := h.engine.Store()
	if s == nil {
		writeError(w, http.StatusServiceUnavailable, "store is disabled")
	}
	return s
}

// POST /structure
// Body is a page-record manifest. Page images must be inline data: URLs.
func (h *handler) handleStructure(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	m, err := parser.LoadManifest(http.MaxBytesReader(w, r.Body, maxManifestBytes), "")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, p := range m.Pages {
		if p.ImagePath != "" {
			writeError(w, http.StatusBadRequest, "image_path must be a data: URL")
			return
		}
	}

	res, err := h.engine.Structure(ctx, vidhi.ActInput{SourceID: m.SourceID, Title: m.Title, Date: m.Date, Pages: m.Pages})
	if err != nil {
		h.fail(w, "structure", err, "source_id", m.SourceID)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /ingest
// Accepts a multipart PDF upload in the "file" field and an optional
// "title" field. The source id is the uploaded file name without extension.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form with a PDF in 'file'")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	// Sanitise filename to prevent path traversal.
	safeName := filepath.Base(header.Filename)
	if filepath.Ext(safeName) != ".pdf" {
		writeError(w, http.StatusBadRequest, "file must be a .pdf")
		return
	}

	tmpDir, err := os.MkdirTemp("", "vidhi-upload-")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		h.logger.Error("creating temp dir", "error", err)
		return
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, safeName)
	dst, err := os.Create(tmpPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		h.logger.Error("creating temp file", "error", err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "failed to save file")
		h.logger.Error("saving uploaded file", "error", err)
		return
	}
	dst.Close()

	res, err := h.engine.IngestPDF(ctx, tmpPath, r.FormValue("title"))
	if err != nil {
		h.fail(w, "ingest", err, "filename", safeName)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /acts
func (h *handler) handleListActs(w http.ResponseWriter, r *http.Request) {
	s := h.store(w)
	if s == nil {
		return
	}
	acts, err := s.ListActs(r.Context())
	if err != nil {
		h.fail(w, "list acts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acts": acts})
}

// GET /acts/{id}
// Accepts an act id or a source id.
func (h *handler) handleGetAct(w http.ResponseWriter, r *http.Request) {
	s := h.store(w)
	if s == nil {
		return
	}
	act, err := h.lookup(r.Context(), s, r.PathValue("id"))
	if err != nil {
		h.fail(w, "get act", err)
		return
	}
	issues, err := s.IssuesForAct(r.Context(), act.ID)
	if err != nil {
		h.fail(w, "get act", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"act": act, "issues": issues})
}

// DELETE /acts/{id}
func (h *handler) handleDeleteAct(w http.ResponseWriter, r *http.Request) {
	s := h.store(w)
	if s == nil {
		return
	}
	act, err := h.lookup(r.Context(), s, r.PathValue("id"))
	if err != nil {
		h.fail(w, "delete act", err)
		return
	}
	if err := s.DeleteAct(r.Context(), act.ID); err != nil {
		h.fail(w, "delete act", err, "act_id", act.ID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": act.ID})
}

// GET /acts/{id}/chunks
func (h *handler) handleChunks(w http.ResponseWriter, r *http.Request) {
	s := h.store(w)
	if s == nil {
		return
	}
	act, err := h.lookup(r.Context(), s, r.PathValue("id"))
	if err != nil {
		h.fail(w, "chunks", err)
		return
	}
	chunks, err := s.ChunksForAct(r.Context(), act.ID)
	if err != nil {
		h.fail(w, "chunks", err, "act_id", act.ID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"act_id": act.ID, "chunks": chunks})
}

// GET /acts/{id}/refs?path=...&depth=2&dir=incoming
// Without a path it lists all references of the Act.
func (h *handler) handleRefs(w http.ResponseWriter, r *http.Request) {
	s := h.store(w)
	if s == nil {
		return
	}
	act, err := h.lookup(r.Context(), s, r.PathValue("id"))
	if err != nil {
		h.fail(w, "refs", err)
		return
	}

	q := r.URL.Query()
	paths := q["path"]
	if len(paths) == 0 {
		refs, err := s.ReferencesForAct(r.Context(), act.ID)
		if err != nil {
			h.fail(w, "refs", err, "act_id", act.ID)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"act_id": act.ID, "references": refs})
		return
	}

	depth := 1
	if v := q.Get("depth"); v != "" {
		if depth, err = strconv.Atoi(v); err != nil || depth < 1 || depth > 10 {
			writeError(w, http.StatusBadRequest, "depth must be between 1 and 10")
			return
		}
	}
	dir := graph.Both
	switch q.Get("dir") {
	case "", "both":
	case "incoming":
		dir = graph.Incoming
	case "outgoing":
		dir = graph.Outgoing
	default:
		writeError(w, http.StatusBadRequest, "dir must be incoming, outgoing or both")
		return
	}

	res, err := graph.Traverse(r.Context(), s, act.ID, paths, depth, dir)
	if err != nil {
		h.fail(w, "refs", err, "act_id", act.ID)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /reports?status=needs_review
func (h *handler) handleReports(w http.ResponseWriter, r *http.Request) {
	status := citation.Status(r.URL.Query().Get("status"))
	switch status {
	case "", citation.Clean, citation.NeedsReview:
	default:
		writeError(w, http.StatusBadRequest, "status must be clean or needs_review")
		return
	}
	s := h.store(w)
	if s == nil {
		return
	}
	rows, err := s.Reports(r.Context(), status)
	if err != nil {
		h.fail(w, "reports", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": rows})
}

// GET /search?q=...&limit=10
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	s := h.store(w)
	if s == nil {
		return
	}
	res, err := s.SearchChunks(r.Context(), q, limit)
	if err != nil {
		h.fail(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": res})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s := h.engine.Store(); s != nil {
		stats, err := s.DBStats(r.Context())
		if err != nil {
			h.logger.Error("health: stats", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		body["stats"] = stats
	}
	writeJSON(w, http.StatusOK, body)
}

// lookup finds an Act by id, falling back to the id derived from a
// source id.
func (h *handler) lookup(ctx context.Context, s *store.Store, id string) (*store.ActRow, error) {
	act, err := s.GetAct(ctx, id)
	if errors.Is(err, store.ErrActNotFound) {
		return s.GetAct(ctx, vidhi.ActID(id))
	}
	return act, err
}

// fail maps engine errors to a status code and logs server-side failures.
func (h *handler) fail(w http.ResponseWriter, op string, err error, attrs ...any) {
	switch {
	case errors.Is(err, vidhi.ErrInvalidPageRecord),
		errors.Is(err, vidhi.ErrDuplicatePageIndex),
		errors.Is(err, vidhi.ErrEmptyAct):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vidhi.ErrActNotFound):
		writeError(w, http.StatusNotFound, "act not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, op+" timed out")
	default:
		writeError(w, http.StatusInternalServerError, op+" failed")
		h.logger.Error(op+" error", append(attrs, "error", err)...)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
