// Package vidhi turns the pages of a Nepali or English legal Act into a
// validated hierarchy of Parts, Chapters, Sections and Clauses, with a
// citation path for every node, retrieval chunks and a health report.
package vidhi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/vidhi/chunker"
	"github.com/brunobiangulo/vidhi/citation"
	"github.com/brunobiangulo/vidhi/graph"
	"github.com/brunobiangulo/vidhi/llm"
	"github.com/brunobiangulo/vidhi/marker"
	"github.com/brunobiangulo/vidhi/ocr"
	"github.com/brunobiangulo/vidhi/parser"
	"github.com/brunobiangulo/vidhi/store"
	"github.com/brunobiangulo/vidhi/structure"
)

// Engine is the main entry point for structuring Acts.
type Engine interface {
	// Structure runs one Act through text selection, structuring,
	// validation and chunking, and emits the result to the configured
	// sinks. Page defects are recorded on the Act; only a malformed page
	// record contract is an error.
	Structure(ctx context.Context, in ActInput) (*Result, error)

	// StructureAll structures distinct Acts in parallel. Results are in
	// input order. An Act that fails leaves a nil entry and does not stop
	// the others; the returned error joins every per-Act error.
	StructureAll(ctx context.Context, ins []ActInput) ([]*Result, error)

	// IngestPDF loads page records from a PDF and structures them. An
	// empty title is taken from the document.
	IngestPDF(ctx context.Context, path, title string) (*Result, error)

	// Store returns the underlying store, nil when SkipStore is set.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// ActInput is one Act's page records plus its identity.
type ActInput struct {
	SourceID string              `json:"source_id"`
	Title    string              `json:"title,omitempty"`
	Date     string              `json:"date,omitempty"`
	Pages    []parser.PageRecord `json:"pages"`
}

// Result is the output of structuring one Act. Act.Children is nil unless
// Config.KeepTree is set.
type Result struct {
	Act    *structure.Act    `json:"act"`
	Chunks []chunker.Chunk   `json:"chunks"`
	Report *citation.Report  `json:"report"`
	Pages  []parser.PageText `json:"-"`
}

// Option configures New.
type Option func(*options)

type options struct {
	logger *slog.Logger
	ocr    ocr.Engine
	sinks  []store.Sink
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOCREngine replaces the configured OCR backend.
func WithOCREngine(e ocr.Engine) Option {
	return func(o *options) { o.ocr = e }
}

// WithSink adds a sink that receives every structured Act.
func WithSink(s store.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

type engine struct {
	cfg        Config
	logger     *slog.Logger
	store      *store.Store
	pg         *store.PostgresSink
	sinks      []store.Sink
	selector   *parser.Selector
	loader     *parser.PDFLoader
	recognizer *marker.Recognizer
	structurer *structure.Structurer
	chunkr     *chunker.Chunker
}

// New creates a structuring engine with the given configuration.
func New(cfg Config, opts ...Option) (Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Keyword lexicon
	lex := marker.DefaultLexicon()
	if cfg.Lexicon != "" {
		var err error
		if lex, err = marker.LoadLexicon(cfg.Lexicon); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	// OCR backend
	eng := o.ocr
	if eng == nil {
		var err error
		if eng, err = newOCREngine(cfg, o.logger); err != nil {
			return nil, err
		}
	}

	e := &engine{
		cfg:        cfg,
		logger:     o.logger,
		recognizer: marker.NewRecognizer(lex, cfg.NumberedSections),
		structurer: structure.New(o.logger),
		chunkr: chunker.New(chunker.Config{
			MaxTokens:         cfg.MaxChunkTokens,
			SkipComprehensive: cfg.SkipComprehensive,
		}),
	}
	e.selector = &parser.Selector{
		Threshold:       cfg.CoverageThreshold,
		Timeout:         cfg.OCRTimeout,
		MinDigitalChars: cfg.MinDigitalChars,
		Logger:          o.logger,
	}
	if eng != nil {
		e.selector.Limiter = ocr.NewLimiter(eng, cfg.OCRConcurrency)
	}
	e.loader = &parser.PDFLoader{
		Rasterizer: &ocr.Rasterizer{
			Binary:  cfg.OCR.PdftoppmBinary,
			DPI:     cfg.OCR.DPI,
			TempDir: cfg.OCR.TempDir,
			Runner:  ocr.ExecRunner{Logger: o.logger},
		},
		MinDigitalChars: cfg.MinDigitalChars,
		Logger:          o.logger,
	}

	// Open store
	if !cfg.SkipStore {
		s, err := store.New(cfg.resolveDBPath(), cfg.EmbeddingDim, o.logger)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		e.store = s
		e.sinks = append(e.sinks, s)
		if !cfg.SkipReferences {
			e.sinks = append(e.sinks, graph.NewBuilder(s, o.logger))
		}
	}

	// Postgres hand-off
	if cfg.Postgres.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pg, err := store.NewPostgresSink(ctx, cfg.Postgres.DSN, o.logger)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.pg = pg
		if cfg.Postgres.EnsureSchema {
			if err := pg.EnsureSchema(ctx); err != nil {
				e.Close()
				return nil, err
			}
		}
		e.sinks = append(e.sinks, pg)
	}
	e.sinks = append(e.sinks, o.sinks...)

	o.logger.Debug("vidhi: engine ready",
		"ocr_backend", cfg.OCR.Backend,
		"store", e.store != nil,
		"postgres", e.pg != nil,
		"sinks", len(e.sinks))
	return e, nil
}

// newOCREngine builds the configured OCR backend. BackendNone yields a
// nil engine: pages without a usable digital layer then fail.
func newOCREngine(cfg Config, logger *slog.Logger) (ocr.Engine, error) {
	switch cfg.OCR.Backend {
	case BackendNone:
		return nil, nil
	case BackendVision:
		provider, err := llm.NewProvider(llm.Config{
			Provider: cfg.Vision.Provider,
			Model:    cfg.Vision.Model,
			BaseURL:  cfg.Vision.BaseURL,
			APIKey:   cfg.Vision.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: creating vision provider: %v", ErrOCRUnavailable, err)
		}
		return ocr.NewVision(provider, cfg.Vision.Model, cfg.OCR.Confidence), nil
	default:
		return ocr.NewTesseract(ocr.TesseractConfig{
			Binary:      cfg.OCR.Binary,
			Lang:        cfg.OCR.Lang,
			TessdataDir: cfg.OCR.TessdataDir,
			PSM:         cfg.OCR.PSM,
			OEM:         cfg.OCR.OEM,
			TempDir:     cfg.OCR.TempDir,
		}, nil, logger), nil
	}
}

// Structure processes one Act through the full pipeline.
func (e *engine) Structure(ctx context.Context, in ActInput) (*Result, error) {
	start := time.Now()
	if len(in.Pages) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyAct, in.SourceID)
	}
	if strings.TrimSpace(in.SourceID) == "" {
		return nil, fmt.Errorf("missing source id: %w", ErrInvalidPageRecord)
	}
	if err := parser.ValidateRecords(in.Pages); err != nil {
		return nil, err
	}
	log := e.logger.With("source_id", in.SourceID)

	// Select a text source per page; output is sorted by page index.
	pages := e.selector.SelectAll(ctx, in.Pages, e.cfg.PageWorkers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	act := &structure.Act{
		ID:       ActID(in.SourceID),
		SourceID: in.SourceID,
		Title:    in.Title,
		Date:     in.Date,
		Pages:    make([]structure.Page, 0, len(pages)),
		Created:  time.Now().UTC(),
	}
	var lines []structure.Line
	for _, pt := range pages {
		act.Pages = append(act.Pages, pt.Page())
		if pt.Provenance == structure.ProvenanceFailed {
			continue
		}
		lines = append(lines, structure.ClassifyPage(e.recognizer, pt.Text, pt.Index, pt.Provenance, pt.Confidence)...)
	}

	e.structurer.Build(act, lines)
	fillMetadata(act, pages)

	report := citation.Validate(act, citation.Options{ReviewAnomalyRatio: e.cfg.ReviewAnomalyRatio})
	chunks := e.chunkr.Build(act, report)

	for _, s := range e.sinks {
		if err := s.Emit(ctx, act, chunks, report); err != nil {
			return nil, fmt.Errorf("emitting act %s: %w", act.ID, err)
		}
	}
	if !e.cfg.KeepTree {
		act.Release()
		report.Paths = nil
	}

	log.Info("vidhi: act structured",
		"act_id", act.ID,
		"pages", len(pages),
		"nodes", report.Stats.Nodes,
		"chunks", len(chunks),
		"anomalies", report.AnomalyCount,
		"ocr_fraction", report.OCRFraction,
		"status", report.Status,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &Result{Act: act, Chunks: chunks, Report: report, Pages: pages}, nil
}

// StructureAll runs Structure over distinct Acts with at most
// Config.ActWorkers in flight. Acts share no state, so one failure does
// not cancel the rest.
func (e *engine) StructureAll(ctx context.Context, ins []ActInput) ([]*Result, error) {
	seen := make(map[string]bool, len(ins))
	for _, in := range ins {
		if seen[in.SourceID] {
			return nil, fmt.Errorf("%w: source id %q appears twice", ErrInvalidPageRecord, in.SourceID)
		}
		seen[in.SourceID] = true
	}

	results := make([]*Result, len(ins))
	errs := make([]error, len(ins))
	var g errgroup.Group
	g.SetLimit(e.cfg.ActWorkers)
	for i, in := range ins {
		g.Go(func() error {
			r, err := e.Structure(ctx, in)
			if err != nil {
				e.logger.Warn("vidhi: act failed", "source_id", in.SourceID, "error", err)
				errs[i] = fmt.Errorf("act %s: %w", in.SourceID, err)
				return nil
			}
			results[i] = r
			return nil
		})
	}
	g.Wait()
	return results, errors.Join(errs...)
}

// IngestPDF loads a PDF and structures it. The source id is the file name
// without its extension.
func (e *engine) IngestPDF(ctx context.Context, path, title string) (*Result, error) {
	recs, err := e.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	return e.Structure(ctx, ActInput{
		SourceID: strings.TrimSuffix(base, filepath.Ext(base)),
		Title:    title,
		Pages:    recs,
	})
}

// Store returns the underlying store for diagnostic access.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	if e.pg != nil {
		e.pg.Close()
	}
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// actNamespace is the UUIDv5 namespace of Act ids.
var actNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://www.lawcommission.gov.np/acts"))

// ActID returns the stable id of the Act with the given source id.
func ActID(sourceID string) string {
	return uuid.NewSHA1(actNamespace, []byte(sourceID)).String()
}
