package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brunobiangulo/vidhi/chunker"
	"github.com/brunobiangulo/vidhi/citation"
	"github.com/brunobiangulo/vidhi/structure"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS legal_chunks (
    id UUID PRIMARY KEY,
    act_id UUID NOT NULL,
    source_document VARCHAR(255) NOT NULL,
    chunk_index INTEGER NOT NULL,
    chunk_text TEXT NOT NULL,
    citation_path TEXT NOT NULL,
    section_level INTEGER,
    kind VARCHAR(32) NOT NULL,
    provenance VARCHAR(16) NOT NULL,
    confidence REAL NOT NULL,
    language VARCHAR(8),
    metadata JSONB DEFAULT '{}'::jsonb,
    created_at TIMESTAMP DEFAULT NOW(),
    CONSTRAINT legal_chunks_path_unique UNIQUE (act_id, citation_path)
);
CREATE INDEX IF NOT EXISTS idx_legal_chunks_act ON legal_chunks(act_id);
CREATE INDEX IF NOT EXISTS idx_legal_chunks_source ON legal_chunks(source_document);

CREATE TABLE IF NOT EXISTS act_health (
    act_id UUID PRIMARY KEY,
    source_document VARCHAR(255) NOT NULL,
    title TEXT NOT NULL,
    status VARCHAR(16) NOT NULL,
    anomaly_count INTEGER NOT NULL,
    empty_leaf_count INTEGER NOT NULL,
    ocr_fraction REAL NOT NULL,
    node_count INTEGER NOT NULL,
    partial BOOLEAN NOT NULL DEFAULT false,
    issues JSONB DEFAULT '[]'::jsonb,
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_act_health_status ON act_health(status);
`

// PostgresSink writes chunks and health reports to a shared Postgres
// database, in the legal_chunks layout downstream retrieval reads.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresSink connects to dsn.
func NewPostgresSink(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresSink{pool: pool, logger: logger}, nil
}

// EnsureSchema creates the sink's tables if they do not exist.
func (p *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating postgres schema: %w", err)
	}
	return nil
}

func (p *PostgresSink) Close() {
	p.pool.Close()
}

// pgChunk is one legal_chunks row.
type pgChunk struct {
	ID           uuid.UUID
	Index        int
	Text         string
	Path         string
	SectionLevel int
	Kind         string
	Provenance   string
	Confidence   float64
	Language     string
	Metadata     []byte
}

type pgChunkMeta struct {
	Heading         string                   `json:"heading,omitempty"`
	Citation        string                   `json:"citation,omitempty"`
	ContextText     string                   `json:"context_text,omitempty"`
	Page            int                      `json:"page,omitempty"`
	CrossReferences []chunker.CrossReference `json:"cross_references,omitempty"`
	IsDefinition    bool                     `json:"is_definition,omitempty"`
	DefinedTerm     string                   `json:"defined_term,omitempty"`
	IsSchedule      bool                     `json:"is_schedule,omitempty"`
	TokenCount      int                      `json:"token_count"`
	ContentHash     string                   `json:"content_hash"`
}

// pgRows maps chunks to legal_chunks rows. Row ids are derived from the
// act id and citation path so re-emitting an Act overwrites its rows.
func pgRows(actID uuid.UUID, chunks []chunker.Chunk) ([]pgChunk, error) {
	rows := make([]pgChunk, 0, len(chunks))
	for _, c := range chunks {
		meta, err := json.Marshal(pgChunkMeta{
			Heading:         c.Heading,
			Citation:        c.Citation,
			ContextText:     c.ContextText,
			Page:            c.Page,
			CrossReferences: c.CrossReferences,
			IsDefinition:    c.IsDefinition,
			DefinedTerm:     c.DefinedTerm,
			IsSchedule:      c.IsSchedule,
			TokenCount:      c.TokenCount,
			ContentHash:     c.ContentHash,
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, pgChunk{
			ID:           uuid.NewSHA1(actID, []byte(c.CitationPath)),
			Index:        c.Position,
			Text:         c.Text,
			Path:         c.CitationPath,
			SectionLevel: sectionLevel(c.CitationPath),
			Kind:         c.Kind,
			Provenance:   string(c.Provenance),
			Confidence:   c.Confidence,
			Language:     c.LanguageHint,
			Metadata:     meta,
		})
	}
	return rows, nil
}

// sectionLevel is the depth of a citation path below the Act root.
func sectionLevel(path string) int {
	path = strings.TrimSuffix(path, "/Full")
	return strings.Count(path, "/")
}

// Emit implements Sink. The Act's previous rows are replaced in one
// transaction.
func (p *PostgresSink) Emit(ctx context.Context, act *structure.Act, chunks []chunker.Chunk, report *citation.Report) error {
	actID, err := uuid.Parse(act.ID)
	if err != nil {
		return fmt.Errorf("act id %q: %w", act.ID, err)
	}
	rows, err := pgRows(actID, chunks)
	if err != nil {
		return fmt.Errorf("encoding chunk metadata: %w", err)
	}
	issues, err := json.Marshal(report.Issues)
	if err != nil {
		return fmt.Errorf("encoding issues: %w", err)
	}

	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM legal_chunks WHERE act_id = $1", actID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, r := range rows {
			batch.Queue(`
				INSERT INTO legal_chunks (id, act_id, source_document, chunk_index, chunk_text,
					citation_path, section_level, kind, provenance, confidence, language, metadata)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				r.ID, actID, act.SourceID, r.Index, r.Text,
				r.Path, r.SectionLevel, r.Kind, r.Provenance, r.Confidence, r.Language, r.Metadata)
		}
		batch.Queue(`
			INSERT INTO act_health (act_id, source_document, title, status, anomaly_count,
				empty_leaf_count, ocr_fraction, node_count, partial, issues, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
			ON CONFLICT (act_id) DO UPDATE SET
				source_document = EXCLUDED.source_document,
				title = EXCLUDED.title,
				status = EXCLUDED.status,
				anomaly_count = EXCLUDED.anomaly_count,
				empty_leaf_count = EXCLUDED.empty_leaf_count,
				ocr_fraction = EXCLUDED.ocr_fraction,
				node_count = EXCLUDED.node_count,
				partial = EXCLUDED.partial,
				issues = EXCLUDED.issues,
				updated_at = NOW()`,
			actID, act.SourceID, act.Title, string(report.Status), report.AnomalyCount,
			report.EmptyLeafCount, report.OCRFraction, report.Stats.Nodes, act.Partial, issues)

		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: emitting act %s: %w", act.ID, err)
	}
	p.logger.Debug("store: act sent to postgres", "act_id", act.ID, "chunks", len(rows))
	return nil
}
