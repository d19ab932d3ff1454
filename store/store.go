// Package store persists structured Acts, their chunks and health reports
// in SQLite, with FTS5 for text search and a sqlite-vec slot for
// embeddings computed downstream. A Postgres sink hands the same data to
// a shared database.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/vidhi/chunker"
	"github.com/brunobiangulo/vidhi/citation"
	"github.com/brunobiangulo/vidhi/structure"
)

func init() {
	sqlite_vec.Auto()
}

var (
	ErrStoreClosed = errors.New("vidhi: store closed")
	ErrActNotFound = errors.New("vidhi: act not found")

	errChunkNotFound = errors.New("chunk not found")
)

// DefaultEmbeddingDim is used when New is given a non-positive dimension.
const DefaultEmbeddingDim = 768

// Sink receives every structured Act before its tree is released.
type Sink interface {
	Emit(ctx context.Context, act *structure.Act, chunks []chunker.Chunk, report *citation.Report) error
}

// ActRow is a row in the acts table joined with its health report.
type ActRow struct {
	ID             string           `json:"id"`
	SourceID       string           `json:"source_id"`
	Title          string           `json:"title"`
	Date           string           `json:"date,omitempty"`
	Preamble       string           `json:"preamble,omitempty"`
	Partial        bool             `json:"partial"`
	PageCount      int              `json:"page_count"`
	Pages          []structure.Page `json:"pages,omitempty"`
	Status         citation.Status  `json:"status"`
	AnomalyCount   int              `json:"anomaly_count"`
	EmptyLeafCount int              `json:"empty_leaf_count"`
	OCRFraction    float64          `json:"ocr_fraction"`
	NodeCount      int              `json:"node_count"`
	CreatedAt      string           `json:"created_at"`
	UpdatedAt      string           `json:"updated_at"`
}

// StoredChunk is a chunk with its row id.
type StoredChunk struct {
	ID int64 `json:"id"`
	chunker.Chunk
}

// SearchResult is a chunk matched by text or vector search.
type SearchResult struct {
	StoredChunk
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Store wraps the SQLite database for all vidhi persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
	logger       *slog.Logger
	closed       atomic.Bool
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including sqlite-vec and FTS5 virtual tables.
func New(dbPath string, embeddingDim int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if embeddingDim <= 0 {
		embeddingDim = DefaultEmbeddingDim
	}
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim, logger: logger}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection. Later calls on the
// store return ErrStoreClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

func (s *Store) check() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

// --- Act operations ---

// Emit implements Sink.
func (s *Store) Emit(ctx context.Context, act *structure.Act, chunks []chunker.Chunk, report *citation.Report) error {
	return s.SaveAct(ctx, act, chunks, report)
}

// SaveAct stores an Act with its chunks, health report and issues in one
// transaction, replacing whatever was stored for the same act id.
func (s *Store) SaveAct(ctx context.Context, act *structure.Act, chunks []chunker.Chunk, report *citation.Report) error {
	if err := s.check(); err != nil {
		return err
	}
	pages, err := json.Marshal(act.Pages)
	if err != nil {
		return fmt.Errorf("encoding pages: %w", err)
	}
	stats, err := json.Marshal(report.Stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteActData(ctx, tx, act.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO acts (id, source_id, title, date, preamble, partial, page_count, pages)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source_id = excluded.source_id,
				title = excluded.title,
				date = excluded.date,
				preamble = excluded.preamble,
				partial = excluded.partial,
				page_count = excluded.page_count,
				pages = excluded.pages,
				updated_at = CURRENT_TIMESTAMP
		`, act.ID, act.SourceID, act.Title, act.Date, act.Preamble, act.Partial, len(act.Pages), string(pages)); err != nil {
			return fmt.Errorf("upserting act: %w", err)
		}

		if err := insertChunks(ctx, tx, act.ID, chunks); err != nil {
			return err
		}

		ratio := 0.0
		if report.Stats.Nodes > 0 {
			ratio = float64(report.AnomalyCount) / float64(report.Stats.Nodes)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO health_reports (act_id, status, anomaly_count, empty_leaf_count,
				ocr_fraction, node_count, stats, anomaly_ratio)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, act.ID, string(report.Status), report.AnomalyCount, report.EmptyLeafCount,
			report.OCRFraction, report.Stats.Nodes, string(stats), ratio); err != nil {
			return fmt.Errorf("inserting report: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO issues (act_id, kind, code, message, page_number, citation_path)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, is := range report.Issues {
			if _, err := stmt.ExecContext(ctx, act.ID, string(is.Kind), is.Code, is.Message, is.Page, is.Path); err != nil {
				return fmt.Errorf("inserting issue: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving act %s: %w", act.ID, err)
	}
	s.logger.Debug("store: act saved", "act_id", act.ID, "chunks", len(chunks), "issues", len(report.Issues))
	return nil
}

func deleteActData(ctx context.Context, tx *sql.Tx, actID string) error {
	for _, q := range []string{
		`DELETE FROM vec_chunks WHERE chunk_id IN (SELECT id FROM chunks WHERE act_id = ?)`,
		// Triggers clean up FTS.
		`DELETE FROM chunks WHERE act_id = ?`,
		`DELETE FROM issues WHERE act_id = ?`,
		`DELETE FROM health_reports WHERE act_id = ?`,
		`DELETE FROM cross_refs WHERE act_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, actID); err != nil {
			return fmt.Errorf("clearing act data: %w", err)
		}
	}
	return nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, actID string, chunks []chunker.Chunk) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (act_id, citation_path, kind, heading, content, language, provenance,
			confidence, page_number, position_in_act, token_count, cross_references,
			is_definition, defined_term, is_schedule, content_hash, context_text, citation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		var refs any
		if len(c.CrossReferences) > 0 {
			b, err := json.Marshal(c.CrossReferences)
			if err != nil {
				return err
			}
			refs = string(b)
		}
		if _, err := stmt.ExecContext(ctx,
			actID, c.CitationPath, c.Kind, c.Heading, c.Text, c.LanguageHint, string(c.Provenance),
			c.Confidence, c.Page, c.Position, c.TokenCount, refs,
			c.IsDefinition, c.DefinedTerm, c.IsSchedule, c.ContentHash, c.ContextText, c.Citation); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.CitationPath, err)
		}
	}
	return nil
}

const actColumns = `
	a.id, a.source_id, a.title, COALESCE(a.date, ''), COALESCE(a.preamble, ''), a.partial,
	a.page_count, a.pages, a.created_at, a.updated_at,
	COALESCE(h.status, ''), COALESCE(h.anomaly_count, 0), COALESCE(h.empty_leaf_count, 0),
	COALESCE(h.ocr_fraction, 0), COALESCE(h.node_count, 0)
	FROM acts a LEFT JOIN health_reports h ON h.act_id = a.id`

func scanAct(sc interface{ Scan(...any) error }) (*ActRow, error) {
	var a ActRow
	var pages sql.NullString
	var status string
	if err := sc.Scan(&a.ID, &a.SourceID, &a.Title, &a.Date, &a.Preamble, &a.Partial,
		&a.PageCount, &pages, &a.CreatedAt, &a.UpdatedAt,
		&status, &a.AnomalyCount, &a.EmptyLeafCount, &a.OCRFraction, &a.NodeCount); err != nil {
		return nil, err
	}
	a.Status = citation.Status(status)
	if pages.Valid && pages.String != "" {
		if err := json.Unmarshal([]byte(pages.String), &a.Pages); err != nil {
			return nil, fmt.Errorf("decoding pages: %w", err)
		}
	}
	return &a, nil
}

// GetAct returns the stored Act with the given id.
func (s *Store) GetAct(ctx context.Context, id string) (*ActRow, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	a, err := scanAct(s.db.QueryRowContext(ctx, "SELECT"+actColumns+" WHERE a.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("act %s: %w", id, ErrActNotFound)
	}
	return a, err
}

// ListActs returns all stored Acts ordered by title.
func (s *Store) ListActs(ctx context.Context) ([]ActRow, error) {
	return s.queryActs(ctx, "SELECT"+actColumns+" ORDER BY a.title, a.id")
}

// Reports returns the Acts whose health status matches status, or all
// Acts when status is empty, worst anomaly ratio first.
func (s *Store) Reports(ctx context.Context, status citation.Status) ([]ActRow, error) {
	if status == "" {
		return s.queryActs(ctx, "SELECT"+actColumns+" ORDER BY h.anomaly_ratio DESC, a.title")
	}
	return s.queryActs(ctx, "SELECT"+actColumns+" WHERE h.status = ? ORDER BY h.anomaly_ratio DESC, a.title", string(status))
}

func (s *Store) queryActs(ctx context.Context, query string, args ...any) ([]ActRow, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var acts []ActRow
	for rows.Next() {
		a, err := scanAct(rows)
		if err != nil {
			return nil, err
		}
		acts = append(acts, *a)
	}
	return acts, rows.Err()
}

// DeleteAct removes an Act and everything stored for it.
func (s *Store) DeleteAct(ctx context.Context, id string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteActData(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM acts WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("act %s: %w", id, ErrActNotFound)
		}
		return nil
	})
}

// IssuesForAct returns the issues recorded for an Act.
func (s *Store) IssuesForAct(ctx context.Context, actID string) ([]structure.Issue, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, code, COALESCE(message, ''), COALESCE(page_number, 0), COALESCE(citation_path, '')
		FROM issues WHERE act_id = ? ORDER BY id
	`, actID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []structure.Issue
	for rows.Next() {
		var is structure.Issue
		var kind string
		if err := rows.Scan(&kind, &is.Code, &is.Message, &is.Page, &is.Path); err != nil {
			return nil, err
		}
		is.Kind = structure.IssueKind(kind)
		issues = append(issues, is)
	}
	return issues, rows.Err()
}

// --- Chunk operations ---

const chunkColumns = `
	c.id, c.act_id, c.citation_path, c.kind, COALESCE(c.heading, ''), c.content,
	COALESCE(c.language, ''), c.provenance, c.confidence, COALESCE(c.page_number, 0),
	COALESCE(c.position_in_act, 0), COALESCE(c.token_count, 0), c.cross_references,
	c.is_definition, COALESCE(c.defined_term, ''), c.is_schedule, c.content_hash,
	COALESCE(c.context_text, ''), COALESCE(c.citation, '')`

func scanChunk(sc interface{ Scan(...any) error }, extra ...any) (*StoredChunk, error) {
	var c StoredChunk
	var prov string
	var refs sql.NullString
	dest := []any{&c.ID, &c.ActID, &c.CitationPath, &c.Kind, &c.Heading, &c.Text,
		&c.LanguageHint, &prov, &c.Confidence, &c.Page,
		&c.Position, &c.TokenCount, &refs,
		&c.IsDefinition, &c.DefinedTerm, &c.IsSchedule, &c.ContentHash,
		&c.ContextText, &c.Citation}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.Provenance = structure.Provenance(prov)
	c.Comprehensive = c.Kind == chunker.KindComprehensive
	if refs.Valid && refs.String != "" {
		if err := json.Unmarshal([]byte(refs.String), &c.CrossReferences); err != nil {
			return nil, fmt.Errorf("decoding cross references: %w", err)
		}
	}
	return &c, nil
}

// ChunksForAct returns an Act's chunks in document order.
func (s *Store) ChunksForAct(ctx context.Context, actID string) ([]StoredChunk, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT"+chunkColumns+" FROM chunks c WHERE c.act_id = ? ORDER BY c.position_in_act", actID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []StoredChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

// SearchChunks performs a full-text search using FTS5 BM25 ranking.
// Every whitespace-separated term of query must match.
func (s *Store) SearchChunks(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	q := ftsQuery(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+chunkColumns+`, a.title, f.rank
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		JOIN acts a ON a.id = c.act_id
		WHERE chunks_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var rank float64
		c, err := scanChunk(rows, &r.Title, &rank)
		if err != nil {
			return nil, err
		}
		r.StoredChunk = *c
		// FTS5 rank is negative (lower = better), convert to positive score
		r.Score = -rank
		results = append(results, r)
	}
	return results, rows.Err()
}

// ftsQuery quotes each term so that brackets and other FTS5 syntax in
// markers such as "(क)" are matched literally.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}

// --- Embedding operations ---

// ChunkID returns the row id of the chunk at path in an Act.
func (s *Store) ChunkID(ctx context.Context, actID, path string) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM chunks WHERE act_id = ? AND citation_path = ?", actID, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s in act %s: %w", path, actID, errChunkNotFound)
	}
	return id, err
}

// InsertEmbedding stores a vector embedding for a chunk.
func (s *Store) InsertEmbedding(ctx context.Context, chunkID int64, embedding []float32) error {
	if err := s.check(); err != nil {
		return err
	}
	if len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding has %d dimensions, store expects %d", len(embedding), s.embeddingDim)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)",
		chunkID, serializeFloat32(embedding))
	return err
}

// NearestChunks performs a KNN search returning the top-k nearest chunks.
func (s *Store) NearestChunks(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+chunkColumns+`, a.title, v.distance
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN acts a ON a.id = c.act_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var distance float64
		c, err := scanChunk(rows, &r.Title, &distance)
		if err != nil {
			return nil, err
		}
		r.StoredChunk = *c
		r.Score = 1.0 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

// DBStats holds counts of key database objects.
type DBStats struct {
	Acts       int `json:"acts"`
	Chunks     int `json:"chunks"`
	Embeddings int `json:"embeddings"`
	Issues     int `json:"issues"`
	Review     int `json:"needs_review"`
	References int `json:"references"`
}

// DBStats returns row counts of the main tables.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM acts", &stats.Acts},
		{"SELECT COUNT(*) FROM chunks", &stats.Chunks},
		{"SELECT COUNT(*) FROM vec_chunks", &stats.Embeddings},
		{"SELECT COUNT(*) FROM issues", &stats.Issues},
		{"SELECT COUNT(*) FROM health_reports WHERE status = 'needs_review'", &stats.Review},
		{"SELECT COUNT(*) FROM cross_refs", &stats.References},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
