package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- One row per structured Act, keyed by the deterministic act id
CREATE TABLE IF NOT EXISTS acts (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    date TEXT,
    preamble TEXT,
    partial INTEGER NOT NULL DEFAULT 0,
    page_count INTEGER NOT NULL DEFAULT 0,
    pages JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Citation-addressed chunks
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY,
    act_id TEXT NOT NULL REFERENCES acts(id) ON DELETE CASCADE,
    citation_path TEXT NOT NULL,
    kind TEXT NOT NULL,
    heading TEXT,
    content TEXT NOT NULL,
    language TEXT,
    provenance TEXT NOT NULL,
    confidence REAL NOT NULL,
    page_number INTEGER,
    position_in_act INTEGER,
    token_count INTEGER,
    cross_references JSON,
    is_definition INTEGER NOT NULL DEFAULT 0,
    defined_term TEXT,
    is_schedule INTEGER NOT NULL DEFAULT 0,
    content_hash TEXT NOT NULL,
    context_text TEXT,
    citation TEXT,
    UNIQUE(act_id, citation_path)
);

-- Vector slot for embeddings computed downstream
CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Full-text search via FTS5
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    content,
    heading,
    citation_path,
    content='chunks',
    content_rowid='id',
    tokenize='porter unicode61 remove_diacritics 0'
);

-- FTS triggers to keep index in sync
CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, content, heading, citation_path) VALUES (new.id, new.content, new.heading, new.citation_path);
END;
CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, content, heading, citation_path) VALUES ('delete', old.id, old.content, old.heading, old.citation_path);
END;
CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, content, heading, citation_path) VALUES ('delete', old.id, old.content, old.heading, old.citation_path);
    INSERT INTO chunks_fts(rowid, content, heading, citation_path) VALUES (new.id, new.content, new.heading, new.citation_path);
END;

-- Structural health report, one per Act
CREATE TABLE IF NOT EXISTS health_reports (
    act_id TEXT PRIMARY KEY REFERENCES acts(id) ON DELETE CASCADE,
    status TEXT NOT NULL,
    anomaly_count INTEGER NOT NULL,
    empty_leaf_count INTEGER NOT NULL,
    ocr_fraction REAL NOT NULL,
    node_count INTEGER NOT NULL,
    stats JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Recorded issues for human review
CREATE TABLE IF NOT EXISTS issues (
    id INTEGER PRIMARY KEY,
    act_id TEXT NOT NULL REFERENCES acts(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    code TEXT NOT NULL,
    message TEXT,
    page_number INTEGER,
    citation_path TEXT
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_chunks_act ON chunks(act_id);
CREATE INDEX IF NOT EXISTS idx_chunks_kind ON chunks(kind);
CREATE INDEX IF NOT EXISTS idx_issues_act ON issues(act_id);
CREATE INDEX IF NOT EXISTS idx_reports_status ON health_reports(status);
`, embeddingDim)
}
