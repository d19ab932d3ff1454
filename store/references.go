package store

import (
	"context"
	"database/sql"
	"fmt"
)

const crossRefsSQL = `
CREATE TABLE IF NOT EXISTS cross_refs (
    id INTEGER PRIMARY KEY,
    act_id TEXT NOT NULL REFERENCES acts(id) ON DELETE CASCADE,
    from_path TEXT NOT NULL,
    to_path TEXT NOT NULL DEFAULT '',
    ref_type TEXT NOT NULL,
    ref_text TEXT NOT NULL,
    resolved INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cross_refs_act ON cross_refs(act_id);
CREATE INDEX IF NOT EXISTS idx_cross_refs_to ON cross_refs(act_id, to_path);
`

// Reference is one cross reference between citation paths of an Act. An
// unresolved reference has an empty To.
type Reference struct {
	ActID    string `json:"act_id"`
	From     string `json:"from"`
	To       string `json:"to,omitempty"`
	Type     string `json:"type"`
	Text     string `json:"text"`
	Resolved bool   `json:"resolved"`
}

// ReplaceReferences replaces the stored cross references of an Act. The
// Act must already be saved.
func (s *Store) ReplaceReferences(ctx context.Context, actID string, refs []Reference) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cross_refs WHERE act_id = ?", actID); err != nil {
			return fmt.Errorf("clearing references: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO cross_refs (act_id, from_path, to_path, ref_type, ref_text, resolved)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range refs {
			if _, err := stmt.ExecContext(ctx, actID, r.From, r.To, r.Type, r.Text, r.Resolved); err != nil {
				return fmt.Errorf("inserting reference %s -> %s: %w", r.From, r.Text, err)
			}
		}
		return nil
	})
}

// ReferencesForAct returns the cross references of an Act in insertion
// order.
func (s *Store) ReferencesForAct(ctx context.Context, actID string) ([]Reference, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT act_id, from_path, to_path, ref_type, ref_text, resolved
		FROM cross_refs WHERE act_id = ? ORDER BY id
	`, actID)
	if err != nil {
		return nil, fmt.Errorf("querying references: %w", err)
	}
	defer rows.Close()

	var refs []Reference
	for rows.Next() {
		var r Reference
		if err := rows.Scan(&r.ActID, &r.From, &r.To, &r.Type, &r.Text, &r.Resolved); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}
