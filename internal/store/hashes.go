package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetHash returns the stored content hash for one record, with ok=false
// when no entry exists.
func (s *Store) GetHash(ctx context.Context, sourceID, collection, naturalID string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash FROM record_hashes
		WHERE source_id = ? AND collection = ? AND natural_id = ?
	`, sourceID, collection, naturalID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get hash: %w", err)
	}
	return hash, true, nil
}

// PutHash inserts or replaces the content hash for one record.
// Idempotent: re-putting the same hash is a no-op in effect.
func (s *Store) PutHash(ctx context.Context, sourceID, collection, naturalID, contentHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO record_hashes (source_id, collection, natural_id, content_hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id, collection, natural_id)
		DO UPDATE SET content_hash = excluded.content_hash,
		              updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, sourceID, collection, naturalID, contentHash)
	if err != nil {
		return fmt.Errorf("put hash: %w", err)
	}
	return nil
}

// ListNaturalIDs returns every natural_id with a hash entry in the scope.
// This is the orphan-sweep snapshot taken at job start.
func (s *Store) ListNaturalIDs(ctx context.Context, sourceID, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT natural_id FROM record_hashes
		WHERE source_id = ? AND collection = ?
		ORDER BY natural_id
	`, sourceID, collection)
	if err != nil {
		return nil, fmt.Errorf("list natural ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan natural id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list natural ids: %w", err)
	}
	return ids, nil
}

// RemoveHash deletes one record's hash entry. Removing a missing entry is
// not an error (idempotent under retry).
func (s *Store) RemoveHash(ctx context.Context, sourceID, collection, naturalID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM record_hashes
		WHERE source_id = ? AND collection = ? AND natural_id = ?
	`, sourceID, collection, naturalID)
	if err != nil {
		return fmt.Errorf("remove hash: %w", err)
	}
	return nil
}
