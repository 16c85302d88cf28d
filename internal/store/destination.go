package store

import (
	"context"
	"fmt"

	"github.com/weftlabs/weft/internal/record"
)

// TableDestination lands routed records in the routed_records table,
// one row per routed record with the payload stored as canonical JSON.
// Fan-out siblings for one natural_id are kept apart by payload hash,
// which is why the engine deletes before upserting on update.
type TableDestination struct {
	store  *Store
	target string
}

// NewTableDestination returns a destination writing rows tagged with the
// given destination node name.
func (s *Store) NewTableDestination(target string) *TableDestination {
	return &TableDestination{store: s, target: target}
}

func (d *TableDestination) Target() string { return d.target }

// Upsert writes one routed record. Idempotent: replaying the same record
// replaces the row in place.
func (d *TableDestination) Upsert(ctx context.Context, rec record.RoutedRecord) error {
	hash, err := record.PayloadHash(rec.Payload)
	if err != nil {
		return fmt.Errorf("hashing payload for %s: %w", rec.Lineage, err)
	}
	payload, err := record.MarshalCanonical(rec.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload for %s: %w", rec.Lineage, err)
	}

	_, err = d.store.db.ExecContext(ctx, `
		INSERT INTO routed_records (target, source_id, natural_id, payload_hash, lineage, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(target, source_id, natural_id, payload_hash)
		DO UPDATE SET lineage = excluded.lineage,
		              payload = excluded.payload,
		              updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, d.target, rec.SourceID, rec.NaturalID, hash, rec.Lineage, string(payload))
	if err != nil {
		return fmt.Errorf("upsert routed record %s: %w", rec.Lineage, err)
	}
	return nil
}

// Delete removes every row derived from (sourceID, naturalID), fan-out
// siblings included. Deleting an absent record is not an error.
func (d *TableDestination) Delete(ctx context.Context, sourceID, naturalID string) error {
	_, err := d.store.db.ExecContext(ctx, `
		DELETE FROM routed_records
		WHERE target = ? AND source_id = ? AND natural_id = ?
	`, d.target, sourceID, naturalID)
	if err != nil {
		return fmt.Errorf("delete routed records %s/%s: %w", sourceID, naturalID, err)
	}
	return nil
}

// StoredRecord is one row of the table destination, payload as canonical
// JSON text.
type StoredRecord struct {
	SourceID    string
	NaturalID   string
	PayloadHash string
	Lineage     string
	Payload     string
}

// Records returns every row for this destination, ordered by natural_id
// then payload hash.
func (d *TableDestination) Records(ctx context.Context) ([]StoredRecord, error) {
	rows, err := d.store.db.QueryContext(ctx, `
		SELECT source_id, natural_id, payload_hash, lineage, payload
		FROM routed_records
		WHERE target = ?
		ORDER BY source_id, natural_id, payload_hash
	`, d.target)
	if err != nil {
		return nil, fmt.Errorf("list routed records: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var r StoredRecord
		if err := rows.Scan(&r.SourceID, &r.NaturalID, &r.PayloadHash, &r.Lineage, &r.Payload); err != nil {
			return nil, fmt.Errorf("scan routed record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list routed records: %w", err)
	}
	return out, nil
}

// Count returns the number of rows stored for this destination.
func (d *TableDestination) Count(ctx context.Context) (int, error) {
	var n int
	err := d.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM routed_records WHERE target = ?`, d.target).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count routed records: %w", err)
	}
	return n, nil
}
