// Package store provides the SQLite-backed persistence for sync runs.
//
// Three concerns live here, all in one database file:
//
//   - record hashes: the (source, collection, natural_id) → content_hash
//     entries that drive incremental diffing and orphan detection
//   - sync jobs: terminal job records with their final counters
//   - the table destination: a concrete Destination that lands routed
//     records in a queryable SQLite table
//
// The database runs in WAL mode with a single writer connection; all
// statements are idempotent via ON CONFLICT upserts, which is what makes
// destination retries safe.
package store
