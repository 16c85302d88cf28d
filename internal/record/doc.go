// Package record defines the data model shared by every stage of a sync run.
//
// A SourceRecord is one record as emitted by a source connector, identified
// by (SourceID, NaturalID). A RoutedRecord is the output of running a
// SourceRecord through the transform DAG: a transformed payload plus the set
// of destination targets it must be written to. All RoutedRecords derived
// from one SourceRecord share that record's LineageID.
//
// Payloads are constrained value trees (Object/Array/String/Int/Float/Bool/
// Null) rather than raw map[string]any. The constraint exists for one
// reason: content hashing. Change detection compares a stored hash against a
// freshly computed one, so serialization must be canonical:
//
//   - Object keys sorted by UTF-16 code units
//   - Strings NFC-normalized, no HTML escaping
//   - Floats rendered with shortest round-trip formatting
//   - NaN and infinities rejected
//
// Identical payloads therefore always produce identical bytes, and identical
// bytes produce identical SHA-256 digests, across processes and across runs.
package record
