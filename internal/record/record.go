package record

// SourceRecord is one record as produced by a source connector.
//
// Within one job run, NaturalID is unique per source: the producer delivers
// each natural ID at most once, which is what lets the engine touch the hash
// store without entry-level locking.
type SourceRecord struct {
	// SourceID identifies the producing source connector.
	SourceID string

	// NaturalID is the record's identity within the source (file path,
	// ticket key, row primary key, ...). Stable across runs.
	NaturalID string

	// Kind names the record's shape (e.g. "issue", "comment"). Used for
	// per-kind encountered tracking; empty is valid.
	Kind string

	// Payload is the record content.
	Payload Object

	// SkipMarked is set by the source when the record should bypass the
	// pipeline entirely (e.g. unsupported file type). Counts as skipped.
	SkipMarked bool
}

// LineageID identifies the originating SourceRecord for everything derived
// from it. All RoutedRecords produced from one SourceRecord share it.
func (r SourceRecord) LineageID() string {
	return r.SourceID + "/" + r.NaturalID
}

// RoutedRecord is the output of running a SourceRecord through the DAG:
// a transformed payload tagged with the destinations it must be written to.
type RoutedRecord struct {
	// Lineage references the originating SourceRecord.
	Lineage string

	// SourceID and NaturalID are carried from the originating record so
	// destinations can key writes without parsing the lineage ID.
	SourceID  string
	NaturalID string

	// Payload is the transformed content.
	Payload Object

	// Targets is the set of destination node names this record must be
	// written to. Never empty on a record returned by the router.
	Targets []string
}
