// Package engine runs sync jobs: it drains a source stream through the
// transform graph, decides insert/update/keep per record by comparing
// content hashes against the previous run, writes to destinations with
// bounded concurrency, and sweeps orphans once the stream is exhausted.
//
// The failure taxonomy is deliberate. Producer errors are fatal because a
// partial stream would make the orphan sweep delete live records. Transform
// errors are scoped to one branch of one record. Destination errors are
// retried and then skipped, unless enough of them land in a row to indicate
// the destination itself is down.
package engine
