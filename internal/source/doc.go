// Package source provides the built-in record sources: an in-memory slice
// source for tests and composition, and a JSONL file source for syncing
// line-delimited JSON documents.
package source
