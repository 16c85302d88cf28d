// Package stream decouples source record production from worker consumption.
//
// A Stream wraps a Source's lazy sequence with a bounded queue. The producer
// runs as an independent goroutine pushing into the queue; workers pull one
// record at a time. When the queue is full the producer's emit call blocks,
// throttling the source without unbounded buffering.
//
// End-of-stream is a closed-channel sentinel, observed by every consumer as
// Next returning ok=false. Producer failure is captured before the sentinel
// so the fan-in side can distinguish "exhausted" from "failed" via Err.
// Cancellation is cooperative: the producer checks the context between
// records, and Next unblocks immediately when the context is done.
package stream
