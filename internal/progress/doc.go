// Package progress carries run milestones from the pipeline workers to
// observers. Workers Emit events without blocking; a Hub drains them on a
// background goroutine and hands batches to sinks such as the Tracker behind
// GET /v1/run or the zap log sink.
package progress
