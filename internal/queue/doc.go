// Package queue persists processing jobs in SQLite and exposes the
// transitions the worker pool drives them through.
//
// The Store owns schema initialization, atomic claims, heartbeat tracking,
// stale-claim recovery with attempt backoff, cancellation, monotonic progress
// updates, and the upload and cleanup-run records the storage coordinator
// writes. Every write that belongs to a worker is guarded by claimed_by so a
// worker that lost its claim cannot overwrite the new owner's state.
//
// Schema changes bump schemaVersion in schema.go; older databases are
// rejected and must be recreated.
package queue
