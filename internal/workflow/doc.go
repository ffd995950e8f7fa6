// Package workflow runs the job worker pool.
//
// The Manager starts a fixed number of workers. Each worker claims the
// oldest eligible queued job from the SQLite store and drives it through the
// registered stage handlers in strict order (download, parse_notes, analyze,
// assemble, upload). Every stage runs under its own timeout, outputs are
// persisted after each stage, and cancellation requested by the caller is
// honoured at stage boundaries.
//
// While a job is claimed a heartbeat loop refreshes the claim. A reclaimer
// returns jobs whose heartbeat went stale (a crashed or wedged worker) to the
// queue with exponential backoff until the attempt limit is reached, which
// gives at-least-once processing. Terminal outcomes are reported to the
// caller's webhook and, for failures, to ntfy.
package workflow
