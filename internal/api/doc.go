// Package api defines wire-format types and converters for the daemon's HTTP
// API and the AMQP intake. It translates queue models into transport-friendly
// DTOs so the CLI and external callers never depend on internal types.
//
// # Key Types
//
// SubmitRequest/SubmitResponse: job submission payload and the opaque job id
// plus estimated completion hint returned to the caller.
//
// Job: status view of one processing job with progress, uploads and the
// terminal result or error.
//
// WorkflowStatus/DaemonStatus: worker pool state, queue stats, stage health
// and dependency availability.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Queue statuses are exposed as lowercase
// strings and timestamps use RFC3339 with milliseconds. The stored job result
// is passed through as json.RawMessage to avoid double-encoding.
package api
