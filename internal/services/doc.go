// Package services defines shared utilities consumed by the pipeline stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, worker slots and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures for
//     the job record, the completion webhook and retry decisions.
//
// Use these helpers when wiring new stage logic so operational behaviour
// stays uniform across the pipeline.
package services
