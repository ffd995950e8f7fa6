// Package health polls upstream processing endpoints and keeps one record
// per endpoint: current status, consecutive failures, alert state and a
// rolling uptime figure computed from bounded check history.
//
// A single alert opens when consecutive failures reach the configured
// threshold and closes with one recovery event on the next success. Slow
// but successful responses raise their own event without changing status.
// Endpoints can be registered, removed and checked on demand while the
// monitor runs.
package health
