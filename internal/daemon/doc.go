// Package daemon coordinates the long-running matchreel process.
//
// It wires configuration, the queue store, the workflow manager, the health
// monitor, the storage cleanup scheduler and the optional AMQP intake into a
// single lifecycle with flock-based locking to prevent multiple instances,
// and serves the HTTP API used by callers and the CLI.
//
// Keep orchestration logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown and request routing.
package daemon
