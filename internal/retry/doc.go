// Package retry wraps outbound network calls in exponential backoff with
// jitter.
//
// Every HTTP client in matchreel (video host, webhook delivery, health checks)
// routes through an Executor. Errors are classified by IsRetryable: 5xx, 408,
// 429, network timeouts and services.ErrTransient are retried; other 4xx
// responses, validation failures and caller cancellation return after a single
// attempt.
package retry
