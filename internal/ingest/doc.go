// Package ingest brings match video and submissions into the pipeline.
//
// The download stage resolves a job's video reference into a local input
// file inside the job's work directory: local paths are validated and used
// in place, remote http(s) URLs are streamed to disk through the retry
// executor with progress reported against Content-Length. RemoveDownload
// deletes a fetched input once the job no longer needs it.
//
// Consumer is the optional AMQP intake. It declares the configured exchange
// and durable queue, decodes each delivery as an api.SubmitRequest, and
// submits it through the same job service as the HTTP API. Malformed or
// invalid submissions are rejected without requeue; storage failures are
// requeued for another attempt.
package ingest
