// Package notifications delivers operational alerts via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Events are grouped
// into job, health and storage categories; each category can be switched off
// with notifications.job_errors, health_alerts and storage_alerts so noisy
// deployments can keep only what they watch.
//
// Callers depend only on the Service interface; caller-facing job completion
// goes through the webhook package instead.
package notifications
