// Package preflight provides readiness checks for the filesystem paths and
// external services matchreel depends on.
//
// The daemon runs RunAll at startup and logs any failing check as a warning;
// `matchreel config validate` prints the same results so operators can fix
// credentials and permissions before submitting matches.
//
// Checks for optional integrations (cloud archive, AMQP intake) only run when
// the integration is enabled.
package preflight
