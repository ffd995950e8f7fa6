// Package config loads, normalizes, and validates matchreel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours .env files and environment
// fallbacks for secrets such as MATCHREEL_HOST_TOKEN. The Config type
// centralizes every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, merged detector tables, and clear validation errors.
package config
