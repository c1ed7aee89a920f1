// Package config loads, normalizes, and validates mediarelay configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// COBALT_API_URL, COBALT_API_KEY, and REDIS_ADDR. The Config type centralizes
// every knob the pipeline, daemon, and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
