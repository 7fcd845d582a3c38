// Package config loads, normalizes, and validates brightd configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the BRIGHTD_LOG_LEVEL environment
// override. The Config type centralizes every knob the daemon and CLI need:
// scheduler pacing, DDC/CI timing, sysfs roots, and the change-signal sources.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
