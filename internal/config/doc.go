// Package config loads, normalizes, and validates sitemigrate configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for secrets
// such as SITEMIGRATE_TARGET_PASSWORD and SITEMIGRATE_TRACKER_TOKEN. The Config
// type centralizes every knob the scan loops, workers and CLI need.
//
// Components receive the *Config they need through their constructors; nothing
// reads configuration from package-level state.
package config
