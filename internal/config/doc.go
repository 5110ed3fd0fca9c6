// Package config loads, normalizes, and validates buttonrec configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BUTTONREC_CAPTURE_DEVICE. The Config type centralizes every knob the daemon
// and CLI need: the button line, the capture and encode command templates, the
// session deadline, and where recordings and logs land.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, expanded command arguments, and clear validation errors.
package config
