// Package notifications pushes recording outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured.
// SessionNotifier plugs the service into the session controller as an
// observer and honours the per-event toggles from config.toml.
package notifications
