// Package api defines the wire format of the daemon's HTTP surface and a
// client for it.
//
// StatusResponse keeps the snake_case keys the legacy web client reads
// (status, filename, time_string) alongside the richer session fields.
// FromStatus converts a session.Status snapshot; Client is what the
// buttonrec CLI uses to call GET /api/status, POST /api/start and
// POST /api/stop. A 409 answer surfaces as an *HTTPError matching
// ErrConflict.
package api
