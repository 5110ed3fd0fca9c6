// Package logging assembles structured slog loggers and formatting helpers used
// across buttonrec.
//
// It owns the console and JSON handlers, routes the daemon log through a
// size-rotated file, and exposes context-aware helpers so session and stage
// code tag log lines with session ids and stage names. Warnings carry
// event_type, error_hint and impact fields so an operator reading the log on
// the appliance knows what happened and what to check.
package logging
