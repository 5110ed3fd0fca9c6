// Package daemon coordinates the long-running buttonrec process and its
// system integration points.
//
// It wires configuration, the recording controller, the GPIO button, the
// status LED and the sound card monitor into a single lifecycle with
// flock-based locking to prevent multiple instances. The daemon serves the
// HTTP status and control surface (gin) plus the Prometheus endpoint, and
// records dependency health at startup.
//
// Keep orchestration logic here: the state machine lives in session and the
// process plumbing in pipeline, while the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon
