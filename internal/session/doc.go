// Package session owns the recording state machine.
//
// A Controller moves between IDLE, RECORDING, WRITING and ERROR in response
// to button presses, start and stop requests, the per-session StopTimer and
// the completion of the capture/encode pipeline. Every transition is listed
// in one table; all mutation happens on the goroutine running Controller.Run.
// Readers take Status snapshots or Subscribe to them.
package session
