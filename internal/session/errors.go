package session

import "errors"

var (
	// ErrConflict is returned when a control request is not valid in the
	// current state.
	ErrConflict = errors.New("request conflicts with current state")
	// ErrErrorState is returned for every control request once the
	// controller has entered ERROR.
	ErrErrorState = errors.New("controller is in error state; restart required")
	// ErrNotRunning is returned when the controller loop has exited.
	ErrNotRunning = errors.New("controller not running")
)
