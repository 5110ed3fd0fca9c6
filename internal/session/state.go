package session

import "fmt"

// State is the controller's position in the recording lifecycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateWriting
	StateError
)

var stateNames = [...]string{
	StateIdle:      "IDLE",
	StateRecording: "RECORDING",
	StateWriting:   "WRITING",
	StateError:     "ERROR",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state name for JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("invalid state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Active reports whether a session exists in this state.
func (s State) Active() bool {
	return s == StateRecording || s == StateWriting
}
