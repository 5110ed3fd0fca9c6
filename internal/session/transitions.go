package session

import "buttonrec/internal/pipeline"

type eventKind int

const (
	evButton eventKind = iota
	evStart
	evStop
	evTimer
	evDone
	evDoneFailed
)

func (k eventKind) String() string {
	switch k {
	case evButton:
		return "button"
	case evStart:
		return "start_request"
	case evStop:
		return "stop_request"
	case evTimer:
		return "timer_expired"
	case evDone:
		return "pipeline_done"
	case evDoneFailed:
		return "pipeline_failed"
	default:
		return "unknown"
	}
}

type event struct {
	kind      eventKind
	sessionID string
	result    pipeline.JointResult
	reply     chan error
}

type action int

const (
	actIgnore action = iota
	actBegin
	actStop
	actFinish
	actConflict
	actRejectError
)

type transition struct {
	next   State
	action action
}

// transitions is the complete state machine. A (state, event) pair missing
// from the table is a programming error and is rejected.
var transitions = map[State]map[eventKind]transition{
	StateIdle: {
		evButton:     {StateRecording, actBegin},
		evStart:      {StateRecording, actBegin},
		evStop:       {StateIdle, actConflict},
		evTimer:      {StateIdle, actIgnore},
		evDone:       {StateIdle, actIgnore},
		evDoneFailed: {StateIdle, actIgnore},
	},
	StateRecording: {
		evButton: {StateWriting, actStop},
		evStart:  {StateRecording, actConflict},
		evStop:   {StateWriting, actStop},
		evTimer:  {StateWriting, actStop},
		// The pipeline ended on its own before anyone asked it to.
		evDone:       {StateError, actFinish},
		evDoneFailed: {StateError, actFinish},
	},
	StateWriting: {
		evButton:     {StateWriting, actIgnore},
		evStart:      {StateWriting, actConflict},
		evStop:       {StateWriting, actConflict},
		evTimer:      {StateWriting, actIgnore},
		evDone:       {StateIdle, actFinish},
		evDoneFailed: {StateError, actFinish},
	},
	StateError: {
		evButton:     {StateError, actRejectError},
		evStart:      {StateError, actRejectError},
		evStop:       {StateError, actRejectError},
		evTimer:      {StateError, actIgnore},
		evDone:       {StateError, actIgnore},
		evDoneFailed: {StateError, actIgnore},
	},
}

func lookup(state State, kind eventKind) (transition, bool) {
	row, ok := transitions[state]
	if !ok {
		return transition{}, false
	}
	tr, ok := row[kind]
	return tr, ok
}
