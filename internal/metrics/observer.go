package metrics

import (
	"time"

	"buttonrec/internal/pipeline"
	"buttonrec/internal/session"
)

var allStates = []string{
	session.StateIdle.String(),
	session.StateRecording.String(),
	session.StateWriting.String(),
	session.StateError.String(),
}

// SessionObserver feeds controller events into the collectors.
type SessionObserver struct{}

// StateChanged implements session.Observer.
func (SessionObserver) StateChanged(from, to session.State, _ session.Status) {
	if from != to {
		RecordStateTransition(from.String(), to.String())
	}
	SetCurrentState(to.String(), allStates)
}

// SessionFinished implements session.Observer.
func (SessionObserver) SessionFinished(st session.Status, _ pipeline.JointResult) {
	elapsed, _ := st.Elapsed(time.Now())
	ObserveSession(st.State == session.StateError, elapsed.Seconds(), st.QueueHighWater)
}
