package api

import (
	"time"

	"buttonrec/internal/deps"
	"buttonrec/internal/session"
)

// FromStatus converts a controller snapshot into the wire format. Elapsed
// time is measured against now and omitted when no session exists.
func FromStatus(st session.Status, now time.Time) StatusResponse {
	state := st.State.String()
	resp := StatusResponse{
		State:       state,
		Status:      state,
		Filename:    st.Filename(),
		TimeString:  session.FormatElapsed(0),
		SessionID:   st.SessionID,
		StartedAt:   formatTime(st.StartedAt),
		Deadline:    formatTime(st.Deadline),
		LastError:   st.LastError,
		QueuedBytes: st.Queued,
	}
	if elapsed, ok := st.Elapsed(now); ok {
		secs := elapsed.Seconds()
		resp.ElapsedSeconds = &secs
		resp.TimeString = session.FormatElapsed(elapsed)
	}
	return resp
}

// FromDependencies converts dependency checks into the wire format.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FormatTime renders t the way the API does, or "" for the zero time.
func FormatTime(t time.Time) string {
	return formatTime(t)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTimeFormat)
}
