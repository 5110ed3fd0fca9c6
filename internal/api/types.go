package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// StatusResponse is the body of GET /api/status. Field names follow the
// legacy web client, which reads status, filename and time_string.
type StatusResponse struct {
	State          string             `json:"state"`
	Status         string             `json:"status"`
	Filename       string             `json:"filename"`
	ElapsedSeconds *float64           `json:"elapsed_seconds"`
	TimeString     string             `json:"time_string"`
	SessionID      string             `json:"session_id,omitempty"`
	StartedAt      string             `json:"started_at,omitempty"`
	Deadline       string             `json:"deadline,omitempty"`
	LastError      string             `json:"last_error,omitempty"`
	AudioDevice    *AudioDeviceEvent  `json:"audio_device,omitempty"`
	QueuedBytes    int64              `json:"queued_bytes"`
	Dependencies   []DependencyStatus `json:"dependencies,omitempty"`
}

// AudioDeviceEvent is the most recent sound card hotplug event.
type AudioDeviceEvent struct {
	Action string `json:"action"`
	Card   string `json:"card"`
	At     string `json:"at"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// ControlResponse is returned by start and stop. Accepted requests answer
// 202 before the work completes.
type ControlResponse struct {
	Accepted bool   `json:"accepted"`
	State    string `json:"state"`
	Message  string `json:"message,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	State string `json:"state,omitempty"`
}
