package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"buttonrec/internal/pipeline"
)

// DefaultFilenameLayout names recordings after their local start time.
const DefaultFilenameLayout = "2006-01-02--15-04-05"

// Session is one recording, from the press that started it until both
// pipeline stages have finished.
type Session struct {
	ID        string
	StartedAt time.Time
	StoppedAt time.Time
	Output    string

	timer *StopTimer
	queue *pipeline.Queue
	// stop cancels the context capture runs under. Capture may not have
	// launched yet when it is called.
	stop context.CancelFunc
}

func newSession(dir, layout, ext string, now time.Time) (*Session, error) {
	output, err := OutputPath(dir, layout, ext, now)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: now,
		Output:    output,
	}, nil
}

// OutputPath returns a recording path for a session started at t. A numeric
// suffix is added when a file with the timestamped name already exists.
func OutputPath(dir, layout, ext string, t time.Time) (string, error) {
	if layout == "" {
		layout = DefaultFilenameLayout
	}
	ext = strings.TrimPrefix(ext, ".")
	base := t.Format(layout)
	for i := 0; i < 100; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		if ext != "" {
			name += "." + ext
		}
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("check output path: %w", err)
		}
	}
	return "", fmt.Errorf("no free output name for %s in %s", base, dir)
}

// Status is an immutable snapshot of the controller.
type Status struct {
	State     State
	SessionID string
	Output    string
	StartedAt time.Time
	StoppedAt time.Time
	Deadline  time.Time
	LastError string
	// Queued and QueueHighWater describe the transfer queue of the active session.
	Queued         int64
	QueueHighWater int64
}

// Filename returns the basename of the active output, or "".
func (s Status) Filename() string {
	if s.Output == "" {
		return ""
	}
	return filepath.Base(s.Output)
}

// Elapsed returns the recording time so far. It stops advancing once the
// session leaves RECORDING and is absent when no session exists.
func (s Status) Elapsed(now time.Time) (time.Duration, bool) {
	if s.StartedAt.IsZero() {
		return 0, false
	}
	end := now
	if !s.StoppedAt.IsZero() {
		end = s.StoppedAt
	}
	if end.Before(s.StartedAt) {
		return 0, true
	}
	return end.Sub(s.StartedAt), true
}

// FormatElapsed renders a duration as HH:MM:SS.
func FormatElapsed(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
