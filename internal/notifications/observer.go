package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"buttonrec/internal/config"
	"buttonrec/internal/logging"
	"buttonrec/internal/pipeline"
	"buttonrec/internal/session"
)

// SessionNotifier sends notifications for finished sessions. Sends happen
// on their own goroutine so the controller is never held up by the network.
type SessionNotifier struct {
	svc     Service
	saved   bool
	errors  bool
	timeout time.Duration
	logger  *slog.Logger
}

// NewSessionNotifier wires svc to the configured event toggles.
func NewSessionNotifier(cfg *config.Config, svc Service, logger *slog.Logger) *SessionNotifier {
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SessionNotifier{
		svc:     svc,
		saved:   cfg.Notifications.RecordingSaved,
		errors:  cfg.Notifications.Errors,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "notifications"),
	}
}

// StateChanged implements session.Observer.
func (n *SessionNotifier) StateChanged(session.State, session.State, session.Status) {}

// SessionFinished implements session.Observer.
func (n *SessionNotifier) SessionFinished(st session.Status, res pipeline.JointResult) {
	failed := st.State == session.StateError
	switch {
	case failed && n.errors:
		err := res.Err()
		if err == nil {
			err = errors.New(st.LastError)
		}
		label := "recording start"
		if name := st.Filename(); name != "" {
			label = "recording " + name
		}
		n.dispatch("error", func(ctx context.Context) error {
			return n.svc.NotifyError(ctx, err, label)
		})
	case !failed && n.saved:
		elapsed, _ := st.Elapsed(time.Now())
		n.dispatch("recording_saved", func(ctx context.Context) error {
			return n.svc.NotifyRecordingSaved(ctx, st.Filename(), elapsed)
		})
	}
}

func (n *SessionNotifier) dispatch(kind string, send func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := send(ctx); err != nil {
			n.logger.Warn("notification failed",
				logging.String("notification", kind),
				logging.Error(err),
				logging.String(logging.FieldEventType, "notification_failed"),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.String(logging.FieldImpact, "push notification not delivered"),
			)
		}
	}()
}
