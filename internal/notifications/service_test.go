package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"buttonrec/internal/config"
	"buttonrec/internal/notifications"
	"buttonrec/internal/pipeline"
	"buttonrec/internal/session"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func ntfyStub(t *testing.T) (*httptest.Server, <-chan captured) {
	t.Helper()
	ch := make(chan captured, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyRecordingSaved(context.Background(), "x.mp3", time.Minute); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, got := ntfyStub(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)

	tests := []struct {
		name     string
		send     func() error
		title    string
		body     string
		tags     string
		priority string
	}{
		{
			name:  "recording saved",
			send:  func() error { return svc.NotifyRecordingSaved(context.Background(), "2024-01-01--10-00-00.mp3", 95*time.Second) },
			title: "buttonrec - Recording Saved",
			body:  "🎙️ Saved 2024-01-01--10-00-00.mp3 (1m35s)",
			tags:  "buttonrec,recording,saved",
		},
		{
			name:     "error",
			send:     func() error { return svc.NotifyError(context.Background(), errors.New("capture: exit status 3"), "recording") },
			title:    "buttonrec - Error",
			body:     "❌ Error with recording: capture: exit status 3",
			tags:     "buttonrec,error,alert",
			priority: "high",
		},
		{
			name:     "test",
			send:     func() error { return svc.TestNotification(context.Background()) },
			title:    "buttonrec - Test",
			body:     "🧪 Notification system test",
			tags:     "buttonrec,test",
			priority: "low",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.send(); err != nil {
				t.Fatalf("send: %v", err)
			}
			c := <-got
			if c.title != tt.title || c.body != tt.body || c.tags != tt.tags || c.priority != tt.priority {
				t.Fatalf("got %+v", c)
			}
		})
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer srv.Close()
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

type recordingService struct {
	mu    sync.Mutex
	saved []string
	errs  []string
	done  chan struct{}
}

func (r *recordingService) NotifyRecordingSaved(_ context.Context, filename string, _ time.Duration) error {
	r.mu.Lock()
	r.saved = append(r.saved, filename)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingService) NotifyError(_ context.Context, err error, _ string) error {
	r.mu.Lock()
	r.errs = append(r.errs, err.Error())
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingService) TestNotification(context.Context) error { return nil }

func TestSessionNotifierHonoursToggles(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.RecordingSaved = true
	cfg.Notifications.Errors = false
	svc := &recordingService{done: make(chan struct{}, 2)}
	n := notifications.NewSessionNotifier(&cfg, svc, nil)

	status := session.Status{Output: "/rec/take.mp3", StartedAt: time.Now().Add(-time.Minute)}
	n.SessionFinished(status, pipeline.JointResult{})
	failed := status
	failed.State = session.StateError
	n.SessionFinished(failed, pipeline.JointResult{Leftover: 1})

	select {
	case <-svc.done:
	case <-time.After(2 * time.Second):
		t.Fatal("saved notification not sent")
	}
	select {
	case <-svc.done:
		t.Fatal("error notification sent while disabled")
	case <-time.After(50 * time.Millisecond):
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.saved) != 1 || svc.saved[0] != "take.mp3" {
		t.Fatalf("saved = %v", svc.saved)
	}
}

func TestSessionNotifierDecidesFromFinalState(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.RecordingSaved = true
	cfg.Notifications.Errors = true
	svc := &recordingService{done: make(chan struct{}, 2)}
	n := notifications.NewSessionNotifier(&cfg, svc, nil)

	// Ended before a stop was requested: the result carries no stage failure.
	early := session.Status{
		State:     session.StateError,
		Output:    "/rec/take.mp3",
		LastError: "pipeline ended before a stop was requested",
	}
	n.SessionFinished(early, pipeline.JointResult{})

	// No session could be prepared, so there is no output either.
	launch := session.Status{State: session.StateError, LastError: "prepare pipeline: no capture tool"}
	n.SessionFinished(launch, pipeline.JointResult{Capture: pipeline.Result{
		Stage:  pipeline.StageCapture,
		Failed: true,
		Err:    errors.New("stage launch failed: no capture tool"),
	}})

	for i := 0; i < 2; i++ {
		select {
		case <-svc.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d notifications sent", i)
		}
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.saved) != 0 {
		t.Fatalf("failed sessions reported as saved: %v", svc.saved)
	}
	if len(svc.errs) != 2 {
		t.Fatalf("errors = %v", svc.errs)
	}
	joined := strings.Join(svc.errs, "\n")
	for _, want := range []string{"pipeline ended before a stop was requested", "no capture tool"} {
		if !strings.Contains(joined, want) {
			t.Errorf("errors %q missing %q", joined, want)
		}
	}
}
