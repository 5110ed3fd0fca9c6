package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"buttonrec/internal/deps"
	"buttonrec/internal/session"
)

func TestFromStatusIdle(t *testing.T) {
	resp := FromStatus(session.Status{State: session.StateIdle}, time.Now())
	if resp.State != "IDLE" || resp.Status != "IDLE" {
		t.Fatalf("state = %q/%q", resp.State, resp.Status)
	}
	if resp.ElapsedSeconds != nil {
		t.Fatalf("idle elapsed = %v", *resp.ElapsedSeconds)
	}
	if resp.TimeString != "00:00:00" || resp.Filename != "" || resp.StartedAt != "" {
		t.Fatalf("unexpected idle payload %+v", resp)
	}
}

func TestFromStatusRecording(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	st := session.Status{
		State:     session.StateRecording,
		SessionID: "abc",
		Output:    "/srv/rec/2024-03-01--09-00-00.mp3",
		StartedAt: start,
		Deadline:  start.Add(3 * time.Hour),
		Queued:    4096,
	}
	resp := FromStatus(st, start.Add(75*time.Second))
	if resp.Filename != "2024-03-01--09-00-00.mp3" {
		t.Fatalf("filename = %q", resp.Filename)
	}
	if resp.ElapsedSeconds == nil || *resp.ElapsedSeconds != 75 {
		t.Fatalf("elapsed = %v", resp.ElapsedSeconds)
	}
	if resp.TimeString != "00:01:15" {
		t.Fatalf("time_string = %q", resp.TimeString)
	}
	if resp.StartedAt != "2024-03-01T09:00:00.000Z" || resp.Deadline != "2024-03-01T12:00:00.000Z" {
		t.Fatalf("times = %q %q", resp.StartedAt, resp.Deadline)
	}
	if resp.QueuedBytes != 4096 {
		t.Fatalf("queued = %d", resp.QueuedBytes)
	}
}

func TestFromDependencies(t *testing.T) {
	if FromDependencies(nil) != nil {
		t.Fatal("expected nil for no dependencies")
	}
	out := FromDependencies([]deps.Status{{Name: "Capture", Command: "arecord", Available: true}})
	if len(out) != 1 || out[0].Command != "arecord" || !out[0].Available {
		t.Fatalf("out = %+v", out)
	}
}

func TestBaseURL(t *testing.T) {
	tests := map[string]string{
		"0.0.0.0:8080":          "http://127.0.0.1:8080",
		":8080":                 "http://127.0.0.1:8080",
		"[::]:8080":             "http://[::1]:8080",
		"10.0.0.5:9000":         "http://10.0.0.5:9000",
		"http://recorder:8080/": "http://recorder:8080",
	}
	for in, want := range tests {
		if got := BaseURL(in); got != want {
			t.Errorf("BaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientMapsConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"state":"RECORDING","status":"RECORDING","filename":"a.mp3","elapsed_seconds":3,"time_string":"00:00:03","queued_bytes":0}`))
		case "/api/start":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"already recording","state":"RECORDING"}`))
		case "/api/stop":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"accepted":true,"state":"WRITING"}`))
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	st, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != "RECORDING" || st.ElapsedSeconds == nil || *st.ElapsedSeconds != 3 {
		t.Fatalf("status = %+v", st)
	}

	_, err = client.Start(ctx)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Start error = %v, want conflict", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.State != "RECORDING" || httpErr.Message != "already recording" {
		t.Fatalf("http error = %#v", err)
	}

	resp, err := client.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !resp.Accepted || resp.State != "WRITING" {
		t.Fatalf("stop response = %+v", resp)
	}
}
