package daemon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"buttonrec/internal/api"
	"buttonrec/internal/config"
	"buttonrec/internal/daemon"
	"buttonrec/internal/logging"
	"buttonrec/internal/testsupport"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t, testsupport.WithShellStages("printf abcdefgh; exec sleep 30"))
}

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func waitForState(t *testing.T, client *api.Client, want string) *api.StatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := client.Status(context.Background())
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if st.State == want {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s (last_error %q)", st.State, want, st.LastError)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.APIAddress == "" {
		t.Fatal("expected API address once started")
	}
	if status.Session.State.String() != "IDLE" {
		t.Fatalf("initial state = %s", status.Session.State)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("expected dependency checks to be recorded")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testConfig(t)
	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer first.Stop()

	second := newDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second instance to fail on the lock")
	}
}

func TestDaemonRecordsThroughAPI(t *testing.T) {
	cfg := testConfig(t)
	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	client := api.NewClient(d.Status().APIAddress, 2*time.Second)
	ctx := context.Background()

	if _, err := client.Stop(ctx); !errors.Is(err, api.ErrConflict) {
		t.Fatalf("stop while idle: expected conflict, got %v", err)
	}

	resp, err := client.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !resp.Accepted {
		t.Fatalf("start not accepted: %+v", resp)
	}
	st := waitForState(t, client, "RECORDING")
	if st.Filename == "" || st.ElapsedSeconds == nil {
		t.Fatalf("recording status missing fields: %+v", st)
	}

	if _, err := client.Start(ctx); !errors.Is(err, api.ErrConflict) {
		t.Fatalf("second start: expected conflict, got %v", err)
	}

	// Let the capture tool's output reach the encoder before stopping.
	deadline := time.Now().Add(5 * time.Second)
	for d.Status().Session.QueueHighWater < 4 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := client.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	waitForState(t, client, "IDLE")

	data, err := os.ReadFile(filepath.Join(cfg.Paths.RecordingsDir, st.Filename))
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if string(data) != "abcdefgh" {
		t.Fatalf("recording = %q, want abcdefgh", data)
	}
}
