package gpio

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestPollerDispatchesReadiness(t *testing.T) {
	poller, err := NewPoller(nil)
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	fired := make(chan struct{}, 4)
	err = poller.AddEvents(fds[0], unix.EPOLLIN, func() {
		var buf [16]byte
		_, _ = unix.Read(fds[0], buf[:])
		fired <- struct{}{}
	})
	if err != nil {
		t.Fatalf("AddEvents: %v", err)
	}
	if err := poller.AddEvents(fds[0], unix.EPOLLIN, func() {}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- poller.Run(ctx) }()

	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}

	if err := poller.Remove(fds[0]); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := poller.Remove(fds[0]); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err := poller.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPollerCloseStopsRun(t *testing.T) {
	poller, err := NewPoller(nil)
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	runErr := make(chan error, 1)
	go func() { runErr <- poller.Run(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	if err := poller.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
