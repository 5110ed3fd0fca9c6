package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"buttonrec/internal/pipeline"
)

type shellLauncher struct {
	capture string
	encode  string
	err     error
}

func (l shellLauncher) Prepare(sess *Session) (*pipeline.CaptureStage, *pipeline.EncodeStage, error) {
	if l.err != nil {
		return nil, nil, l.err
	}
	captureCmd, err := pipeline.NewCommand([]string{"sh", "-c", l.capture}, nil)
	if err != nil {
		return nil, nil, err
	}
	encodeCmd, err := pipeline.NewCommand([]string{"sh", "-c", l.encode, "sh", sess.Output}, nil)
	if err != nil {
		return nil, nil, err
	}
	capture := pipeline.NewCaptureStage(captureCmd, pipeline.TerminatedBy(syscall.SIGTERM), pipeline.CaptureOptions{
		BlockSize:   4,
		StopTimeout: 2 * time.Second,
	})
	encode := pipeline.NewEncodeStage(encodeCmd, pipeline.SuccessOnly(), pipeline.EncodeOptions{Output: sess.Output})
	return capture, encode, nil
}

type recorder struct {
	mu             sync.Mutex
	changes        []string
	finished       []pipeline.JointResult
	finishedStates []State
}

func (r *recorder) StateChanged(from, to State, _ Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if from != to {
		r.changes = append(r.changes, from.String()+">"+to.String())
	}
}

func (r *recorder) SessionFinished(st Status, res pipeline.JointResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, res)
	r.finishedStates = append(r.finishedStates, st.State)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changes...)
}

const (
	streamingCapture = "printf abcdefgh; exec sleep 30"
	fileEncoder      = `cat > "$1"`
)

func startController(t *testing.T, launcher Launcher, maxDuration time.Duration) (*Controller, *recorder, string) {
	t.Helper()
	dir := t.TempDir()
	rec := &recorder{}
	c, err := New(Options{
		Launcher:      launcher,
		MaxDuration:   maxDuration,
		RecordingsDir: dir,
		Extension:     "raw",
		Observers:     []Observer{rec},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c, rec, dir
}

func waitState(t *testing.T, c *Controller, want State) Status {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		st := c.Status()
		if st.State == want {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s (last error %q)", st.State, want, st.LastError)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitCaptured(t *testing.T, c *Controller, n int64) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for c.Status().QueueHighWater < n {
		if time.Now().After(deadline) {
			t.Fatalf("capture produced %d bytes, want %d", c.Status().QueueHighWater, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestButtonCycleReachesIdle(t *testing.T) {
	c, rec, _ := startController(t, shellLauncher{capture: streamingCapture, encode: fileEncoder}, time.Hour)

	c.HandleButton()
	st := waitState(t, c, StateRecording)
	if st.SessionID == "" || st.Output == "" {
		t.Fatalf("recording status missing session details: %+v", st)
	}
	if filepath.Ext(st.Filename()) != ".raw" {
		t.Fatalf("Filename = %q", st.Filename())
	}
	waitCaptured(t, c, 4)

	c.HandleButton()
	waitState(t, c, StateIdle)

	want := []string{"IDLE>RECORDING", "RECORDING>WRITING", "WRITING>IDLE"}
	if got := rec.snapshot(); !equalStrings(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	data, err := os.ReadFile(st.Output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "abcdefgh" {
		t.Fatalf("output = %q", data)
	}
	if after := c.Status(); after.SessionID != "" || after.LastError != "" {
		t.Fatalf("idle status not cleared: %+v", after)
	}
}

func TestAtMostOneSession(t *testing.T) {
	c, _, _ := startController(t, shellLauncher{capture: streamingCapture, encode: fileEncoder}, time.Hour)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- c.RequestStart(context.Background()) }()
	}
	var ok, conflict int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("ok=%d conflict=%d", ok, conflict)
	}

	if err := c.RequestStop(context.Background()); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	waitState(t, c, StateIdle)
}

func TestControlRequestsOutsideTheirState(t *testing.T) {
	c, _, _ := startController(t, shellLauncher{capture: streamingCapture, encode: fileEncoder}, time.Hour)

	if err := c.RequestStop(context.Background()); !errors.Is(err, ErrConflict) {
		t.Fatalf("stop from IDLE = %v, want conflict", err)
	}
	if err := c.RequestStart(context.Background()); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	if err := c.RequestStart(context.Background()); !errors.Is(err, ErrConflict) {
		t.Fatalf("start while recording = %v, want conflict", err)
	}
	if err := c.RequestStop(context.Background()); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	waitState(t, c, StateIdle)
}

func TestImmediateStopAfterStartReachesIdle(t *testing.T) {
	c, rec, dir := startController(t, shellLauncher{capture: "exec sleep 30", encode: fileEncoder}, time.Hour)

	const rounds = 20
	for i := 0; i < rounds; i++ {
		if err := c.RequestStart(context.Background()); err != nil {
			t.Fatalf("round %d: RequestStart: %v", i, err)
		}
		if err := c.RequestStop(context.Background()); err != nil {
			t.Fatalf("round %d: RequestStop: %v", i, err)
		}
		waitState(t, c, StateIdle)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.finished) != rounds {
		t.Fatalf("finished %d sessions, want %d", len(rec.finished), rounds)
	}
	for i, res := range rec.finished {
		if res.Failed() {
			t.Fatalf("session %d failed: %s", i, res.Detail())
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read recordings dir: %v", err)
	}
	if len(entries) != rounds {
		t.Fatalf("recordings = %d, want %d", len(entries), rounds)
	}
}

func TestTimerExpiryStopsRecording(t *testing.T) {
	c, rec, _ := startController(t, shellLauncher{capture: streamingCapture, encode: fileEncoder}, 200*time.Millisecond)

	start := time.Now()
	if err := c.RequestStart(context.Background()); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	waitState(t, c, StateRecording)
	waitState(t, c, StateIdle)
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Fatalf("stopped after %s, before the deadline", elapsed)
	}
	want := []string{"IDLE>RECORDING", "RECORDING>WRITING", "WRITING>IDLE"}
	if got := rec.snapshot(); !equalStrings(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
}

func TestCaptureExitEndsInError(t *testing.T) {
	c, rec, _ := startController(t, shellLauncher{capture: "printf abc; exit 3", encode: fileEncoder}, time.Hour)

	if err := c.RequestStart(context.Background()); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	st := waitState(t, c, StateError)
	if st.LastError == "" {
		t.Fatal("ERROR status without last error")
	}

	if err := c.RequestStart(context.Background()); !errors.Is(err, ErrErrorState) {
		t.Fatalf("start in ERROR = %v", err)
	}
	if err := c.RequestStop(context.Background()); !errors.Is(err, ErrErrorState) {
		t.Fatalf("stop in ERROR = %v", err)
	}
	c.HandleButton()
	time.Sleep(20 * time.Millisecond)
	if got := c.Status().State; got != StateError {
		t.Fatalf("button moved state to %s", got)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.finished) != 1 || !rec.finished[0].Capture.Failed {
		t.Fatalf("finished results = %+v", rec.finished)
	}
}

func TestEncoderFailureWhileWritingEndsInError(t *testing.T) {
	c, _, _ := startController(t, shellLauncher{capture: streamingCapture, encode: "cat > /dev/null; exit 1"}, time.Hour)

	if err := c.RequestStart(context.Background()); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	waitCaptured(t, c, 4)
	if err := c.RequestStop(context.Background()); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	st := waitState(t, c, StateError)
	if st.LastError == "" {
		t.Fatal("missing last error")
	}
}

func TestLauncherErrorEndsInError(t *testing.T) {
	c, rec, _ := startController(t, shellLauncher{err: errors.New("no capture tool")}, time.Hour)

	if err := c.RequestStart(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	waitState(t, c, StateError)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.finished) != 1 {
		t.Fatalf("finished results = %+v, want one failed session", rec.finished)
	}
	if res := rec.finished[0]; !res.Failed() || !errors.Is(res.Err(), pipeline.ErrLaunch) {
		t.Fatalf("launch failure reported as %+v", res)
	}
	if rec.finishedStates[0] != StateError {
		t.Fatalf("finished status state = %s", rec.finishedStates[0])
	}
}

func TestShutdownFinishesActiveRecording(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	c, err := New(Options{
		Launcher:      shellLauncher{capture: streamingCapture, encode: fileEncoder},
		RecordingsDir: dir,
		Extension:     "raw",
		Observers:     []Observer{rec},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	if err := c.RequestStart(context.Background()); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	output := c.Status().Output
	waitCaptured(t, c, 4)
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
	if got := c.Status().State; got != StateIdle {
		t.Fatalf("state after shutdown = %s", got)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "abcdefgh" {
		t.Fatalf("output = %q", data)
	}
	if err := c.RequestStart(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("start after shutdown = %v", err)
	}
}

func TestSubscribeDeliversLatestSnapshot(t *testing.T) {
	c, _, _ := startController(t, shellLauncher{capture: streamingCapture, encode: fileEncoder}, time.Hour)

	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()
	if st := <-ch; st.State != StateIdle {
		t.Fatalf("initial snapshot = %s", st.State)
	}
	if err := c.RequestStart(context.Background()); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	select {
	case st := <-ch:
		if st.State != StateRecording {
			t.Fatalf("snapshot = %s", st.State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot after start")
	}
	if err := c.RequestStop(context.Background()); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	waitState(t, c, StateIdle)
	unsubscribe()
	unsubscribe()
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{RecordingsDir: t.TempDir()}); err == nil {
		t.Fatal("expected error without launcher")
	}
	if _, err := New(Options{Launcher: shellLauncher{}}); err == nil {
		t.Fatal("expected error without recordings dir")
	}
}

func TestTransitionTableIsComplete(t *testing.T) {
	for _, state := range []State{StateIdle, StateRecording, StateWriting, StateError} {
		for kind := evButton; kind <= evDoneFailed; kind++ {
			if _, ok := lookup(state, kind); !ok {
				t.Errorf("no transition for %s + %s", state, kind)
			}
		}
	}
	for kind := evButton; kind <= evDoneFailed; kind++ {
		tr, _ := lookup(StateError, kind)
		if tr.next != StateError {
			t.Errorf("ERROR + %s leaves ERROR", kind)
		}
	}
}
