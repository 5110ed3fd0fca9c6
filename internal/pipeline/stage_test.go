package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func shell(t *testing.T, script string, args ...string) Command {
	t.Helper()
	cmd, err := NewCommand(append([]string{"sh", "-c", script, "sh"}, args...), nil)
	if err != nil {
		t.Fatalf("NewCommand: %v", err)
	}
	return cmd
}

func collect(t *testing.T, q *Queue) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []string
	for {
		block, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v (got %q so far)", err, out)
		}
		if IsSentinel(block) {
			return out
		}
		out = append(out, string(block))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewCommandRejectsEmpty(t *testing.T) {
	if _, err := NewCommand(nil, nil); err == nil {
		t.Fatal("expected error for empty argv")
	}
	if _, err := NewCommand([]string{" "}, nil); err == nil {
		t.Fatal("expected error for blank executable")
	}
}

func TestCaptureStopIsGraceful(t *testing.T) {
	stage := NewCaptureStage(shell(t, "printf abcdefgh; exec sleep 30"), TerminatedBy(syscall.SIGTERM), CaptureOptions{BlockSize: 4})
	q := NewQueue()

	done := make(chan Result, 1)
	go func() { done <- stage.Run(context.Background(), q) }()

	waitFor(t, func() bool { return q.Len() >= 2 })
	stage.Stop()

	var res Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("capture did not stop")
	}
	if res.Failed {
		t.Fatalf("capture failed: %s", res.Detail)
	}
	if res.Exit != "signal TERM" {
		t.Fatalf("Exit = %q", res.Exit)
	}
	if res.Blocks != 2 || res.Bytes != 8 {
		t.Fatalf("blocks=%d bytes=%d", res.Blocks, res.Bytes)
	}
	got := collect(t, q)
	if strings.Join(got, "|") != "abcd|efgh" {
		t.Fatalf("blocks = %q", got)
	}
	if q.Len() != 0 {
		t.Fatalf("sentinel not last: %d left", q.Len())
	}
	if stage.Running() {
		t.Fatal("stage still running")
	}
}

func TestCaptureUnrequestedExitFails(t *testing.T) {
	stage := NewCaptureStage(shell(t, "printf abc; exit 3"), TerminatedBy(syscall.SIGTERM), CaptureOptions{BlockSize: 4})
	q := NewQueue()

	res := stage.Run(context.Background(), q)
	if !res.Failed || !errors.Is(res.Err, ErrAbnormalExit) {
		t.Fatalf("expected abnormal exit, got %+v", res)
	}
	if res.Exit != "exit status 3" {
		t.Fatalf("Exit = %q", res.Exit)
	}
	if got := collect(t, q); len(got) != 1 || got[0] != "abc" {
		t.Fatalf("blocks = %q", got)
	}
}

func TestCaptureStopWithUnacceptedExit(t *testing.T) {
	// The script swallows TERM and exits 1, which the policy rejects.
	stage := NewCaptureStage(shell(t, "trap 'exit 1' TERM; printf x; while :; do sleep 0.05; done"), TerminatedBy(syscall.SIGTERM), CaptureOptions{BlockSize: 1})
	q := NewQueue()

	done := make(chan Result, 1)
	go func() { done <- stage.Run(context.Background(), q) }()
	waitFor(t, func() bool { return q.Len() >= 1 })
	stage.Stop()

	res := <-done
	if !res.Failed || !errors.Is(res.Err, ErrAbnormalExit) {
		t.Fatalf("expected abnormal exit, got %+v", res)
	}
}

func TestCaptureLaunchFailurePushesSentinel(t *testing.T) {
	cmd, _ := NewCommand([]string{filepath.Join(t.TempDir(), "missing-tool")}, nil)
	stage := NewCaptureStage(cmd, TerminatedBy(syscall.SIGTERM), CaptureOptions{})
	q := NewQueue()

	res := stage.Run(context.Background(), q)
	if !res.Failed || !errors.Is(res.Err, ErrLaunch) {
		t.Fatalf("expected launch failure, got %+v", res)
	}
	if got := collect(t, q); len(got) != 0 {
		t.Fatalf("unexpected blocks %q", got)
	}
}

func TestCaptureStopWithoutProcessIsNoop(t *testing.T) {
	stage := NewCaptureStage(shell(t, "exit 0"), TerminatedBy(syscall.SIGTERM), CaptureOptions{})
	stage.Stop()
	stage.Stop()
	if stage.Running() {
		t.Fatal("stage reports running")
	}
}

func TestCaptureSecondRunIsSkipped(t *testing.T) {
	stage := NewCaptureStage(shell(t, "printf x; exec sleep 30"), TerminatedBy(syscall.SIGTERM), CaptureOptions{BlockSize: 1})
	q := NewQueue()
	done := make(chan Result, 1)
	go func() { done <- stage.Run(context.Background(), q) }()
	waitFor(t, func() bool { return q.Len() >= 1 })

	if res := stage.Run(context.Background(), NewQueue()); !res.Skipped {
		t.Fatalf("second Run = %+v, want skipped", res)
	}
	stage.Stop()
	if res := <-done; res.Failed {
		t.Fatalf("first run failed: %s", res.Detail)
	}
}

func TestCaptureStopsOnContextCancel(t *testing.T) {
	stage := NewCaptureStage(shell(t, "exec sleep 30"), TerminatedBy(syscall.SIGTERM), CaptureOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	q := NewQueue()
	done := make(chan Result, 1)
	go func() { done <- stage.Run(ctx, q) }()
	waitFor(t, stage.Running)
	waitFor(t, func() bool {
		stage.mu.Lock()
		defer stage.mu.Unlock()
		return stage.proc != nil
	})
	cancel()

	select {
	case res := <-done:
		if res.Failed {
			t.Fatalf("cancel should stop gracefully: %s", res.Detail)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("capture ignored context cancel")
	}
}

func TestCaptureLagWarningAndHook(t *testing.T) {
	var seen int
	stage := NewCaptureStage(shell(t, "printf abcdefgh"), TerminatedBy(syscall.SIGTERM), CaptureOptions{
		BlockSize:    2,
		LagWarnBytes: 3,
		OnBlock:      func(n int) { seen += n },
	})
	q := NewQueue()
	res := stage.Run(context.Background(), q)
	if !res.Failed {
		t.Fatal("exit without stop request should fail")
	}
	if seen != 8 {
		t.Fatalf("OnBlock saw %d bytes", seen)
	}
	if q.HighWater() != 8 {
		t.Fatalf("HighWater = %d", q.HighWater())
	}
}

func TestEncodeWritesOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "take.raw")
	stage := NewEncodeStage(shell(t, `cat > "$1"`, out), SuccessOnly(), EncodeOptions{Output: out})
	q := NewQueue()
	q.Push([]byte("hello "))
	q.Push([]byte("world"))
	q.Push(nil)

	res := stage.Run(context.Background(), q)
	if res.Failed {
		t.Fatalf("encode failed: %s", res.Detail)
	}
	if res.Blocks != 2 || res.Bytes != 11 {
		t.Fatalf("blocks=%d bytes=%d", res.Blocks, res.Bytes)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("output = %q", data)
	}
	if stage.Output() != out {
		t.Fatalf("Output = %q", stage.Output())
	}
}

func TestEncodeRejectedExit(t *testing.T) {
	stage := NewEncodeStage(shell(t, "cat > /dev/null; exit 2"), SuccessOnly(), EncodeOptions{})
	q := NewQueue()
	q.Push([]byte("data"))
	q.Push(nil)

	res := stage.Run(context.Background(), q)
	if !res.Failed || !errors.Is(res.Err, ErrAbnormalExit) {
		t.Fatalf("expected abnormal exit, got %+v", res)
	}
	if res.Exit != "exit status 2" {
		t.Fatalf("Exit = %q", res.Exit)
	}
}

func TestEncodeLaunchFailureDrainsQueue(t *testing.T) {
	cmd, _ := NewCommand([]string{filepath.Join(t.TempDir(), "missing-encoder")}, nil)
	stage := NewEncodeStage(cmd, SuccessOnly(), EncodeOptions{})
	q := NewQueue()
	for i := 0; i < 3; i++ {
		q.Push([]byte("x"))
	}
	q.Push(nil)

	res := stage.Run(context.Background(), q)
	if !res.Failed || !errors.Is(res.Err, ErrLaunch) {
		t.Fatalf("expected launch failure, got %+v", res)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not drained: %d left", q.Len())
	}
}

func TestEncodeEarlyExitDrainsToSentinel(t *testing.T) {
	stage := NewEncodeStage(shell(t, "exit 0"), SuccessOnly(), EncodeOptions{})
	q := NewQueue()

	var failed error
	done := make(chan Result, 1)
	go func() { done <- stage.run(context.Background(), q, func(err error) { failed = err }) }()

	// The encoder is gone before any input arrives; the stage must still
	// consume everything up to the sentinel.
	time.Sleep(50 * time.Millisecond)
	block := make([]byte, 64*1024)
	for i := 0; i < 4; i++ {
		q.Push(block)
	}
	q.Push(nil)

	select {
	case res := <-done:
		if !res.Failed || !errors.Is(res.Err, ErrStream) {
			t.Fatalf("expected stream failure, got %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("encode did not finish")
	}
	if failed == nil {
		t.Fatal("failure hook not called")
	}
	if q.Len() != 0 {
		t.Fatalf("queue not drained: %d left", q.Len())
	}
}

func TestRunJointSuccess(t *testing.T) {
	out := filepath.Join(t.TempDir(), "take.raw")
	blocks := make(chan struct{}, 16)
	capture := NewCaptureStage(shell(t, "printf hello-world; exec sleep 30"), TerminatedBy(syscall.SIGTERM), CaptureOptions{
		BlockSize: 5,
		OnBlock:   func(int) { blocks <- struct{}{} },
	})
	encode := NewEncodeStage(shell(t, `cat > "$1"`, out), SuccessOnly(), EncodeOptions{Output: out})
	q := NewQueue()

	done := make(chan JointResult, 1)
	go func() { done <- RunJoint(context.Background(), capture, encode, q) }()

	// The trailing "d" is a short block and only arrives at EOF, after Stop.
	for i := 0; i < 2; i++ {
		select {
		case <-blocks:
		case <-time.After(5 * time.Second):
			t.Fatal("capture produced no data")
		}
	}
	capture.Stop()

	var res JointResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("joint run did not finish")
	}
	if res.Failed() {
		t.Fatalf("joint failed: %s", res.Detail())
	}
	if res.Leftover != 0 || res.Err() != nil || res.Detail() != "" {
		t.Fatalf("unexpected result %+v", res)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "hello-world" {
		t.Fatalf("output = %q", data)
	}
}

func TestRunJointEncoderFailureStopsCapture(t *testing.T) {
	capture := NewCaptureStage(shell(t, "exec sleep 30"), TerminatedBy(syscall.SIGTERM), CaptureOptions{})
	encode := NewEncodeStage(shell(t, "exit 4"), SuccessOnly(), EncodeOptions{})
	q := NewQueue()

	start := time.Now()
	res := RunJoint(context.Background(), capture, encode, q)
	if time.Since(start) > 10*time.Second {
		t.Fatal("capture was not stopped promptly")
	}
	if !res.Failed() {
		t.Fatal("expected joint failure")
	}
	if !res.Encode.Failed {
		t.Fatalf("encode result %+v", res.Encode)
	}
	if res.Capture.Failed {
		t.Fatalf("capture stopped on request should be graceful: %s", res.Capture.Detail)
	}
	if res.Leftover != 0 {
		t.Fatalf("leftover = %d", res.Leftover)
	}
}

func TestRunJointCaptureLaunchFailure(t *testing.T) {
	cmd, _ := NewCommand([]string{filepath.Join(t.TempDir(), "missing-capture")}, nil)
	capture := NewCaptureStage(cmd, TerminatedBy(syscall.SIGTERM), CaptureOptions{})
	encode := NewEncodeStage(shell(t, "cat > /dev/null"), SuccessOnly(), EncodeOptions{})

	res := RunJoint(context.Background(), capture, encode, NewQueue())
	if !res.Failed() || !errors.Is(res.Err(), ErrLaunch) {
		t.Fatalf("expected launch failure, got %s", res.Detail())
	}
	if res.Encode.Failed {
		t.Fatalf("encode should finish cleanly on an empty stream: %s", res.Encode.Detail)
	}
}

func TestJointResultLeftoverIsInconsistent(t *testing.T) {
	res := JointResult{Leftover: 2}
	if !res.Failed() || !errors.Is(res.Err(), ErrPipelineInconsistent) {
		t.Fatalf("leftover not reported: %v", res.Err())
	}
	if !strings.Contains(res.Detail(), "2 blocks left") {
		t.Fatalf("Detail = %q", res.Detail())
	}
}
