package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"buttonrec/internal/logging"
)

// DefaultBlockSize is the capture read size in bytes.
const DefaultBlockSize = 4096

// CaptureOptions tunes a CaptureStage.
type CaptureOptions struct {
	BlockSize int
	// StopTimeout is how long a stopped process may run before SIGKILL.
	StopTimeout time.Duration
	// LagWarnBytes logs a warning once when queued bytes exceed it.
	LagWarnBytes int64
	OnBlock      func(n int)
	Logger       *slog.Logger
}

// CaptureStage runs the capture tool and feeds its stdout into a Queue.
type CaptureStage struct {
	cmd    Command
	policy ExitPolicy
	opts   CaptureOptions
	logger *slog.Logger

	mu            sync.Mutex
	active        bool
	proc          *os.Process
	stopRequested bool
	killTimer     *time.Timer
}

// NewCaptureStage returns a stage for cmd whose exit after Stop is judged by policy.
func NewCaptureStage(cmd Command, policy ExitPolicy, opts CaptureOptions) *CaptureStage {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	return &CaptureStage{
		cmd:    cmd,
		policy: policy,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "capture").With(logging.Stage(StageCapture)),
	}
}

// Running reports whether the capture process is owned by a Run call.
func (c *CaptureStage) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Run launches the capture process and pushes its output to q in fixed-size
// blocks, then one sentinel. The sentinel is pushed on every path so the
// consumer always terminates. Cancelling ctx stops the process, even when
// it is cancelled before the process has started. Calling Run
// while a run is active returns a skipped result.
func (c *CaptureStage) Run(ctx context.Context, q *Queue) Result {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		c.logger.Debug("capture already running; run ignored")
		return Result{Stage: StageCapture, Skipped: true}
	}
	c.active = true
	c.stopRequested = false

	cmd := c.cmd.build()
	stdout, err := cmd.StdoutPipe()
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		c.active = false
		c.mu.Unlock()
		q.Push(nil)
		return failure(StageCapture, ErrLaunch, "start %s: %v", c.cmd.Path, err)
	}
	c.proc = cmd.Process
	c.mu.Unlock()

	c.logger.Info("capture started",
		logging.String(logging.FieldEventType, "capture_started"),
		logging.Int("pid", cmd.Process.Pid),
		logging.String("command", c.cmd.String()),
	)

	// A stop that arrived before the process existed is applied now.
	if ctx.Err() != nil {
		c.Stop()
	}
	stopOnCancel := context.AfterFunc(ctx, c.Stop)
	defer stopOnCancel()

	blocks, total, readErr := c.pump(stdout, q)
	q.Push(nil)
	if readErr != nil {
		// The process may still be writing; make sure it goes away.
		_ = signalGroup(cmd.Process.Pid, syscall.SIGKILL)
	}
	waitErr := cmd.Wait()

	c.mu.Lock()
	stopped := c.stopRequested
	if c.killTimer != nil {
		c.killTimer.Stop()
		c.killTimer = nil
	}
	c.proc = nil
	c.active = false
	c.mu.Unlock()

	state := cmd.ProcessState
	exit := describeExit(state)

	var res Result
	switch {
	case readErr != nil:
		res = failure(StageCapture, ErrStream, "read output: %v", readErr)
	case state == nil:
		res = failure(StageCapture, ErrAbnormalExit, "wait: %v", waitErr)
	case !stopped:
		res = failure(StageCapture, ErrAbnormalExit, "%s without stop request", exit)
	case !c.policy.Accepts(state):
		res = failure(StageCapture, ErrAbnormalExit, "%s not accepted (want %s)", exit, c.policy)
	default:
		res = Result{Stage: StageCapture}
	}
	res.Exit = exit
	res.Blocks = blocks
	res.Bytes = total

	if res.Failed {
		logging.WarnWithContext(c.logger, "capture failed", "capture_failed",
			logging.String("exit", exit),
			logging.String("detail", res.Detail),
			logging.Int64("bytes", total),
			logging.String(logging.FieldErrorHint, "check tool/capture.log and the audio device"),
			logging.String(logging.FieldImpact, "recording ends in error"),
		)
	} else {
		c.logger.Info("capture finished",
			logging.String(logging.FieldEventType, "capture_finished"),
			logging.String("exit", exit),
			logging.Int("blocks", blocks),
			logging.Int64("bytes", total),
		)
	}
	return res
}

// Stop asks the owned capture process to terminate. It is a no-op when no
// process is running. A process that ignores the request is killed after the
// stop timeout.
func (c *CaptureStage) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc == nil || c.stopRequested {
		return
	}
	c.stopRequested = true
	pid := c.proc.Pid
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		c.logger.Warn("capture stop signal failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "capture_stop_failed"),
			logging.String(logging.FieldErrorHint, "process will be killed after the stop timeout"),
			logging.String(logging.FieldImpact, "recording may end later than requested"),
		)
	}
	c.killTimer = time.AfterFunc(c.opts.StopTimeout, func() {
		c.logger.Warn("capture ignored stop request; killing",
			logging.Int("pid", pid),
			logging.Duration("timeout", c.opts.StopTimeout),
			logging.String(logging.FieldEventType, "capture_killed"),
			logging.String(logging.FieldErrorHint, "check the capture command handles SIGTERM"),
			logging.String(logging.FieldImpact, "capture exit will not match the graceful policy"),
		)
		_ = signalGroup(pid, syscall.SIGKILL)
	})
	c.logger.Info("capture stop requested", logging.String(logging.FieldEventType, "capture_stop_requested"))
}

func (c *CaptureStage) pump(r io.Reader, q *Queue) (int, int64, error) {
	var (
		blocks int
		total  int64
		warned bool
	)
	for {
		buf := make([]byte, c.opts.BlockSize)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			q.Push(buf[:n])
			blocks++
			total += int64(n)
			if c.opts.OnBlock != nil {
				c.opts.OnBlock(n)
			}
			if !warned && c.opts.LagWarnBytes > 0 && q.Bytes() > c.opts.LagWarnBytes {
				warned = true
				logging.WarnWithContext(c.logger, "encoder falling behind capture", "queue_lag",
					logging.Int64("queued_bytes", q.Bytes()),
					logging.Int64("threshold_bytes", c.opts.LagWarnBytes),
					logging.String(logging.FieldErrorHint, "check CPU load or lower the encode bitrate"),
					logging.String(logging.FieldImpact, "memory use grows until the encoder catches up"),
				)
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return blocks, total, nil
		default:
			return blocks, total, err
		}
	}
}
