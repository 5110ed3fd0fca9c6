package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"buttonrec/internal/logging"
)

// errEarlyExit marks an encoder that exited before the end of stream.
var errEarlyExit = errors.New("encoder exited before end of stream")

// EncodeOptions tunes an EncodeStage.
type EncodeOptions struct {
	Output string
	Logger *slog.Logger
}

// EncodeStage feeds queued blocks into the encoder's stdin.
type EncodeStage struct {
	cmd    Command
	policy ExitPolicy
	output string
	logger *slog.Logger

	mu     sync.Mutex
	active bool
}

// NewEncodeStage returns a stage for cmd, which must already reference the
// output file.
func NewEncodeStage(cmd Command, policy ExitPolicy, opts EncodeOptions) *EncodeStage {
	return &EncodeStage{
		cmd:    cmd,
		policy: policy,
		output: opts.Output,
		logger: logging.NewComponentLogger(opts.Logger, "encode").With(logging.Stage(StageEncode)),
	}
}

// Output returns the file the encoder writes.
func (e *EncodeStage) Output() string {
	return e.output
}

// Run launches the encoder and writes every block from q to its stdin until
// the sentinel, then closes stdin and waits. Writes block while the pipe is
// full. On any failure the stage keeps popping until the sentinel so the
// queue drains. ctx cancellation does not end the run; only the sentinel does.
func (e *EncodeStage) Run(ctx context.Context, q *Queue) Result {
	return e.run(ctx, q, nil)
}

// run is Run with a hook fired as soon as the stage knows it has failed, so
// the producer can be stopped before the sentinel arrives.
func (e *EncodeStage) run(ctx context.Context, q *Queue, onFail func(error)) Result {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		e.logger.Debug("encode already running; run ignored")
		return Result{Stage: StageEncode, Skipped: true}
	}
	e.active = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.active = false
		e.mu.Unlock()
	}()

	fail := func(err error) {
		if onFail != nil {
			onFail(err)
		}
	}
	drainCtx := context.WithoutCancel(ctx)

	cmd := e.cmd.build()
	stdin, err := cmd.StdinPipe()
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		res := failure(StageEncode, ErrLaunch, "start %s: %v", e.cmd.Path, err)
		fail(res.Err)
		discarded := drain(drainCtx, q)
		logging.WarnWithContext(e.logger, "encoder launch failed", "encode_launch_failed",
			logging.Error(err),
			logging.Int("discarded_blocks", discarded),
			logging.String(logging.FieldErrorHint, "check that the encoder is installed (buttonrec deps)"),
			logging.String(logging.FieldImpact, "no recording file is written"),
		)
		return res
	}

	e.logger.Info("encode started",
		logging.String(logging.FieldEventType, "encode_started"),
		logging.Int("pid", cmd.Process.Pid),
		logging.String("output", e.output),
	)

	// Pops are interrupted when the encoder exits, so an early exit is seen
	// even while the producer is idle.
	popCtx, cancelPop := context.WithCancel(drainCtx)
	defer cancelPop()
	exited := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(exited)
		cancelPop()
	}()

	var (
		blocks    int
		total     int64
		discarded int
		streamErr error
	)
	for {
		block, err := q.Pop(popCtx)
		if err != nil {
			if streamErr == nil {
				streamErr = errEarlyExit
				fail(streamErr)
			}
			discarded += drain(drainCtx, q)
			break
		}
		if IsSentinel(block) {
			break
		}
		if streamErr != nil {
			discarded++
			continue
		}
		if _, err := stdin.Write(block); err != nil {
			streamErr = err
			discarded++
			fail(err)
			logging.WarnWithContext(e.logger, "encoder stopped accepting input", "encode_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check tool/encode.log"),
				logging.String(logging.FieldImpact, "remaining audio is discarded"),
			)
			continue
		}
		blocks++
		total += int64(len(block))
	}
	_ = stdin.Close()
	<-exited

	state := cmd.ProcessState
	exit := describeExit(state)

	var res Result
	switch {
	case streamErr != nil:
		res = failure(StageEncode, ErrStream, "%v (%s, %d blocks discarded)", streamErr, exit, discarded)
	case state == nil:
		res = failure(StageEncode, ErrAbnormalExit, "wait: %v", waitErr)
	case !e.policy.Accepts(state):
		res = failure(StageEncode, ErrAbnormalExit, "%s not accepted (want %s)", exit, e.policy)
	default:
		res = Result{Stage: StageEncode}
	}
	res.Exit = exit
	res.Blocks = blocks
	res.Bytes = total

	if res.Failed {
		logging.WarnWithContext(e.logger, "encode failed", "encode_failed",
			logging.String("exit", exit),
			logging.String("detail", res.Detail),
			logging.String("output", e.output),
			logging.String(logging.FieldErrorHint, "check tool/encode.log"),
			logging.String(logging.FieldImpact, "recording file may be incomplete"),
		)
	} else {
		e.logger.Info("encode finished",
			logging.String(logging.FieldEventType, "encode_finished"),
			logging.String("output", e.output),
			logging.Int("blocks", blocks),
			logging.Int64("bytes", total),
		)
	}
	return res
}

// drain pops and discards blocks up to and including the sentinel.
func drain(ctx context.Context, q *Queue) int {
	discarded := 0
	for {
		block, err := q.Pop(ctx)
		if err != nil || IsSentinel(block) {
			return discarded
		}
		discarded++
	}
}
