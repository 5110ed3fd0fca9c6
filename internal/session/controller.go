package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"buttonrec/internal/logging"
	"buttonrec/internal/pipeline"
)

// DefaultMaxDuration stops a recording nobody stopped by hand.
const DefaultMaxDuration = 180 * time.Minute

// Observer is notified on the controller goroutine after each published
// change. Implementations must not block. SessionFinished reports a failed
// session with status.State == StateError; the result alone may not say so.
type Observer interface {
	StateChanged(from, to State, status Status)
	SessionFinished(status Status, result pipeline.JointResult)
}

// Options configures a Controller.
type Options struct {
	Launcher       Launcher
	Logger         *slog.Logger
	MaxDuration    time.Duration
	RecordingsDir  string
	FilenameLayout string
	Extension      string
	Observers      []Observer
	Now            func() time.Time
}

// Controller owns the recording state machine. All state lives on the
// goroutine running Run; other goroutines post events and read snapshots.
type Controller struct {
	launcher    Launcher
	logger      *slog.Logger
	maxDuration time.Duration
	dir         string
	layout      string
	ext         string
	observers   []Observer
	now         func() time.Time

	events  chan event
	stopped chan struct{}
	started atomic.Bool

	// Owned by the Run goroutine.
	state     State
	current   *Session
	lastError string
	runCtx    context.Context

	snapshot atomic.Pointer[Status]
	queue    atomic.Pointer[pipeline.Queue]

	subMu   sync.Mutex
	subs    map[int]chan Status
	nextSub int
}

// New returns an idle controller.
func New(opts Options) (*Controller, error) {
	if opts.Launcher == nil {
		return nil, errors.New("controller: launcher required")
	}
	if opts.RecordingsDir == "" {
		return nil, errors.New("controller: recordings directory required")
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{
		launcher:    opts.Launcher,
		logger:      logging.NewComponentLogger(opts.Logger, "controller"),
		maxDuration: opts.MaxDuration,
		dir:         opts.RecordingsDir,
		layout:      opts.FilenameLayout,
		ext:         opts.Extension,
		observers:   opts.Observers,
		now:         opts.Now,
		events:      make(chan event, 32),
		stopped:     make(chan struct{}),
		subs:        make(map[int]chan Status),
	}
	c.snapshot.Store(&Status{State: StateIdle})
	return c, nil
}

// Run processes events until ctx ends. An active recording is stopped and
// allowed to finish writing before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("controller: already running")
	}
	defer close(c.stopped)
	c.runCtx = ctx

	c.logger.Info("controller started",
		logging.String(logging.FieldEventType, "controller_started"),
		logging.Duration("max_duration", c.maxDuration),
		logging.String("recordings_dir", c.dir),
	)

	for {
		select {
		case ev := <-c.events:
			c.handle(ev)
		case <-ctx.Done():
			c.shutdown()
			return nil
		}
	}
}

func (c *Controller) shutdown() {
	if c.current == nil {
		c.logger.Info("controller stopped", logging.String(logging.FieldEventType, "controller_stopped"))
		return
	}
	if c.state == StateRecording {
		c.logger.Info("stopping active recording for shutdown",
			logging.SessionID(c.current.ID),
			logging.String(logging.FieldEventType, "shutdown_stop"),
		)
		c.handle(event{kind: evStop})
	}
	// Requests arriving now are answered with ErrNotRunning; only the
	// pipeline result moves the state on.
	for c.current != nil {
		ev := <-c.events
		switch ev.kind {
		case evDone, evDoneFailed:
			c.handle(ev)
		default:
			if ev.reply != nil {
				ev.reply <- ErrNotRunning
			}
		}
	}
	c.logger.Info("controller stopped", logging.String(logging.FieldEventType, "controller_stopped"))
}

// HandleButton posts a debounced button press. It never blocks the caller
// for long: presses are dropped once the controller has stopped.
func (c *Controller) HandleButton() {
	c.post(event{kind: evButton})
}

// RequestStart starts a recording. It is valid only from IDLE and returns
// as soon as the session has been launched.
func (c *Controller) RequestStart(ctx context.Context) error {
	return c.request(ctx, evStart)
}

// RequestStop stops the active recording. It is valid only from RECORDING
// and does not wait for the output file to be written.
func (c *Controller) RequestStop(ctx context.Context) error {
	return c.request(ctx, evStop)
}

// Status returns the latest snapshot.
func (c *Controller) Status() Status {
	st := *c.snapshot.Load()
	if q := c.queue.Load(); q != nil {
		st.Queued = q.Bytes()
		st.QueueHighWater = q.HighWater()
	}
	return st
}

// Subscribe returns a channel that receives the current snapshot and every
// later one. Slow readers only see the newest snapshot. Call the returned
// function to unsubscribe.
func (c *Controller) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- *c.snapshot.Load()
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Controller) request(ctx context.Context, kind eventKind) error {
	reply := make(chan error, 1)
	if !c.post(event{kind: kind, reply: reply}) {
		return ErrNotRunning
	}
	select {
	case err := <-reply:
		return err
	case <-c.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) post(ev event) bool {
	select {
	case <-c.stopped:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.stopped:
		return false
	}
}

func (c *Controller) handle(ev event) {
	kind := ev.kind
	if kind == evTimer || kind == evDone {
		if c.current == nil || c.current.ID != ev.sessionID {
			c.logger.Debug("stale session event ignored",
				logging.String("event", kind.String()),
				logging.SessionID(ev.sessionID),
			)
			return
		}
		if kind == evDone && ev.result.Failed() {
			kind = evDoneFailed
		}
	}

	tr, ok := lookup(c.state, kind)
	if !ok {
		c.logger.Error("no transition for event",
			logging.State(c.state.String()),
			logging.String("event", kind.String()),
		)
		c.reply(ev, fmt.Errorf("%w: %s not handled in %s", ErrConflict, kind, c.state))
		return
	}

	switch tr.action {
	case actIgnore:
		c.logger.Debug("event ignored",
			logging.State(c.state.String()),
			logging.String("event", kind.String()),
		)
		c.reply(ev, nil)
	case actConflict:
		c.reply(ev, fmt.Errorf("%w: state is %s", ErrConflict, c.state))
	case actRejectError:
		if kind == evButton {
			logging.WarnWithContext(c.logger, "button press rejected in error state", "button_rejected",
				logging.State(c.state.String()),
				logging.String("last_error", c.lastError),
				logging.String(logging.FieldErrorHint, "restart buttonrecd after fixing the cause"),
				logging.String(logging.FieldImpact, "no new recordings until restart"),
			)
		}
		c.reply(ev, ErrErrorState)
	case actBegin:
		c.reply(ev, c.begin(tr.next, kind))
	case actStop:
		c.stop(tr.next, kind)
		c.reply(ev, nil)
	case actFinish:
		c.finish(tr.next, ev.result)
	}
}

func (c *Controller) reply(ev event, err error) {
	if ev.reply != nil {
		ev.reply <- err
	}
}

func (c *Controller) begin(next State, cause eventKind) error {
	sess, err := newSession(c.dir, c.layout, c.ext, c.now())
	if err != nil {
		c.fail("prepare session", err)
		return err
	}
	capture, encode, err := c.launcher.Prepare(sess)
	if err != nil {
		c.fail("prepare pipeline", err)
		return err
	}

	// Only the controller stops capture, so shutdown goes through the same
	// WRITING path as a manual stop.
	base := context.Background()
	if c.runCtx != nil {
		base = context.WithoutCancel(c.runCtx)
	}
	ctx, stop := context.WithCancel(base)

	q := pipeline.NewQueue()
	sess.queue = q
	sess.stop = stop
	id := sess.ID
	sess.timer = NewStopTimer(c.maxDuration, func() {
		c.post(event{kind: evTimer, sessionID: id})
	})
	c.current = sess
	c.queue.Store(q)

	go func() {
		res := pipeline.RunJoint(ctx, capture, encode, q)
		c.post(event{kind: evDone, sessionID: id, result: res})
	}()

	c.logger.Info("recording started",
		logging.String(logging.FieldEventType, "recording_started"),
		logging.SessionID(id),
		logging.String("cause", cause.String()),
		logging.String("output", sess.Output),
		logging.Time("deadline", sess.timer.Deadline()),
	)
	c.transition(next)
	return nil
}

func (c *Controller) stop(next State, cause eventKind) {
	sess := c.current
	sess.timer.Cancel()
	sess.StoppedAt = c.now()
	sess.stop()
	c.logger.Info("recording stopping",
		logging.String(logging.FieldEventType, "recording_stopping"),
		logging.SessionID(sess.ID),
		logging.String("cause", cause.String()),
		logging.Duration("elapsed", sess.StoppedAt.Sub(sess.StartedAt)),
	)
	c.transition(next)
}

func (c *Controller) finish(next State, res pipeline.JointResult) {
	sess := c.current
	sess.timer.Cancel()
	sess.stop()
	if sess.StoppedAt.IsZero() {
		sess.StoppedAt = c.now()
	}

	detail := res.Detail()
	if next == StateError && detail == "" {
		detail = "pipeline ended before a stop was requested"
	}
	if next == StateError {
		c.lastError = detail
		logging.ErrorWithContext(c.logger, "recording failed", "recording_failed",
			logging.SessionID(sess.ID),
			logging.String("output", sess.Output),
			logging.String("detail", detail),
			logging.String(logging.FieldErrorHint, "inspect tool/capture.log and tool/encode.log, then restart buttonrecd"),
			logging.String(logging.FieldImpact, "controller stays in ERROR until restart"),
		)
	} else {
		c.logger.Info("recording saved",
			logging.String(logging.FieldEventType, "recording_saved"),
			logging.SessionID(sess.ID),
			logging.String("output", sess.Output),
			logging.Int64("bytes", res.Encode.Bytes),
			logging.Duration("duration", sess.StoppedAt.Sub(sess.StartedAt)),
		)
	}

	finished := c.statusFor(next)
	finished.LastError = c.lastError
	finished.Queued = 0
	finished.QueueHighWater = sess.queue.HighWater()

	c.current = nil
	c.queue.Store(nil)
	c.transition(next)

	for _, o := range c.observers {
		o.SessionFinished(finished, res)
	}
}

// fail moves to ERROR without a session, used when a session cannot be
// prepared at all. Observers still see a finished, failed session.
func (c *Controller) fail(what string, err error) {
	c.lastError = fmt.Sprintf("%s: %v", what, err)
	logging.ErrorWithContext(c.logger, "recording could not start", "recording_launch_failed",
		logging.Error(err),
		logging.String("step", what),
		logging.String(logging.FieldErrorHint, "check the capture and encode configuration"),
		logging.String(logging.FieldImpact, "controller stays in ERROR until restart"),
	)
	c.transition(StateError)

	res := pipeline.JointResult{Capture: pipeline.Result{
		Stage:  pipeline.StageCapture,
		Failed: true,
		Detail: c.lastError,
		Err:    fmt.Errorf("%w: %s", pipeline.ErrLaunch, c.lastError),
	}}
	finished := c.statusFor(StateError)
	for _, o := range c.observers {
		o.SessionFinished(finished, res)
	}
}

func (c *Controller) statusFor(state State) Status {
	st := Status{State: state, LastError: c.lastError}
	if sess := c.current; sess != nil {
		st.SessionID = sess.ID
		st.Output = sess.Output
		st.StartedAt = sess.StartedAt
		st.StoppedAt = sess.StoppedAt
		st.Deadline = sess.timer.Deadline()
	}
	return st
}

func (c *Controller) transition(next State) {
	from := c.state
	c.state = next
	st := c.statusFor(next)
	c.snapshot.Store(&st)

	c.subMu.Lock()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
	c.subMu.Unlock()

	if from != next {
		c.logger.Info("state changed",
			logging.String(logging.FieldEventType, "state_changed"),
			logging.String("from", from.String()),
			logging.State(next.String()),
		)
	}
	for _, o := range c.observers {
		o.StateChanged(from, next, st)
	}
}
