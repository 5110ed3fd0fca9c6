package gpio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"buttonrec/internal/logging"
)

// DefaultBufferCapacity is the number of unread edges a Pin holds before it
// latches ErrBufferOverflow.
const DefaultBufferCapacity = 100

var (
	// ErrBufferOverflow is latched when an edge arrives while the buffer is
	// full and nobody is waiting. The Pin must be recreated to recover.
	ErrBufferOverflow = errors.New("gpio: edge buffer full")
	// ErrWaiterBusy is returned when AwaitEdge is called while another wait
	// is outstanding.
	ErrWaiterBusy = errors.New("gpio: edge wait already outstanding")
	// ErrClosed is returned by operations on a closed Pin.
	ErrClosed = errors.New("gpio: pin closed")
)

// Line is a configured input line with a pollable value source.
type Line interface {
	Number() int
	Read() (bool, error)
	Fd() int
	Close() error
}

// Multiplexer registers readiness callbacks for file descriptors.
type Multiplexer interface {
	Add(fd int, fn func()) error
	Remove(fd int) error
}

// PinOptions tunes a Pin.
type PinOptions struct {
	Capacity   int
	Logger     *slog.Logger
	OnEdge     func(level bool)
	OnOverflow func()
}

type edgeResult struct {
	level bool
	err   error
}

// Pin turns hardware readiness notifications on one input line into an
// ordered stream of levels with at most one waiter.
type Pin struct {
	line     Line
	mux      Multiplexer
	logger   *slog.Logger
	capacity int
	onEdge   func(bool)
	onFull   func()

	mu     sync.Mutex
	level  bool
	buffer []bool
	waiter chan edgeResult
	err    error
	closed bool
}

// NewPin wraps line and registers it with mux. A nil mux leaves delivery to
// the caller, which tests use to inject edges.
func NewPin(line Line, mux Multiplexer, opts PinOptions) (*Pin, error) {
	if line == nil {
		return nil, errors.New("gpio: nil line")
	}
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	p := &Pin{
		line:     line,
		mux:      mux,
		logger:   logging.NewComponentLogger(opts.Logger, "gpio"),
		capacity: capacity,
		onEdge:   opts.OnEdge,
		onFull:   opts.OnOverflow,
		buffer:   make([]bool, 0, capacity),
	}

	// The initial read caches the level and clears any pending notification.
	level, err := line.Read()
	if err != nil {
		return nil, fmt.Errorf("read gpio%d: %w", line.Number(), err)
	}
	p.level = level

	if mux != nil {
		if err := mux.Add(line.Fd(), p.onReady); err != nil {
			return nil, fmt.Errorf("register gpio%d: %w", line.Number(), err)
		}
	}
	return p, nil
}

// Number returns the line number.
func (p *Pin) Number() int {
	return p.line.Number()
}

// Level returns the last level observed by ReadLevel or a notification.
func (p *Pin) Level() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// ReadLevel re-reads the line.
func (p *Pin) ReadLevel() (bool, error) {
	level, err := p.line.Read()
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
	return level, nil
}

// Buffered reports the number of unread edges.
func (p *Pin) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// AwaitEdge returns the level after the next edge. Buffered edges are returned
// first, oldest first. If ctx ends after a level was already handed to this
// waiter, that level is returned instead of the context error so it is not lost.
func (p *Pin) AwaitEdge(ctx context.Context) (bool, error) {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return false, ErrClosed
	case p.err != nil:
		err := p.err
		p.mu.Unlock()
		return false, err
	case len(p.buffer) > 0:
		level := p.popLocked()
		p.mu.Unlock()
		return level, nil
	case p.waiter != nil:
		p.mu.Unlock()
		return false, ErrWaiterBusy
	}
	ch := make(chan edgeResult, 1)
	p.waiter = ch
	p.mu.Unlock()

	select {
	case res := <-ch:
		return res.level, res.err
	case <-ctx.Done():
		p.mu.Lock()
		if p.waiter == ch {
			p.waiter = nil
			p.mu.Unlock()
			return false, ctx.Err()
		}
		p.mu.Unlock()
		res := <-ch
		return res.level, res.err
	}
}

// Close unregisters the line, fails any outstanding wait and releases the line.
func (p *Pin) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.waiter != nil {
		p.waiter <- edgeResult{err: ErrClosed}
		p.waiter = nil
	}
	p.mu.Unlock()

	var errs []error
	if p.mux != nil {
		if err := p.mux.Remove(p.line.Fd()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.line.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *Pin) onReady() {
	level, err := p.line.Read()
	p.deliver(level, err)
}

// deliver applies the delivery policy for one notification.
func (p *Pin) deliver(level bool, readErr error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	w := p.waiter

	if readErr != nil {
		if w != nil {
			p.waiter = nil
			w <- edgeResult{err: readErr}
		}
		p.mu.Unlock()
		if w == nil {
			p.logger.Debug("gpio read failed with no waiter; edge dropped",
				logging.Int("line", p.line.Number()),
				logging.Error(readErr),
			)
		}
		return
	}

	p.level = level
	overflowed := false
	switch {
	case w != nil && len(p.buffer) > 0:
		oldest := p.popLocked()
		p.buffer = append(p.buffer, level)
		p.waiter = nil
		w <- edgeResult{level: oldest}
	case w != nil:
		p.waiter = nil
		w <- edgeResult{level: level}
	case len(p.buffer) < p.capacity:
		p.buffer = append(p.buffer, level)
	default:
		if p.err == nil {
			p.err = ErrBufferOverflow
			overflowed = true
		}
	}
	p.mu.Unlock()

	if p.onEdge != nil {
		p.onEdge(level)
	}
	if overflowed {
		logging.WarnWithContext(p.logger, "gpio edge buffer overflowed; edges are no longer delivered", "gpio_buffer_overflow",
			logging.Int("line", p.line.Number()),
			logging.Int("capacity", p.capacity),
			logging.String(logging.FieldErrorHint, "check the button wiring for bounce or a floating input"),
			logging.String(logging.FieldImpact, "button presses ignored until the pin is reopened"),
		)
		if p.onFull != nil {
			p.onFull()
		}
	}
}

func (p *Pin) popLocked() bool {
	level := p.buffer[0]
	copy(p.buffer, p.buffer[1:])
	p.buffer = p.buffer[:len(p.buffer)-1]
	return level
}
