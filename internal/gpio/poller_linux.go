package gpio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"buttonrec/internal/logging"
)

// EdgeEvents is the epoll mask for sysfs GPIO value files.
const EdgeEvents = unix.EPOLLPRI | unix.EPOLLERR

// Poller is an epoll readiness multiplexer. Callbacks run on the goroutine
// calling Run, one at a time.
type Poller struct {
	epfd   int
	wakefd int
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[int]func()

	closing atomic.Bool
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPoller creates the epoll instance and its wakeup eventfd.
func NewPoller(logger *slog.Logger) (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll add wakeup: %w", err)
	}
	return &Poller{
		epfd:     epfd,
		wakefd:   wakefd,
		logger:   logging.NewComponentLogger(logger, "poller"),
		handlers: make(map[int]func()),
	}, nil
}

// Add registers fd for GPIO edge notifications.
func (p *Poller) Add(fd int, fn func()) error {
	return p.AddEvents(fd, EdgeEvents, fn)
}

// AddEvents registers fd with an explicit epoll event mask.
func (p *Poller) AddEvents(fd int, events uint32, fn func()) error {
	if fn == nil {
		return errors.New("poller: nil callback")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.handlers[fd]; exists {
		return fmt.Errorf("poller: fd %d already registered", fd)
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll add fd %d: %w", fd, err)
	}
	p.handlers[fd] = fn
	return nil
}

// Remove unregisters fd. Removing an unknown fd is a no-op.
func (p *Poller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.handlers[fd]; !exists {
		return nil
	}
	delete(p.handlers, fd)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && !errors.Is(err, unix.EBADF) && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("epoll del fd %d: %w", fd, err)
	}
	return nil
}

// Run dispatches readiness callbacks until ctx ends or Close is called.
func (p *Poller) Run(ctx context.Context) error {
	if p.closing.Load() {
		return nil
	}
	p.wg.Add(1)
	defer p.wg.Done()

	stop := context.AfterFunc(ctx, p.wake)
	defer stop()

	events := make([]unix.EpollEvent, 16)
	for {
		n, err := unix.EpollWait(p.epfd, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll wait: %w", err)
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == p.wakefd {
				p.drainWake()
				if ctx.Err() != nil || p.closing.Load() {
					return nil
				}
				continue
			}
			p.mu.Lock()
			fn := p.handlers[fd]
			p.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	}
}

// Close stops Run and releases the epoll descriptors.
func (p *Poller) Close() error {
	var err error
	p.once.Do(func() {
		p.closing.Store(true)
		p.wake()
		p.wg.Wait()
		err = errors.Join(unix.Close(p.epfd), unix.Close(p.wakefd))
	})
	return err
}

func (p *Poller) wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakefd, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		p.logger.Debug("poller wakeup failed", logging.Error(err))
	}
}

func (p *Poller) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(p.wakefd, buf[:])
}
