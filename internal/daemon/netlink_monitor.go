package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"buttonrec/internal/logging"
)

// AudioDeviceEvent records one sound card hotplug event.
type AudioDeviceEvent struct {
	Action string
	Card   string
	Model  string
	At     time.Time
}

// netlinkMonitor listens for udev sound card add/remove events so a USB
// microphone being unplugged shows up in status and logs before the capture
// tool fails on it.
type netlinkMonitor struct {
	logger  *slog.Logger
	handler func(AudioDeviceEvent)
	now     func() time.Time

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	last    *AudioDeviceEvent
}

func newNetlinkMonitor(logger *slog.Logger, handler func(AudioDeviceEvent)) *netlinkMonitor {
	return &netlinkMonitor{
		logger:  logging.NewComponentLogger(logger, "netlink-monitor"),
		handler: handler,
		now:     time.Now,
	}
}

// Start begins listening for udev netlink events. Failing to open the
// netlink socket is logged and otherwise ignored.
func (m *netlinkMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; sound card hotplug will not be reported",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "audio device changes only show up as capture failures"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
	)
	return nil
}

// Stop shuts down the monitor. It is safe to call on a stopped monitor.
func (m *netlinkMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
}

// Running reports whether the monitor is active.
func (m *netlinkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Last returns the most recent sound card event, if any.
func (m *netlinkMonitor) Last() (AudioDeviceEvent, bool) {
	if m == nil {
		return AudioDeviceEvent{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return AudioDeviceEvent{}, false
	}
	return *m.last, true
}

func (m *netlinkMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "sound card changes may go unreported"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=sound with ACTION=add|remove.
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
		},
	})
	return rules
}

func (m *netlinkMonitor) handleEvent(uevent netlink.UEvent) {
	card := cardName(uevent)
	if card == "" {
		// PCM and control nodes of the same card arrive as separate events.
		return
	}
	evt := AudioDeviceEvent{
		Action: string(uevent.Action),
		Card:   card,
		Model:  strings.TrimSpace(uevent.Env["ID_MODEL"]),
		At:     m.now(),
	}

	m.mu.Lock()
	m.last = &evt
	m.mu.Unlock()

	level := slog.LevelInfo
	if uevent.Action == netlink.REMOVE {
		level = slog.LevelWarn
	}
	m.logger.Log(context.Background(), level, "sound card "+evt.Action,
		logging.String(logging.FieldEventType, "audio_device_"+evt.Action),
		logging.String("card", evt.Card),
		logging.String("model", evt.Model),
	)
	if m.handler != nil {
		m.handler(evt)
	}
}

// cardName returns the card node ("card1") of a sound uevent, or "" for
// other nodes under the card.
func cardName(uevent netlink.UEvent) string {
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		devpath = uevent.KObj
	}
	parts := strings.Split(strings.TrimRight(devpath, "/"), "/")
	last := parts[len(parts)-1]
	if !strings.HasPrefix(last, "card") {
		return ""
	}
	return last
}
