package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"buttonrec/internal/api"
	"buttonrec/internal/config"
	"buttonrec/internal/deps"
	"buttonrec/internal/gpio"
	"buttonrec/internal/indicator"
	"buttonrec/internal/logging"
	"buttonrec/internal/metrics"
	"buttonrec/internal/notifications"
	"buttonrec/internal/session"
)

// buttonRetryInterval is how long the daemon waits before reopening a
// button line that could not be configured.
const buttonRetryInterval = 5 * time.Second

// Daemon wires the button, the recording controller, the status LED and the
// HTTP surface into one lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	launcher   *session.CommandLauncher
	controller *session.Controller
	monitor    *netlinkMonitor
	api        *apiServer
	notifier   notifications.Service

	lockPath string
	lock     *flock.Flock

	depsMu sync.Mutex
	deps   []deps.Status

	running     atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	buttonRetry time.Duration
	now         func() time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	LockFilePath string
	APIAddress   string
	Session      session.Status
	AudioDevice  *AudioDeviceEvent
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies. Nothing touches
// hardware until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	launcher, err := session.NewCommandLauncher(cfg, logger, metrics.AddCaptureBytes)
	if err != nil {
		return nil, fmt.Errorf("capture launcher: %w", err)
	}
	notifier := notifications.NewService(cfg)
	controller, err := session.New(session.Options{
		Launcher:       launcher,
		Logger:         logger,
		MaxDuration:    cfg.MaxDuration(),
		RecordingsDir:  cfg.Paths.RecordingsDir,
		FilenameLayout: cfg.Session.FilenameLayout,
		Extension:      cfg.Encode.Extension,
		Observers: []session.Observer{
			metrics.SessionObserver{},
			notifications.NewSessionNotifier(cfg, notifier, logger),
		},
	})
	if err != nil {
		_ = launcher.Close()
		return nil, err
	}

	d := &Daemon{
		cfg:         cfg,
		logger:      logger,
		launcher:    launcher,
		controller:  controller,
		notifier:    notifier,
		lockPath:    cfg.LockPath(),
		lock:        flock.New(cfg.LockPath()),
		buttonRetry: buttonRetryInterval,
		now:         time.Now,
	}
	d.monitor = newNetlinkMonitor(logger, func(evt AudioDeviceEvent) {
		metrics.IncAudioDeviceEvent(evt.Action)
	})

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	d.api = newAPIServer(cfg.Paths.APIBind, newAPIHandler(d, metricsPath, logger), logger)
	return d, nil
}

// Start acquires the daemon lock and launches the controller, button
// watcher, indicator, device monitor and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another buttonrec daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}
	d.cancel = cancel

	d.checkDependencies()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.controller.Run(runCtx); err != nil {
			d.logger.Error("controller exited", logging.Error(err))
		}
	}()

	d.startButton(runCtx)
	d.startIndicator(runCtx)
	_ = d.monitor.Start(runCtx)

	d.running.Store(true)
	d.logger.Info("buttonrec daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.addr()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop finishes any active recording, stops background work and releases
// the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.monitor.Stop()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("buttonrec daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.launcher != nil {
		return d.launcher.Close()
	}
	return nil
}

// Controller returns the recording controller.
func (d *Daemon) Controller() *session.Controller {
	return d.controller
}

// RequestStart forwards a start request to the controller.
func (d *Daemon) RequestStart(ctx context.Context) error {
	return d.controller.RequestStart(ctx)
}

// RequestStop forwards a stop request to the controller.
func (d *Daemon) RequestStop(ctx context.Context) error {
	return d.controller.RequestStop(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	st := Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		APIAddress:   d.api.addr(),
		Session:      d.controller.Status(),
	}
	if evt, ok := d.monitor.Last(); ok {
		st.AudioDevice = &evt
	}
	d.depsMu.Lock()
	st.Dependencies = append([]deps.Status(nil), d.deps...)
	d.depsMu.Unlock()
	return st
}

// StatusResponse renders Status for the HTTP surface.
func (d *Daemon) StatusResponse() api.StatusResponse {
	st := d.Status()
	resp := api.FromStatus(st.Session, d.now())
	if st.AudioDevice != nil {
		resp.AudioDevice = &api.AudioDeviceEvent{
			Action: st.AudioDevice.Action,
			Card:   st.AudioDevice.Card,
			At:     api.FormatTime(st.AudioDevice.At),
		}
	}
	resp.Dependencies = api.FromDependencies(st.Dependencies)
	return resp
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func (d *Daemon) checkDependencies() {
	statuses := deps.CheckBinaries(deps.AudioRequirements(d.cfg))
	statuses = append(statuses, deps.SoundCardStatus(""))
	d.depsMu.Lock()
	d.deps = statuses
	d.depsMu.Unlock()

	for _, missing := range deps.Missing(statuses) {
		logging.WarnWithContext(d.logger, "dependency unavailable", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("command", missing.Command),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, "install the tool or fix the command in the config file"),
			logging.String(logging.FieldImpact, "recordings will fail to start"),
		)
	}
}

// startButton runs the button watcher. A line that cannot be opened is
// retried, and an overflowed Pin is replaced by a fresh one.
func (d *Daemon) startButton(ctx context.Context) {
	poller, err := gpio.NewPoller(d.logger)
	if err != nil {
		logging.WarnWithContext(d.logger, "gpio poller unavailable", "gpio_poller_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check kernel epoll support"),
			logging.String(logging.FieldImpact, "the physical button is ignored; use the API to record"),
		)
		return
	}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		if err := poller.Run(ctx); err != nil {
			d.logger.Error("gpio poller stopped", logging.Error(err))
		}
		_ = poller.Close()
	}()
	go func() {
		defer d.wg.Done()
		for {
			err := d.watchButton(ctx, poller)
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, gpio.ErrBufferOverflow) {
				d.logger.Info("reopening button line after overflow",
					logging.Int("line", d.cfg.GPIO.ButtonLine),
					logging.String(logging.FieldEventType, "gpio_pin_reopen"),
				)
				continue
			}
			logging.WarnWithContext(d.logger, "button line unavailable", "gpio_open_failed",
				logging.Int("line", d.cfg.GPIO.ButtonLine),
				logging.Error(err),
				logging.Duration("retry_in", d.buttonRetry),
				logging.String(logging.FieldErrorHint, "check gpio.button_line and permissions on "+d.cfg.GPIO.SysfsRoot),
				logging.String(logging.FieldImpact, "the physical button is ignored until the line opens"),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.buttonRetry):
			}
		}
	}()
}

func (d *Daemon) watchButton(ctx context.Context, poller *gpio.Poller) error {
	line, err := gpio.OpenSysfsInput(d.cfg.GPIO.SysfsRoot, d.cfg.GPIO.ButtonLine, d.cfg.GPIO.Unexport)
	if err != nil {
		return err
	}
	pin, err := gpio.NewPin(line, poller, gpio.PinOptions{
		Capacity:   d.cfg.GPIO.EdgeBuffer,
		Logger:     d.logger,
		OnEdge:     func(bool) { metrics.IncEdge() },
		OnOverflow: metrics.IncOverflow,
	})
	if err != nil {
		_ = line.Close()
		return err
	}
	defer pin.Close()

	button := &gpio.Button{
		ActiveLow: d.cfg.GPIO.ActiveLow,
		Debounce:  d.cfg.Debounce(),
		Logger:    d.logger,
	}
	return button.Watch(ctx, pin, func() {
		metrics.IncButtonPress()
		d.controller.HandleButton()
	})
}

// startIndicator drives the status LED from controller snapshots when an
// LED line is configured.
func (d *Daemon) startIndicator(ctx context.Context) {
	if d.cfg.Indicator.LEDLine < 0 {
		return
	}
	led, err := gpio.OpenSysfsOutput(d.cfg.GPIO.SysfsRoot, d.cfg.Indicator.LEDLine, d.cfg.Indicator.ActiveLow)
	if err != nil {
		logging.WarnWithContext(d.logger, "status LED unavailable", "indicator_open_failed",
			logging.Int("line", d.cfg.Indicator.LEDLine),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check indicator.led_line"),
			logging.String(logging.FieldImpact, "no LED feedback"),
		)
		return
	}
	updates, unsubscribe := d.controller.Subscribe()
	driver := indicator.New(led, indicator.DefaultSchemes(), d.logger)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			unsubscribe()
			if err := led.Close(); err != nil {
				d.logger.Debug("status LED close failed", logging.Error(err))
			}
		}()
		_ = driver.Run(ctx, updates)
	}()
}
