package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGPIO()
	c.normalizeCapture()
	c.normalizeEncode()
	c.normalizeSession()
	c.normalizeLogging()
	c.normalizeMetrics()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.RecordingsDir, err = expandPath(c.Paths.RecordingsDir); err != nil {
		return fmt.Errorf("paths.recordings_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeGPIO() {
	c.GPIO.SysfsRoot = strings.TrimSpace(c.GPIO.SysfsRoot)
	if c.GPIO.SysfsRoot == "" {
		c.GPIO.SysfsRoot = defaultSysfsRoot
	}
	if c.GPIO.EdgeBuffer == 0 {
		c.GPIO.EdgeBuffer = defaultEdgeBuffer
	}
}

func (c *Config) normalizeCapture() {
	c.Capture.Command = trimArgs(c.Capture.Command)
	if len(c.Capture.Command) == 0 {
		c.Capture.Command = defaultCaptureCommand()
	}
	c.Capture.Device = strings.TrimSpace(c.Capture.Device)
	if c.Capture.Device == "" {
		if value, ok := os.LookupEnv("BUTTONREC_CAPTURE_DEVICE"); ok && strings.TrimSpace(value) != "" {
			c.Capture.Device = strings.TrimSpace(value)
		} else {
			c.Capture.Device = defaultCaptureDevice
		}
	}
	if c.Capture.BlockSize == 0 {
		c.Capture.BlockSize = defaultBlockSize
	}
	c.Capture.GracefulExit = normalizeExitRules(c.Capture.GracefulExit)
	if len(c.Capture.GracefulExit) == 0 {
		c.Capture.GracefulExit = []string{"signal:TERM"}
	}
	if c.Capture.StopTimeout <= 0 {
		c.Capture.StopTimeout = defaultCaptureStopTimeout
	}
}

func (c *Config) normalizeEncode() {
	c.Encode.Command = trimArgs(c.Encode.Command)
	if len(c.Encode.Command) == 0 {
		c.Encode.Command = defaultEncodeCommand()
	}
	c.Encode.Extension = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Encode.Extension)), ".")
	if c.Encode.Extension == "" {
		c.Encode.Extension = defaultExtension
	}
	c.Encode.GracefulExit = normalizeExitRules(c.Encode.GracefulExit)
	if len(c.Encode.GracefulExit) == 0 {
		c.Encode.GracefulExit = []string{"code:0"}
	}
}

func (c *Config) normalizeSession() {
	c.Session.FilenameLayout = strings.TrimSpace(c.Session.FilenameLayout)
	if c.Session.FilenameLayout == "" {
		c.Session.FilenameLayout = defaultFilenameLayout
	}
	if c.Session.QueueWarnMiB < 0 {
		c.Session.QueueWarnMiB = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Path = strings.TrimSpace(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		c.Metrics.Path = "/" + c.Metrics.Path
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("BUTTONREC_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func trimArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeExitRules(rules []string) []string {
	out := make([]string, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		normalized := strings.ToLower(strings.TrimSpace(rule))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
