package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	RecordingsDir string `toml:"recordings_dir"`
	StateDir      string `toml:"state_dir"`
	LogDir        string `toml:"log_dir"`
	APIBind       string `toml:"api_bind"`
}

// GPIO describes the button input line.
type GPIO struct {
	SysfsRoot  string `toml:"sysfs_root"`
	ButtonLine int    `toml:"button_line"`
	ActiveLow  bool   `toml:"active_low"`
	EdgeBuffer int    `toml:"edge_buffer"`
	DebounceMS int    `toml:"debounce_ms"`
	Unexport   bool   `toml:"unexport_on_close"`
}

// Capture configures the audio capture tool.
type Capture struct {
	Command      []string `toml:"command"`
	Device       string   `toml:"device"`
	SampleRate   int      `toml:"sample_rate"`
	Channels     int      `toml:"channels"`
	BitDepth     int      `toml:"bit_depth"`
	BlockSize    int      `toml:"block_size"`
	GracefulExit []string `toml:"graceful_exit"`
	StopTimeout  int      `toml:"stop_timeout"`
}

// Encode configures the audio encoder.
type Encode struct {
	Command      []string `toml:"command"`
	Bitrate      int      `toml:"bitrate"`
	Extension    string   `toml:"extension"`
	GracefulExit []string `toml:"graceful_exit"`
}

// Session configures recording session limits.
type Session struct {
	MaxDurationMinutes int    `toml:"max_duration_minutes"`
	FilenameLayout     string `toml:"filename_layout"`
	QueueWarnMiB       int    `toml:"queue_warn_mib"`
}

// Indicator configures the status LED.
type Indicator struct {
	LEDLine   int  `toml:"led_line"`
	ActiveLow bool `toml:"active_low"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	MaxBackups    int    `toml:"max_backups"`
	MaxAgeDays    int    `toml:"max_age_days"`
}

// Metrics controls the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RecordingSaved bool   `toml:"recording_saved"`
	Errors         bool   `toml:"errors"`
}

// Config encapsulates all configuration values for buttonrec.
//
// Configuration sections by subsystem:
//   - Paths: recordings, state, logs and the API bind address
//   - GPIO: button line and edge handling
//   - Capture: capture command and PCM parameters
//   - Encode: encoder command and output format
//   - Session: duration limit and output naming
//   - Indicator: status LED line
//   - Logging: log format, level, rotation and retention
//   - Metrics: Prometheus endpoint
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	GPIO          GPIO          `toml:"gpio"`
	Capture       Capture       `toml:"capture"`
	Encode        Encode        `toml:"encode"`
	Session       Session       `toml:"session"`
	Indicator     Indicator     `toml:"indicator"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(systemConfigPath); err == nil && !info.IsDir() {
		return systemConfigPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RecordingsDir, c.Paths.StateDir, c.Paths.LogDir, c.ToolLogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ToolLogDir is where capture and encode stderr is written.
func (c *Config) ToolLogDir() string {
	return filepath.Join(c.Paths.LogDir, "tool")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "buttonrecd.lock")
}

// PIDPath returns the daemon PID file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "buttonrecd.pid")
}

// MaxDuration returns the recording deadline.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.Session.MaxDurationMinutes) * time.Minute
}

// Debounce returns the button debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.GPIO.DebounceMS) * time.Millisecond
}

// CaptureStopTimeout returns how long a stopped capture process may take to exit
// before it is killed.
func (c *Config) CaptureStopTimeout() time.Duration {
	return time.Duration(c.Capture.StopTimeout) * time.Second
}

// QueueWarnBytes returns the queued byte count that triggers a lag warning.
func (c *Config) QueueWarnBytes() int64 {
	return int64(c.Session.QueueWarnMiB) << 20
}

// CaptureBinary returns the capture executable name.
func (c *Config) CaptureBinary() string {
	if len(c.Capture.Command) == 0 {
		return ""
	}
	return c.Capture.Command[0]
}

// EncodeBinary returns the encoder executable name.
func (c *Config) EncodeBinary() string {
	if len(c.Encode.Command) == 0 {
		return ""
	}
	return c.Encode.Command[0]
}

// CaptureArgs expands placeholders in the capture command.
func (c *Config) CaptureArgs() []string {
	return expandArgs(c.Capture.Command, c.placeholders(""))
}

// EncodeArgs expands placeholders in the encode command for one output file.
func (c *Config) EncodeArgs(output string) []string {
	return expandArgs(c.Encode.Command, c.placeholders(output))
}

// SampleFormat returns the ALSA sample format name for the configured bit depth.
func (c *Config) SampleFormat() string {
	switch c.Capture.BitDepth {
	case 8:
		return "U8"
	case 24:
		return "S24_3LE"
	case 32:
		return "S32_LE"
	default:
		return "S16_LE"
	}
}

func (c *Config) placeholders(output string) map[string]string {
	mode := "m"
	if c.Capture.Channels == 2 {
		mode = "s"
	}
	return map[string]string{
		"{device}":   c.Capture.Device,
		"{format}":   c.SampleFormat(),
		"{rate}":     strconv.Itoa(c.Capture.SampleRate),
		"{rate_khz}": strconv.FormatFloat(float64(c.Capture.SampleRate)/1000, 'f', -1, 64),
		"{channels}": strconv.Itoa(c.Capture.Channels),
		"{bits}":     strconv.Itoa(c.Capture.BitDepth),
		"{mode}":     mode,
		"{bitrate}":  strconv.Itoa(c.Encode.Bitrate),
		"{output}":   output,
	}
}

func expandArgs(args []string, values map[string]string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		for key, value := range values {
			arg = strings.ReplaceAll(arg, key, value)
		}
		out[i] = arg
	}
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
