package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGPIO(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateEncode(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.RecordingsDir == "" {
		return errors.New("paths.recordings_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateGPIO() error {
	if c.GPIO.ButtonLine < 0 {
		return errors.New("gpio.button_line must be non-negative")
	}
	if c.GPIO.EdgeBuffer <= 0 {
		return errors.New("gpio.edge_buffer must be positive")
	}
	if c.GPIO.DebounceMS < 0 {
		return errors.New("gpio.debounce_ms must be non-negative")
	}
	if c.Indicator.LEDLine >= 0 && c.Indicator.LEDLine == c.GPIO.ButtonLine {
		return errors.New("indicator.led_line must differ from gpio.button_line")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if c.Capture.Channels != 1 && c.Capture.Channels != 2 {
		return fmt.Errorf("capture.channels must be 1 or 2 (got %d)", c.Capture.Channels)
	}
	switch c.Capture.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("capture.bit_depth must be one of 8, 16, 24, 32 (got %d)", c.Capture.BitDepth)
	}
	if c.Capture.BlockSize <= 0 {
		return errors.New("capture.block_size must be positive")
	}
	if err := validateExitRules("capture.graceful_exit", c.Capture.GracefulExit); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEncode() error {
	if c.Encode.Bitrate <= 0 {
		return errors.New("encode.bitrate must be positive")
	}
	hasOutput := false
	for _, arg := range c.Encode.Command {
		if strings.Contains(arg, "{output}") {
			hasOutput = true
			break
		}
	}
	if !hasOutput {
		return errors.New("encode.command must reference {output}")
	}
	return validateExitRules("encode.graceful_exit", c.Encode.GracefulExit)
}

func (c *Config) validateSession() error {
	if c.Session.MaxDurationMinutes <= 0 {
		return errors.New("session.max_duration_minutes must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be non-negative")
	}
	return nil
}

// validateExitRules checks the "code:N" / "signal:NAME" syntax. Signal names are
// resolved later by the pipeline package.
func validateExitRules(field string, rules []string) error {
	for _, rule := range rules {
		kind, value, ok := strings.Cut(rule, ":")
		if !ok || strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s: invalid rule %q (want code:N or signal:NAME)", field, rule)
		}
		switch kind {
		case "code":
			if _, err := strconv.Atoi(value); err != nil {
				return fmt.Errorf("%s: invalid exit code in %q", field, rule)
			}
		case "signal":
		default:
			return fmt.Errorf("%s: unknown rule kind %q", field, kind)
		}
	}
	return nil
}
