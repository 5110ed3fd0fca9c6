package config

const (
	defaultConfigPath         = "~/.config/buttonrec/config.toml"
	systemConfigPath          = "/etc/buttonrec/config.toml"
	defaultRecordingsDir      = "~/recordings"
	defaultStateDir           = "~/.local/state/buttonrec"
	defaultLogDir             = "~/.local/share/buttonrec/logs"
	defaultAPIBind            = "0.0.0.0:8080"
	defaultSysfsRoot          = "/sys/class/gpio"
	defaultButtonLine         = 17
	defaultEdgeBuffer         = 100
	defaultDebounceMS         = 1000
	defaultCaptureDevice      = "default"
	defaultSampleRate         = 48000
	defaultChannels           = 2
	defaultBitDepth           = 16
	defaultBlockSize          = 4096
	defaultCaptureStopTimeout = 10
	defaultBitrate            = 128
	defaultExtension          = "mp3"
	defaultMaxDurationMinutes = 180
	defaultFilenameLayout     = "2006-01-02--15-04-05"
	defaultQueueWarnMiB       = 150
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	defaultLogMaxSizeMB       = 10
	defaultLogMaxBackups      = 3
	defaultLogMaxAgeDays      = 7
	defaultMetricsPath        = "/metrics"
	defaultNotifyTimeout      = 10
)

func defaultCaptureCommand() []string {
	return []string{
		"arecord", "--quiet",
		"--device={device}",
		"--format={format}",
		"--rate={rate}",
		"--channels={channels}",
		"--file-type=raw",
	}
}

func defaultEncodeCommand() []string {
	return []string{
		"lame", "--quiet", "-r",
		"-s", "{rate_khz}",
		"--bitwidth", "{bits}",
		"-m", "{mode}",
		"--abr", "{bitrate}",
		"-", "{output}",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RecordingsDir: defaultRecordingsDir,
			StateDir:      defaultStateDir,
			LogDir:        defaultLogDir,
			APIBind:       defaultAPIBind,
		},
		GPIO: GPIO{
			SysfsRoot:  defaultSysfsRoot,
			ButtonLine: defaultButtonLine,
			ActiveLow:  true,
			EdgeBuffer: defaultEdgeBuffer,
			DebounceMS: defaultDebounceMS,
			Unexport:   true,
		},
		Capture: Capture{
			Command:      defaultCaptureCommand(),
			Device:       defaultCaptureDevice,
			SampleRate:   defaultSampleRate,
			Channels:     defaultChannels,
			BitDepth:     defaultBitDepth,
			BlockSize:    defaultBlockSize,
			GracefulExit: []string{"signal:TERM"},
			StopTimeout:  defaultCaptureStopTimeout,
		},
		Encode: Encode{
			Command:      defaultEncodeCommand(),
			Bitrate:      defaultBitrate,
			Extension:    defaultExtension,
			GracefulExit: []string{"code:0"},
		},
		Session: Session{
			MaxDurationMinutes: defaultMaxDurationMinutes,
			FilenameLayout:     defaultFilenameLayout,
			QueueWarnMiB:       defaultQueueWarnMiB,
		},
		Indicator: Indicator{
			LEDLine: -1,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
			MaxSizeMB:     defaultLogMaxSizeMB,
			MaxBackups:    defaultLogMaxBackups,
			MaxAgeDays:    defaultLogMaxAgeDays,
		},
		Metrics: Metrics{
			Enabled: true,
			Path:    defaultMetricsPath,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RecordingSaved: true,
			Errors:         true,
		},
	}
}
