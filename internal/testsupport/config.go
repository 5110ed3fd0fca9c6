package testsupport

import (
	"path/filepath"
	"testing"

	"buttonrec/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The API binds an ephemeral loopback port, the GPIO tree points into the temp
// directory, metrics are off and the directories exist.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RecordingsDir = filepath.Join(base, "recordings")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.GPIO.SysfsRoot = filepath.Join(base, "gpio")
	cfgVal.Metrics.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithShellStages replaces the capture tool with a /bin/sh script and the
// encoder with one that copies stdin to the output file. Blocks are 4 bytes
// so short scripts produce several of them.
func WithShellStages(captureScript string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.Command = []string{"sh", "-c", captureScript}
		b.cfg.Capture.BlockSize = 4
		b.cfg.Encode.Command = []string{"sh", "-c", `cat > "$1"`, "sh", "{output}"}
		b.cfg.Encode.Extension = "raw"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.RecordingsDir)
}
