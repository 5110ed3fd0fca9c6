package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	apiAddress string
}

// setupCLITestEnv writes a config pointing at a temp tree and, when handler is
// non-nil, serves it as the daemon API.
func setupCLITestEnv(t *testing.T, handler http.Handler) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	env := &cliTestEnv{baseDir: base, apiAddress: "127.0.0.1:1"}
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		env.apiAddress = strings.TrimPrefix(srv.URL, "http://")
	}

	env.configPath = filepath.Join(base, "config.toml")
	writeTestConfig(t, env.configPath, base, env.apiAddress)
	return env
}

func writeTestConfig(t *testing.T, path, base, apiBind string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
recordings_dir = %q
state_dir = %q
log_dir = %q
api_bind = %q

[capture]
command = ["sh", "-c", "cat /dev/zero"]

[encode]
command = ["sh", "-c", "cat > \"$1\"", "sh", "{output}"]
`,
		filepath.Join(base, "recordings"),
		filepath.Join(base, "state"),
		filepath.Join(base, "logs"),
		apiBind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
