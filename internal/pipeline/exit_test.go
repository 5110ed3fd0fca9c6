package pipeline

import (
	"os"
	"os/exec"
	"syscall"
	"testing"
)

func TestParseExitPolicy(t *testing.T) {
	tests := []struct {
		name    string
		rules   []string
		want    string
		wantErr bool
	}{
		{name: "term", rules: []string{"signal:term"}, want: "signal:TERM"},
		{name: "sig prefix", rules: []string{"signal:SIGINT"}, want: "signal:INT"},
		{name: "numeric signal", rules: []string{"signal:15"}, want: "signal:TERM"},
		{name: "mixed", rules: []string{"code:0", "signal:TERM"}, want: "code:0,signal:TERM"},
		{name: "empty", rules: nil, wantErr: true},
		{name: "no kind", rules: []string{"TERM"}, wantErr: true},
		{name: "bad code", rules: []string{"code:300"}, wantErr: true},
		{name: "bad signal", rules: []string{"signal:NOPE"}, wantErr: true},
		{name: "bad kind", rules: []string{"status:0"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := ParseExitPolicy(tt.rules)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got policy %s", policy)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseExitPolicy: %v", err)
			}
			if got := policy.String(); got != tt.want {
				t.Fatalf("String = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitPolicyAccepts(t *testing.T) {
	exit3 := runState(t, "exit 3")
	exit0 := runState(t, "exit 0")
	termed := runState(t, "kill -TERM $$")

	if !SuccessOnly().Accepts(exit0) {
		t.Fatal("SuccessOnly rejected exit 0")
	}
	if SuccessOnly().Accepts(exit3) {
		t.Fatal("SuccessOnly accepted exit 3")
	}
	if SuccessOnly().Accepts(termed) {
		t.Fatal("SuccessOnly accepted SIGTERM")
	}
	if !TerminatedBy(syscall.SIGTERM).Accepts(termed) {
		t.Fatal("TerminatedBy(TERM) rejected SIGTERM")
	}
	if TerminatedBy(syscall.SIGTERM).Accepts(exit0) {
		t.Fatal("TerminatedBy(TERM) accepted exit 0")
	}
	if SuccessOnly().Accepts(nil) {
		t.Fatal("nil state accepted")
	}

	if got := describeExit(termed); got != "signal TERM" {
		t.Fatalf("describeExit = %q", got)
	}
	if got := describeExit(exit3); got != "exit status 3" {
		t.Fatalf("describeExit = %q", got)
	}
}

func runState(t *testing.T, script string) *os.ProcessState {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	_ = cmd.Run()
	if cmd.ProcessState == nil {
		t.Fatalf("sh -c %q did not run", script)
	}
	return cmd.ProcessState
}
