package pipeline

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExitPolicy decides which process exits count as graceful for a stage.
type ExitPolicy struct {
	codes   map[int]struct{}
	signals map[syscall.Signal]struct{}
}

// ParseExitPolicy parses rules of the form "code:N" and "signal:NAME", where
// NAME is TERM, SIGTERM or a signal number.
func ParseExitPolicy(rules []string) (ExitPolicy, error) {
	policy := ExitPolicy{
		codes:   make(map[int]struct{}),
		signals: make(map[syscall.Signal]struct{}),
	}
	for _, rule := range rules {
		kind, value, ok := strings.Cut(strings.TrimSpace(rule), ":")
		if !ok {
			return ExitPolicy{}, fmt.Errorf("exit rule %q: want code:N or signal:NAME", rule)
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(kind) {
		case "code":
			code, err := strconv.Atoi(value)
			if err != nil || code < 0 || code > 255 {
				return ExitPolicy{}, fmt.Errorf("exit rule %q: invalid exit code", rule)
			}
			policy.codes[code] = struct{}{}
		case "signal":
			sig, err := parseSignal(value)
			if err != nil {
				return ExitPolicy{}, fmt.Errorf("exit rule %q: %w", rule, err)
			}
			policy.signals[sig] = struct{}{}
		default:
			return ExitPolicy{}, fmt.Errorf("exit rule %q: unknown kind %q", rule, kind)
		}
	}
	if len(policy.codes) == 0 && len(policy.signals) == 0 {
		return ExitPolicy{}, fmt.Errorf("exit policy: no rules")
	}
	return policy, nil
}

// SuccessOnly accepts exit status zero.
func SuccessOnly() ExitPolicy {
	return ExitPolicy{codes: map[int]struct{}{0: {}}}
}

// TerminatedBy accepts death by any of the given signals.
func TerminatedBy(sigs ...syscall.Signal) ExitPolicy {
	policy := ExitPolicy{signals: make(map[syscall.Signal]struct{}, len(sigs))}
	for _, sig := range sigs {
		policy.signals[sig] = struct{}{}
	}
	return policy
}

// Accepts reports whether state satisfies the policy.
func (p ExitPolicy) Accepts(state *os.ProcessState) bool {
	if state == nil {
		return false
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		_, ok := p.signals[ws.Signal()]
		return ok
	}
	_, ok := p.codes[state.ExitCode()]
	return ok
}

func (p ExitPolicy) String() string {
	parts := make([]string, 0, len(p.codes)+len(p.signals))
	for code := range p.codes {
		parts = append(parts, "code:"+strconv.Itoa(code))
	}
	for sig := range p.signals {
		name := unix.SignalName(sig)
		if name == "" {
			name = strconv.Itoa(int(sig))
		}
		parts = append(parts, "signal:"+strings.TrimPrefix(name, "SIG"))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func parseSignal(value string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(value); err == nil && n > 0 {
		return syscall.Signal(n), nil
	}
	name := strings.ToUpper(value)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	if sig := unix.SignalNum(name); sig != 0 {
		return sig, nil
	}
	return 0, fmt.Errorf("unknown signal %q", value)
}

// describeExit renders a process state for logs and status output.
func describeExit(state *os.ProcessState) string {
	if state == nil {
		return "not started"
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		name := unix.SignalName(ws.Signal())
		if name == "" {
			name = strconv.Itoa(int(ws.Signal()))
		}
		return "signal " + strings.TrimPrefix(name, "SIG")
	}
	return "exit status " + strconv.Itoa(state.ExitCode())
}
