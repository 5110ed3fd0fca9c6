package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
)

// Command describes one external tool invocation.
type Command struct {
	Path   string
	Args   []string
	Stderr io.Writer
}

// NewCommand builds a Command from argv, where argv[0] is the executable.
func NewCommand(argv []string, stderr io.Writer) (Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return Command{}, errors.New("empty command")
	}
	return Command{Path: argv[0], Args: append([]string(nil), argv[1:]...), Stderr: stderr}, nil
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// build returns an exec.Cmd in its own process group so stop signals reach
// shell wrappers and their children alike.
func (c Command) build() *exec.Cmd {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if c.Stderr != nil {
		cmd.Stderr = c.Stderr
	}
	return cmd
}

func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("signal process group %d: %w", pid, err)
	}
	return nil
}
