package gpio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultSysfsRoot is the kernel's legacy GPIO class directory.
const DefaultSysfsRoot = "/sys/class/gpio"

// exportSettle bounds how long we wait for udev to fix permissions on a
// freshly exported line.
const (
	exportSettle   = time.Second
	exportInterval = 50 * time.Millisecond
)

// SysfsLine is an input line configured through the sysfs GPIO interface.
type SysfsLine struct {
	root     string
	number   int
	value    *os.File
	unexport bool
}

// OpenSysfsInput exports the line if needed, sets direction=in and edge=both,
// and opens its value file for polling.
func OpenSysfsInput(root string, number int, unexportOnClose bool) (*SysfsLine, error) {
	if root == "" {
		root = DefaultSysfsRoot
	}
	if err := export(root, number); err != nil {
		return nil, err
	}
	dir := lineDir(root, number)
	if err := writeAttr(filepath.Join(dir, "direction"), "in"); err != nil {
		return nil, err
	}
	if err := writeAttr(filepath.Join(dir, "edge"), "both"); err != nil {
		return nil, err
	}
	value, err := os.Open(filepath.Join(dir, "value"))
	if err != nil {
		return nil, fmt.Errorf("open gpio%d value: %w", number, err)
	}
	return &SysfsLine{root: root, number: number, value: value, unexport: unexportOnClose}, nil
}

// Number returns the GPIO number.
func (l *SysfsLine) Number() int { return l.number }

// Fd returns the value file descriptor for epoll registration.
func (l *SysfsLine) Fd() int { return int(l.value.Fd()) }

// Read re-reads the value file from offset zero.
func (l *SysfsLine) Read() (bool, error) {
	return readLevel(l.value)
}

// Close closes the value file and unexports the line when configured to.
func (l *SysfsLine) Close() error {
	err := l.value.Close()
	if l.unexport {
		err = errors.Join(err, writeAttr(filepath.Join(l.root, "unexport"), strconv.Itoa(l.number)))
	}
	return err
}

// OutputLine drives an output such as the status LED.
type OutputLine struct {
	root      string
	number    int
	value     *os.File
	activeLow bool
}

// OpenSysfsOutput exports the line and configures it as an output driven to
// its inactive level.
func OpenSysfsOutput(root string, number int, activeLow bool) (*OutputLine, error) {
	if root == "" {
		root = DefaultSysfsRoot
	}
	if err := export(root, number); err != nil {
		return nil, err
	}
	dir := lineDir(root, number)
	initial := "low"
	if activeLow {
		initial = "high"
	}
	if err := writeAttr(filepath.Join(dir, "direction"), initial); err != nil {
		return nil, err
	}
	value, err := os.OpenFile(filepath.Join(dir, "value"), os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open gpio%d value: %w", number, err)
	}
	return &OutputLine{root: root, number: number, value: value, activeLow: activeLow}, nil
}

// Set turns the output on or off, honouring active-low wiring.
func (o *OutputLine) Set(on bool) error {
	level := on != o.activeLow
	data := []byte("0")
	if level {
		data = []byte("1")
	}
	if _, err := o.value.WriteAt(data, 0); err != nil {
		return fmt.Errorf("write gpio%d value: %w", o.number, err)
	}
	return nil
}

// Close switches the output off and unexports it.
func (o *OutputLine) Close() error {
	return errors.Join(
		o.Set(false),
		o.value.Close(),
		writeAttr(filepath.Join(o.root, "unexport"), strconv.Itoa(o.number)),
	)
}

func lineDir(root string, number int) string {
	return filepath.Join(root, "gpio"+strconv.Itoa(number))
}

func export(root string, number int) error {
	dir := lineDir(root, number)
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat gpio%d: %w", number, err)
	}
	if err := writeAttr(filepath.Join(root, "export"), strconv.Itoa(number)); err != nil {
		return err
	}

	// udev may still be adjusting ownership of the new attribute files.
	deadline := time.Now().Add(exportSettle)
	direction := filepath.Join(dir, "direction")
	for {
		f, err := os.OpenFile(direction, os.O_WRONLY, 0)
		if err == nil {
			return f.Close()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("gpio%d not ready after export: %w", number, err)
		}
		time.Sleep(exportInterval)
	}
}

func writeAttr(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	_, werr := f.WriteString(value)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("write %s: %w", path, werr)
	}
	if cerr != nil {
		return fmt.Errorf("close %s: %w", path, cerr)
	}
	return nil
}

func readLevel(f *os.File) (bool, error) {
	var buf [4]byte
	n, err := f.ReadAt(buf[:], 0)
	if n == 0 {
		if err == nil {
			err = errors.New("empty value")
		}
		return false, fmt.Errorf("read %s: %w", f.Name(), err)
	}
	switch strings.TrimSpace(string(buf[:n])) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("read %s: unexpected value %q", f.Name(), buf[:n])
	}
}
