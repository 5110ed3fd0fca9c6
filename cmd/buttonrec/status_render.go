package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var kindStyles = map[statusKind]struct{ tag, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

const labelWidth = 14

// statusPrinter formats the status report, colouring lines only when the
// destination is a terminal.
type statusPrinter struct {
	color bool
}

func newStatusPrinter(w io.Writer) statusPrinter {
	return statusPrinter{color: shouldColorize(w)}
}

func (p statusPrinter) line(label string, kind statusKind, message string) string {
	style := kindStyles[kind]
	text := "[" + style.tag + "]"
	if message != "" {
		text += " " + message
	}
	out := fmt.Sprintf("  %-*s %s", labelWidth, label+":", text)
	return p.paint(style.color, out)
}

func (p statusPrinter) header(title string) []string {
	title = fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	return []string{p.paint(ansiBlue, title), p.paint(ansiBlue, strings.Repeat("-", len(title)))}
}

func (p statusPrinter) paint(color, s string) string {
	if !p.color || color == "" {
		return s
	}
	return color + s + ansiReset
}

// stateKind maps a controller state to the colour it is shown in.
func stateKind(state string) statusKind {
	switch strings.ToUpper(state) {
	case "IDLE":
		return statusOK
	case "RECORDING", "WRITING":
		return statusInfo
	case "ERROR":
		return statusError
	default:
		return statusWarn
	}
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
