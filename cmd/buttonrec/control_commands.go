package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"buttonrec/internal/api"
)

func newControlCommands(ctx *commandContext) []*cobra.Command {
	var jsonOutput bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorder state, current file and dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return wrapClientError(err, ctx.apiAddress())
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}

			stdout := cmd.OutOrStdout()
			p := newStatusPrinter(stdout)

			for _, line := range p.header("Recorder Status") {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range sessionLines(resp, p) {
				fmt.Fprintln(stdout, line)
			}
			if len(resp.Dependencies) == 0 {
				return nil
			}
			fmt.Fprintln(stdout)
			for _, line := range p.header("Dependencies") {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, dependencyTable(resp.Dependencies))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw status JSON")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a recording (valid only while idle)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Start(cmd.Context())
			if err != nil {
				return wrapClientError(err, ctx.apiAddress())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recording started (state %s)\n", resp.State)
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the current recording; the file is finished in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Stop(cmd.Context())
			if err != nil {
				return wrapClientError(err, ctx.apiAddress())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recording stopped (state %s)\n", resp.State)
			return nil
		},
	}

	return []*cobra.Command{statusCmd, startCmd, stopCmd}
}

func sessionLines(resp *api.StatusResponse, p statusPrinter) []string {
	lines := []string{p.line("State", stateKind(resp.State), resp.State)}
	if resp.Filename != "" {
		lines = append(lines, p.line("File", statusInfo, resp.Filename))
	}
	if resp.ElapsedSeconds != nil {
		lines = append(lines, p.line("Elapsed", statusInfo, resp.TimeString))
	}
	if resp.Deadline != "" && resp.State == "RECORDING" {
		lines = append(lines, p.line("Stops at", statusInfo, resp.Deadline))
	}
	if resp.QueuedBytes > 0 {
		lines = append(lines, p.line("Queued", statusInfo, fmt.Sprintf("%d bytes", resp.QueuedBytes)))
	}
	if resp.LastError != "" {
		lines = append(lines, p.line("Last error", statusError, resp.LastError))
	}
	if dev := resp.AudioDevice; dev != nil {
		kind := statusOK
		if dev.Action == "remove" {
			kind = statusWarn
		}
		lines = append(lines, p.line("Audio device", kind, fmt.Sprintf("%s %s at %s", dev.Card, dev.Action, dev.At)))
	}
	return lines
}
