package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"buttonrec/internal/logging"
	"buttonrec/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		tool   string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log, or a capture/encode tool log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.DaemonLogName)
			switch tool {
			case "":
			case "capture", "encode":
				path = filepath.Join(cfg.ToolLogDir(), tool+".log")
			default:
				return fmt.Errorf("unknown tool %q (want capture or encode)", tool)
			}

			out := cmd.OutOrStdout()
			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, logs.DefaultPollInterval, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&tool, "tool", "", "Show the capture or encode stderr log instead")
	return cmd
}
