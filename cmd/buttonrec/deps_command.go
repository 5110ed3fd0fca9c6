package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"buttonrec/internal/api"
	"buttonrec/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var procRoot string
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check the capture and encode tools and the sound card",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			binaries := deps.CheckBinaries(deps.AudioRequirements(cfg))
			statuses := append(binaries, deps.SoundCardStatus(procRoot))

			stdout := cmd.OutOrStdout()
			fmt.Fprintln(stdout, dependencyTable(api.FromDependencies(statuses)))

			// A missing card is reported but not fatal: USB microphones are often
			// plugged in after setup.
			missing := deps.Missing(binaries)
			if len(missing) == 0 {
				fmt.Fprintln(stdout, "All required tools available")
				return nil
			}
			names := make([]string, len(missing))
			for i, m := range missing {
				names[i] = m.Name
			}
			return fmt.Errorf("missing dependencies: %s", strings.Join(names, ", "))
		},
	}
	cmd.Flags().StringVar(&procRoot, "proc-root", deps.DefaultProcRoot, "Directory holding the ALSA cards list")
	_ = cmd.Flags().MarkHidden("proc-root")
	return cmd
}
