package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/runcap/internal/procspec"
)

// newShellCmd runs its arguments, joined by spaces, as one shell line.
func newShellCmd(ctx *context, use, short string, alternate bool) *cobra.Command {
	flags := &runFlags{}
	build := procspec.Shell
	if alternate {
		build = procspec.AltShell
	}
	cmd := &cobra.Command{
		Use:   use + " [flags] <line...>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			line := strings.Join(args, " ")
			spec, _, err := flags.buildSpec(cfg, []string{line}, build)
			if err != nil {
				return err
			}
			return ctx.execute(cmd, flags, cfg, spec, 0)
		},
	}
	cmd.Flags().SetInterspersed(false)
	flags.bindSpec(cmd)
	flags.bindOutput(cmd)
	return cmd
}
