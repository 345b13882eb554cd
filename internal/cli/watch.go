package cli

import (
	stdcontext "context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/runcap/internal/engine"
	"github.com/Paintersrp/runcap/internal/procspec"
	"github.com/Paintersrp/runcap/internal/tui"
)

func newWatchCmd(ctx *context) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "watch [flags] -- <command> [args...]",
		Short: "Follow a command's output in an interactive viewer",
		Long:  "Follow a command's output in an interactive viewer. Press q or Ctrl-C to kill the process tree, q again to leave, / to filter lines and j to toggle JSON records.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !supportsInteractiveOutput(cmd.OutOrStdout()) {
				return errors.New("watch requires an interactive terminal")
			}
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			spec, presetTimeout, err := flags.buildSpec(cfg, args, procspec.New)
			if err != nil {
				return err
			}
			engineOpts, err := ctx.engineOptions(cmd.ErrOrStderr(), flags, cfg, presetTimeout)
			if err != nil {
				return err
			}
			// Log lines would tear the terminal UI.
			engineOpts = append(engineOpts, engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

			runCtx, cancel := stdcontext.WithCancel(cmd.Context())
			defer cancel()

			exec, err := engine.NewRunner(engineOpts...).Stream(runCtx, spec)
			if err != nil {
				return err
			}
			return tui.New(spec.String()).Follow(runCtx, exec, cancel)
		},
	}
	cmd.Flags().SetInterspersed(false)
	flags.bindSpec(cmd)
	cmd.Flags().StringVarP(&flags.preset, "preset", "p", "", "Run a named command preset from the config file")
	return cmd
}
