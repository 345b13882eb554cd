package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/runcap/internal/config"
	"github.com/Paintersrp/runcap/internal/metrics"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{lookupEnv: os.LookupEnv}

	root := &cobra.Command{
		Use:   "runcap",
		Short: "Run a command, capture its output and supervise its exit",
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return metrics.WriteTextfile(ctx.metricsFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&ctx.configPath, "config", "", "Path to runcap.yaml (default: $"+config.EnvConfigPath+" or ./"+config.DefaultFileName+")")
	flags.StringVar(&ctx.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&ctx.logFormat, "log-format", "auto", "Log format: text, json or auto")
	flags.StringVar(&ctx.metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this path after the command")

	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newShellCmd(ctx, "sh", "Run a command line through the primary shell", false))
	root.AddCommand(newShellCmd(ctx, "cmd", "Run a command line through the alternate shell", true))
	root.AddCommand(newWatchCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint and exits with the status derived from the
// command's error.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	os.Exit(ExitCode(err))
}

// context carries the persistent flag values and lazily loaded state shared
// by every subcommand.
type context struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string

	lookupEnv func(string) (string, bool)

	cfg    *config.File
	logger *slog.Logger
}

// loadConfig resolves the config file and applies RUNCAP_* overrides once.
func (c *context) loadConfig() (*config.File, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Resolve(c.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(c.lookupEnv); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

// getLogger builds the structured logger. The --log-level flag wins over
// RUNCAP_LOG_LEVEL, which wins over the config file.
func (c *context) getLogger(w io.Writer) (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	level := c.logLevel
	if level == "" && c.cfg != nil {
		level = c.cfg.Defaults.LogLevel
	}
	logger, err := newLogger(w, level, c.logFormat, isTerminal(w))
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}

// reportedError wraps an error whose details were already written to the
// user, so Execute only sets the exit status.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }
