package cli

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/runcap/internal/cliutil"
	"github.com/Paintersrp/runcap/internal/config"
	"github.com/Paintersrp/runcap/internal/engine"
	"github.com/Paintersrp/runcap/internal/procspec"
	"github.com/Paintersrp/runcap/internal/runtime"
	"github.com/Paintersrp/runcap/internal/runtime/docker"
)

// runFlags holds the flags shared by run, sh, cmd and watch.
type runFlags struct {
	timeout   time.Duration
	killGrace time.Duration
	dir       string
	env       []string
	envFile   string
	admin     bool
	runtime   string
	image     string
	encoding  string
	tail      int
	preset    string

	noWait bool
	stream bool
	json   bool
	quiet  bool
	api    string
}

func (f *runFlags) bindSpec(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.DurationVar(&f.timeout, "timeout", 0, "Kill the process tree after this duration (0 disables)")
	flags.DurationVar(&f.killGrace, "kill-grace", 0, "Ask the process tree to terminate and wait this long before killing it")
	flags.StringVar(&f.dir, "dir", "", "Working directory for the command")
	flags.StringArrayVarP(&f.env, "env", "e", nil, "Set an environment variable (KEY=VALUE, repeatable)")
	flags.StringVar(&f.envFile, "env-file", "", "Load environment variables from a dotenv file")
	flags.BoolVar(&f.admin, "admin", false, "Run with elevated privileges")
	flags.StringVar(&f.runtime, "runtime", "", "Runtime backend: "+strings.Join(runtime.Names(), ", "))
	flags.StringVar(&f.image, "image", "", "Container image for the docker runtime")
	flags.StringVar(&f.encoding, "encoding", "", "Decode output with this encoding (e.g. utf-16le, windows-1252)")
	flags.IntVar(&f.tail, "tail", 0, "Lines of output to include in failure messages")
}

func (f *runFlags) bindOutput(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&f.noWait, "no-wait", false, "Return as soon as the process started")
	flags.BoolVar(&f.stream, "stream", false, "Print output while the process runs")
	flags.BoolVar(&f.json, "json", false, "Emit JSON instead of plain text")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "Do not print captured output")
	flags.StringVar(&f.api, "api", "", "Serve run status, cancellation and metrics over HTTP on this address while the command runs")
}

func newRunCmd(ctx *context) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run a command and capture its output",
		Example: `  runcap run -- go test ./...
  runcap run --timeout 30s --env GOFLAGS=-count=1 -- make test
  runcap run --preset build`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			spec, presetTimeout, err := flags.buildSpec(cfg, args, procspec.New)
			if err != nil {
				return err
			}
			return ctx.execute(cmd, flags, cfg, spec, presetTimeout)
		},
	}
	cmd.Flags().SetInterspersed(false)
	flags.bindSpec(cmd)
	flags.bindOutput(cmd)
	cmd.Flags().StringVarP(&flags.preset, "preset", "p", "", "Run a named command preset from the config file")
	return cmd
}

type specBuilder func(command string, opts ...procspec.Option) (*procspec.Spec, error)

// buildSpec turns flags and positional arguments into a process spec. With
// a preset, positional arguments are appended to the preset's own.
func (f *runFlags) buildSpec(cfg *config.File, args []string, build specBuilder) (*procspec.Spec, time.Duration, error) {
	opts, err := f.specOptions(cfg)
	if err != nil {
		return nil, 0, err
	}

	if f.preset != "" {
		preset, err := cfg.Preset(f.preset)
		if err != nil {
			return nil, 0, err
		}
		if len(args) > 0 {
			if preset.Line != "" {
				return nil, 0, fmt.Errorf("preset %q runs a shell line and does not accept extra arguments", f.preset)
			}
			opts = append(opts, procspec.WithArgs(args...))
		}
		spec, err := preset.Spec(opts...)
		if err != nil {
			return nil, 0, err
		}
		return spec, preset.Timeout.Duration, nil
	}

	if len(args) == 0 {
		return nil, 0, errors.New("a command is required")
	}
	spec, err := build(args[0], append([]procspec.Option{procspec.WithArgs(args[1:]...)}, opts...)...)
	if err != nil {
		return nil, 0, err
	}
	return spec, 0, nil
}

func (f *runFlags) specOptions(cfg *config.File) ([]procspec.Option, error) {
	var fileEnv map[string]string
	if f.envFile != "" {
		var err error
		if fileEnv, err = config.LoadEnvFile(f.envFile); err != nil {
			return nil, err
		}
	}
	flagEnv, err := parseEnvFlags(f.env)
	if err != nil {
		return nil, err
	}

	name := f.encoding
	if name == "" {
		name = cfg.Defaults.Encoding
	}
	enc, err := procspec.LookupEncoding(name)
	if err != nil {
		return nil, err
	}

	opts := []procspec.Option{procspec.WithEncoding(enc)}
	if env := config.MergeEnv(fileEnv, flagEnv); len(env) > 0 {
		opts = append(opts, procspec.WithEnv(env))
	}
	if f.dir != "" {
		opts = append(opts, procspec.WithDir(f.dir))
	}
	if f.admin {
		opts = append(opts, procspec.WithAdmin(true))
	}
	return opts, nil
}

func parseEnvFlags(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(values))
	for _, kv := range values {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --env value %q: expected KEY=VALUE", kv)
		}
		env[key] = value
	}
	return env, nil
}

// engineOptions resolves runtime, timeout and tail settings. Flags win over
// the preset, which wins over config defaults.
func (c *context) engineOptions(w io.Writer, f *runFlags, cfg *config.File, presetTimeout time.Duration) ([]engine.Option, error) {
	logger, err := c.getLogger(w)
	if err != nil {
		return nil, err
	}

	name := f.runtime
	if name == "" {
		name = cfg.Defaults.Runtime
	}
	rt, err := runtimeFor(name, f.image, cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Defaults.Timeout.Duration
	if presetTimeout > 0 {
		timeout = presetTimeout
	}
	if f.timeout > 0 {
		timeout = f.timeout
	}
	tail := cfg.Defaults.TailLines
	if f.tail > 0 {
		tail = f.tail
	}
	killGrace := cfg.Defaults.KillGrace.Duration
	if f.killGrace > 0 {
		killGrace = f.killGrace
	}

	return []engine.Option{
		engine.WithRuntime(name, rt),
		engine.WithLogger(logger),
		engine.WithLogOutput(cfg.Defaults.LogOutput),
		engine.WithTimeout(timeout),
		engine.WithTailLines(tail),
		engine.WithKillGrace(killGrace),
		engine.WithDrainGrace(cfg.Defaults.DrainGrace.Duration),
	}, nil
}

// runtimeFor looks the backend up in the registry, configuring the docker
// entry from the config file and the --image flag.
func runtimeFor(name, image string, cfg *config.File) (runtime.Runtime, error) {
	reg := runtime.NewRegistry()
	opts := cfg.DockerOptions()
	if image != "" {
		opts.Image = image
	}
	reg[docker.RuntimeName] = docker.New(opts)
	return reg.Lookup(name)
}

func (c *context) execute(cmd *cobra.Command, f *runFlags, cfg *config.File, spec *procspec.Spec, presetTimeout time.Duration) error {
	engineOpts, err := c.engineOptions(cmd.ErrOrStderr(), f, cfg, presetTimeout)
	if err != nil {
		return err
	}
	runner := engine.NewRunner(engineOpts...)
	out := cmd.OutOrStdout()

	if f.noWait {
		if f.api != "" {
			return errors.New("--api cannot be combined with --no-wait")
		}
		spec = detachedSpec(spec)
		res, err := runner.Run(cmd.Context(), spec, engine.WithWaitForExit(false))
		if err != nil {
			return err
		}
		if f.json {
			return writeJSON(out, newRunSummary(res, nil, false))
		}
		fmt.Fprintf(out, "started %s (pid %d, run %s)\n", res.Command, res.Pid, res.RunID)
		return nil
	}

	runCtx, cancel := stdcontext.WithCancelCause(cmd.Context())
	defer cancel(nil)

	var exec *engine.Execution
	if f.stream {
		exec, err = runner.Stream(runCtx, spec)
	} else {
		exec, err = runner.Start(runCtx, spec)
	}
	if err != nil {
		return err
	}
	if f.api != "" {
		stopAPI, err := c.serveAPI(runCtx, f.api, exec, cancel)
		if err != nil {
			cancel(err)
			_, _ = exec.Wait()
			return err
		}
		defer stopAPI()
	}

	if f.stream {
		enc := json.NewEncoder(out)
		for line := range exec.Lines() {
			switch {
			case f.quiet:
			case f.json:
				cliutil.EncodeLine(enc, cmd.ErrOrStderr(), exec.RunID(), line)
			default:
				cliutil.WriteLine(out, line)
			}
		}
		res, err := exec.Wait()
		if f.json {
			return reportJSON(out, res, err, false)
		}
		return err
	}

	res, err := exec.Wait()
	if f.json {
		return reportJSON(out, res, err, !f.quiet)
	}
	if res != nil && !f.quiet {
		for _, line := range res.Lines {
			fmt.Fprintln(out, line)
		}
	}
	return err
}

// detachedSpec returns a copy of spec with both streams sent to the null
// device. Nobody reads the pipes once this process exits.
func detachedSpec(spec *procspec.Spec) *procspec.Spec {
	dup := spec.Clone()
	dup.RedirectStdout, dup.RedirectStderr = false, false
	return dup
}

type runSummary struct {
	RunID      string   `json:"run_id,omitempty"`
	Command    string   `json:"command,omitempty"`
	Pid        int      `json:"pid,omitempty"`
	State      string   `json:"state"`
	ExitCode   int      `json:"exit_code"`
	DurationMS int64    `json:"duration_ms"`
	Detached   bool     `json:"detached,omitempty"`
	Note       string   `json:"note,omitempty"`
	Lines      []string `json:"lines,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func newRunSummary(res *engine.Result, err error, withLines bool) runSummary {
	s := runSummary{State: engine.StateFailed.String(), ExitCode: -1}
	if res != nil {
		s = runSummary{
			RunID:      res.RunID,
			Command:    res.Command,
			Pid:        res.Pid,
			State:      res.State.String(),
			ExitCode:   res.ExitCode,
			DurationMS: res.Duration.Milliseconds(),
			Detached:   res.Detached,
			Note:       res.Note,
		}
		if withLines {
			s.Lines = res.Lines
		}
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// reportJSON writes the summary and marks err as already reported.
func reportJSON(w io.Writer, res *engine.Result, err error, withLines bool) error {
	if werr := writeJSON(w, newRunSummary(res, err, withLines)); werr != nil {
		return werr
	}
	if err != nil {
		return &reportedError{err: err}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
