package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"time"

	"github.com/Paintersrp/runcap/internal/api"
	httpapi "github.com/Paintersrp/runcap/internal/api/http"
	"github.com/Paintersrp/runcap/internal/engine"
)

// errCancelRequested is the cancellation cause recorded when a client asks
// the control API to stop the run.
var errCancelRequested = errors.New("cancel requested via control API")

// runController serves one execution to the control API.
type runController struct {
	exec   *engine.Execution
	cancel stdcontext.CancelCauseFunc
}

func (c *runController) Status(_ stdcontext.Context, tail int) (*api.RunStatus, error) {
	p := c.exec.Progress(tail)
	return &api.RunStatus{
		RunID:       p.RunID,
		Command:     p.Command,
		Pid:         p.Pid,
		State:       p.State.String(),
		Lines:       p.Lines,
		ElapsedMS:   p.Elapsed.Milliseconds(),
		Tail:        p.Tail,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (c *runController) Cancel(stdcontext.Context) (*api.CancelResult, error) {
	if c.exec.State().Terminal() {
		return nil, fmt.Errorf("cancel %s: %w", c.exec.RunID(), api.ErrRunFinished)
	}
	c.cancel(errCancelRequested)
	return &api.CancelResult{RunID: c.exec.RunID(), RequestedAt: time.Now().UTC()}, nil
}

var _ api.Controller = (*runController)(nil)

// serveAPI starts the control server for exec and returns a function that
// shuts it down and waits for it.
func (c *context) serveAPI(ctx stdcontext.Context, addr string, exec *engine.Execution, cancel stdcontext.CancelCauseFunc) (func(), error) {
	server, err := httpapi.NewServer(httpapi.Config{
		Addr:       addr,
		Controller: &runController{exec: exec, cancel: cancel},
	})
	if err != nil {
		return nil, err
	}
	if err := server.Listen(); err != nil {
		return nil, err
	}

	logger := c.logger
	if logger != nil {
		logger.Info("control API listening", "addr", server.Addr(), "run_id", exec.RunID())
	}

	// Only the returned stop func shuts the server down.
	serveCtx, stop := stdcontext.WithCancel(stdcontext.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Run(serveCtx); err != nil && logger != nil {
			logger.Warn("control API stopped", "error", err)
		}
	}()
	return func() {
		stop()
		<-done
	}, nil
}
