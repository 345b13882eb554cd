// Package docker runs a process spec inside a throwaway container. Killing
// the container terminates every process in it, which gives whole-tree
// termination on any host the daemon supports.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/Paintersrp/runcap/internal/procspec"
	"github.com/Paintersrp/runcap/internal/runtime"
	"github.com/Paintersrp/runcap/internal/runtime/containerutil"
)

// RuntimeName identifies the container runtime.
const RuntimeName = "docker"

const removeTimeout = 10 * time.Second

func init() {
	runtime.Register(RuntimeName, func() runtime.Runtime {
		return New(containerutil.Options{})
	})
}

type runtimeImpl struct {
	opts containerutil.Options

	client     *client.Client
	clientOnce sync.Once
	clientErr  error
}

// New returns a Docker backed runtime that runs every spec in a fresh
// container built from opts.
func New(opts containerutil.Options) runtime.Runtime {
	return &runtimeImpl{opts: opts}
}

func (r *runtimeImpl) getClient() (*client.Client, error) {
	r.clientOnce.Do(func() {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			r.clientErr = err
			return
		}
		r.client = cli
	})
	return r.client, r.clientErr
}

func (r *runtimeImpl) Start(ctx context.Context, spec *procspec.Spec) (runtime.Instance, error) {
	if spec == nil {
		return nil, errors.New("docker runtime requires a spec")
	}
	cspec, err := containerutil.Prepare(spec, r.opts)
	if err != nil {
		return nil, err
	}

	cli, err := r.getClient()
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if err := ensureImage(ctx, cli, cspec.Image, r.opts.Pull); err != nil {
		return nil, err
	}

	containerCfg, hostCfg := buildConfigs(cspec, spec)
	created, err := cli.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return nil, fmt.Errorf("container create: %w", err)
	}

	inst := &dockerInstance{
		cli:         cli,
		containerID: created.ID,
		memoryLimit: cspec.MemoryLimit,
		demuxDone:   make(chan struct{}),
	}

	if !spec.ExitOnly() {
		attach, err := cli.ContainerAttach(ctx, created.ID, types.ContainerAttachOptions{
			Stream: true,
			Stdout: spec.RedirectStdout,
			Stderr: spec.RedirectStderr,
		})
		if err != nil {
			_ = inst.Release()
			return nil, fmt.Errorf("container attach: %w", err)
		}
		inst.hijack = &attach
		inst.startDemux(spec.RedirectStdout, spec.RedirectStderr)
	} else {
		close(inst.demuxDone)
	}

	// Registered before start so a fast exit cannot be missed.
	inst.waitCh, inst.waitErrCh = cli.ContainerWait(context.Background(), created.ID, container.WaitConditionNextExit)

	if err := cli.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		_ = inst.Release()
		return nil, fmt.Errorf("container start: %w", err)
	}
	if info, err := cli.ContainerInspect(ctx, created.ID); err == nil && info.ContainerJSONBase != nil && info.State != nil {
		inst.pid = info.State.Pid
	}
	return inst, nil
}

type dockerInstance struct {
	cli         *client.Client
	containerID string
	memoryLimit string
	pid         int

	hijack    *types.HijackedResponse
	stdout    *io.PipeReader
	stderr    *io.PipeReader
	demuxDone chan struct{}

	waitCh    <-chan container.WaitResponse
	waitErrCh <-chan error
	exitNote  string

	releaseOnce sync.Once
	releaseErr  error
}

func (i *dockerInstance) startDemux(stdout, stderr bool) {
	var outW, errW *io.PipeWriter
	if stdout {
		i.stdout, outW = io.Pipe()
	}
	if stderr {
		i.stderr, errW = io.Pipe()
	}
	go func() {
		defer close(i.demuxDone)
		_, err := stdcopy.StdCopy(writerOrDiscard(outW), writerOrDiscard(errW), i.hijack.Reader)
		for _, w := range []*io.PipeWriter{outW, errW} {
			if w != nil {
				_ = w.CloseWithError(err)
			}
		}
	}()
}

func writerOrDiscard(w *io.PipeWriter) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func (i *dockerInstance) Pid() int {
	return i.pid
}

func (i *dockerInstance) Stdout() io.Reader {
	if i.stdout == nil {
		return nil
	}
	return i.stdout
}

func (i *dockerInstance) Stderr() io.Reader {
	if i.stderr == nil {
		return nil
	}
	return i.stderr
}

func (i *dockerInstance) Wait() (int, error) {
	var status containerutil.WaitStatus
	select {
	case err := <-i.waitErrCh:
		status.Err = err
		if err == nil {
			status.Err = errors.New("container wait ended without a status")
		}
	case resp := <-i.waitCh:
		status.ExitCode = resp.StatusCode
		if resp.Error != nil {
			status.ErrorMessage = resp.Error.Message
		}
	}
	status.MemoryLimit = i.memoryLimit
	if status.Err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
		if info, err := i.cli.ContainerInspect(ctx, i.containerID); err == nil && info.ContainerJSONBase != nil && info.State != nil {
			status.OOMKilled = info.State.OOMKilled
		}
		cancel()
	}
	i.exitNote = containerutil.Describe(status)
	code, err := containerutil.ExitResult(status)
	if err != nil {
		return code, fmt.Errorf("container %s: %w", shortID(i.containerID), err)
	}
	return code, nil
}

// ExitNote describes how the container ended after Wait returned.
func (i *dockerInstance) ExitNote() string {
	return i.exitNote
}

func (i *dockerInstance) Kill() error {
	return i.signal("SIGKILL")
}

func (i *dockerInstance) Terminate() error {
	return i.signal("SIGTERM")
}

func (i *dockerInstance) signal(sig string) error {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	err := i.cli.ContainerKill(ctx, i.containerID, sig)
	if err == nil || client.IsErrNotFound(err) || errdefs.IsConflict(err) {
		return nil
	}
	return fmt.Errorf("container kill %s: %w", shortID(i.containerID), err)
}

func (i *dockerInstance) Release() error {
	i.releaseOnce.Do(func() {
		if i.hijack != nil {
			i.hijack.Close()
		}
		for _, r := range []*io.PipeReader{i.stdout, i.stderr} {
			if r != nil {
				_ = r.Close()
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
		defer cancel()
		err := i.cli.ContainerRemove(ctx, i.containerID, types.ContainerRemoveOptions{Force: true})
		if err != nil && !client.IsErrNotFound(err) {
			i.releaseErr = fmt.Errorf("container remove %s: %w", shortID(i.containerID), err)
		}
	})
	return i.releaseErr
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func ensureImage(ctx context.Context, cli *client.Client, imageName string, policy containerutil.PullPolicy) error {
	if policy != containerutil.PullAlways {
		_, _, err := cli.ImageInspectWithRaw(ctx, imageName)
		if err == nil {
			return nil
		}
		if !client.IsErrNotFound(err) {
			return fmt.Errorf("inspect image: %w", err)
		}
		if policy == containerutil.PullNever {
			return fmt.Errorf("image %s not present and pull policy is never", imageName)
		}
	}
	reader, err := cli.ImagePull(ctx, imageName, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

func buildConfigs(cspec containerutil.ContainerSpec, spec *procspec.Spec) (*container.Config, *container.HostConfig) {
	exposed, bindings := cspec.PortSets()
	config := &container.Config{
		Image:        cspec.Image,
		Env:          cspec.Env,
		Cmd:          strslice.StrSlice(cspec.Cmd),
		WorkingDir:   cspec.Workdir,
		User:         cspec.User,
		AttachStdout: spec.RedirectStdout,
		AttachStderr: spec.RedirectStderr,
		ExposedPorts: exposed,
	}
	host := &container.HostConfig{
		Binds:        cspec.Binds,
		PortBindings: bindings,
		Resources: container.Resources{
			NanoCPUs:   cspec.Resources.NanoCPUs,
			Memory:     cspec.Resources.Memory,
			MemorySwap: cspec.Resources.MemorySwap,
		},
	}
	return config, host
}
