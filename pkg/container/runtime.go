package container

import (
	"context"
	"fmt"
	"syscall"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Runtime is the subset of OCI-runtime-invocation behavior Manager needs:
// create a task from an already-prepared bundle, start/signal/wait/delete
// it, and report its pid. containerdRuntime implements this against a
// real containerd socket; tests substitute a fake so state-machine and
// name-resolution logic can run without a daemon, the way the teacher's
// test/integration suite gates on a live containerd instead.
type Runtime interface {
	Create(ctx context.Context, id, logPath string, spec *specs.Spec) error
	Start(ctx context.Context, id string) (pid uint32, err error)
	Signal(ctx context.Context, id string, sig syscall.Signal) error
	Wait(ctx context.Context, id string) (<-chan uint32, error)
	Delete(ctx context.Context, id string) error
}

const (
	defaultNamespace = "corectl"
	defaultSocket    = "/run/containerd/containerd.sock"
)

// containerdRuntime invokes the OCI runtime via containerd, the way the
// teacher's ContainerdRuntime does, but against a bundle this package's
// StorageDriver integration has already materialized on disk: the spec
// passed to Create carries root.path pointing at that prepared merged/
// directory, so container creation needs no snapshotter.
type containerdRuntime struct {
	client *containerd.Client
}

// NewContainerdRuntime dials containerd at socketPath (defaultSocket if
// empty).
func NewContainerdRuntime(socketPath string) (Runtime, error) {
	if socketPath == "" {
		socketPath = defaultSocket
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}
	return &containerdRuntime{client: client}, nil
}

func (r *containerdRuntime) ns(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, defaultNamespace)
}

func (r *containerdRuntime) Create(ctx context.Context, id, logPath string, spec *specs.Spec) error {
	ctx = r.ns(ctx)
	c, err := r.client.NewContainer(ctx, id, containerd.WithSpec(spec))
	if err != nil {
		return fmt.Errorf("create container %s: %w", id, err)
	}
	ioCreator := cio.NullIO
	if logPath != "" {
		ioCreator = cio.LogFile(logPath)
	}
	task, err := c.NewTask(ctx, ioCreator)
	if err != nil {
		return fmt.Errorf("create task %s: %w", id, err)
	}
	_ = task
	return nil
}

func (r *containerdRuntime) Start(ctx context.Context, id string) (uint32, error) {
	ctx = r.ns(ctx)
	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("load container %s: %w", id, err)
	}
	task, err := c.Task(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("load task %s: %w", id, err)
	}
	if err := task.Start(ctx); err != nil {
		return 0, fmt.Errorf("start task %s: %w", id, err)
	}
	return task.Pid(), nil
}

func (r *containerdRuntime) Signal(ctx context.Context, id string, sig syscall.Signal) error {
	ctx = r.ns(ctx)
	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return fmt.Errorf("load container %s: %w", id, err)
	}
	task, err := c.Task(ctx, nil)
	if err != nil {
		return nil // no task means nothing to signal
	}
	return task.Kill(ctx, sig)
}

func (r *containerdRuntime) Wait(ctx context.Context, id string) (<-chan uint32, error) {
	ctx = r.ns(ctx)
	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load container %s: %w", id, err)
	}
	task, err := c.Task(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	statusC, err := task.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait task %s: %w", id, err)
	}
	out := make(chan uint32, 1)
	go func() {
		defer close(out)
		status := <-statusC
		out <- status.ExitCode()
	}()
	return out, nil
}

func (r *containerdRuntime) Delete(ctx context.Context, id string) error {
	ctx = r.ns(ctx)
	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil
	}
	if task, err := c.Task(ctx, nil); err == nil {
		_, _ = task.Delete(ctx)
	}
	return c.Delete(ctx, containerd.WithSnapshotCleanup)
}
