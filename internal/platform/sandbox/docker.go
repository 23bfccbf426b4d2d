// Package sandbox runs generated Python in a throwaway container.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/pkg/config"
)

var (
	ErrUnavailable = errors.New("sandbox unavailable")
	ErrTimeout     = errors.New("execution timed out")
)

// Runner executes a Python program and returns its combined output. A
// program that fails still yields its output; err is for infrastructure.
type Runner interface {
	RunPython(ctx context.Context, code string) (string, error)
}

// engine is the slice of the docker API the runner needs.
type engine interface {
	ensureImage(ctx context.Context, ref string) error
	create(ctx context.Context, cfg *container.Config, host *container.HostConfig) (string, error)
	start(ctx context.Context, id string) error
	wait(ctx context.Context, id string) (int64, error)
	logs(ctx context.Context, id string) (stdout, stderr string, err error)
	remove(ctx context.Context, id string) error
}

type Docker struct {
	eng     engine
	image   string
	timeout time.Duration
	memory  int64
	log     *zap.SugaredLogger

	mu     sync.Mutex
	pulled map[string]bool
}

type Options struct {
	Image    string
	Timeout  time.Duration
	MemoryMB int64
}

func newDocker(eng engine, opts Options, log *zap.SugaredLogger) *Docker {
	if opts.Image == "" {
		opts.Image = "python:3.12-alpine"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MemoryMB <= 0 {
		opts.MemoryMB = 128
	}
	return &Docker{
		eng:     eng,
		image:   opts.Image,
		timeout: opts.Timeout,
		memory:  opts.MemoryMB << 20,
		log:     log,
		pulled:  map[string]bool{},
	}
}

func (d *Docker) RunPython(ctx context.Context, code string) (string, error) {
	if err := d.pull(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	pids := int64(64)
	id, err := d.eng.create(ctx, &container.Config{
		Image:           d.image,
		Cmd:             []string{"python", "-c", code},
		WorkingDir:      "/tmp",
		User:            "nobody",
		NetworkDisabled: true,
		AttachStdout:    true,
		AttachStderr:    true,
	}, &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,size=16m"},
		Resources: container.Resources{
			Memory:    d.memory,
			NanoCPUs:  500_000_000,
			PidsLimit: &pids,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: create container: %w", ErrUnavailable, err)
	}
	defer func() {
		if err := d.eng.remove(context.WithoutCancel(ctx), id); err != nil {
			d.log.Warnw("failed to remove sandbox container", "container_id", id, "error", err.Error())
		}
	}()

	if err := d.eng.start(ctx, id); err != nil {
		return "", fmt.Errorf("%w: start container: %w", ErrUnavailable, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	exit, err := d.eng.wait(runCtx, id)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Sprintf("Execution timed out after %s", d.timeout), ErrTimeout
		}
		return "", fmt.Errorf("%w: wait: %w", ErrUnavailable, err)
	}

	stdout, stderr, err := d.eng.logs(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%w: read logs: %w", ErrUnavailable, err)
	}
	out := stdout
	if stderr != "" {
		out += stderr
	}
	if exit != 0 {
		d.log.Infow("sandbox program exited non-zero", "exit_code", exit)
	}
	return out, nil
}

func (d *Docker) pull(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pulled[d.image] {
		return nil
	}
	if err := d.eng.ensureImage(ctx, d.image); err != nil {
		return err
	}
	d.pulled[d.image] = true
	return nil
}

// dockerEngine adapts the docker client.
type dockerEngine struct {
	cli *client.Client
}

func (e *dockerEngine) ensureImage(ctx context.Context, ref string) error {
	if _, err := e.cli.ImageInspect(ctx, ref); err == nil {
		return nil
	}
	pullCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	rc, err := e.cli.ImagePull(pullCtx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

func (e *dockerEngine) create(ctx context.Context, cfg *container.Config, host *container.HostConfig) (string, error) {
	resp, err := e.cli.ContainerCreate(ctx, cfg, host, nil, nil, "")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (e *dockerEngine) start(ctx context.Context, id string) error {
	return e.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (e *dockerEngine) wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := e.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 0, err
	case st := <-statusCh:
		return st.StatusCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (e *dockerEngine) logs(ctx context.Context, id string) (string, string, error) {
	rc, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer rc.Close()
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return "", "", err
	}
	return stdout.String(), stderr.String(), nil
}

func (e *dockerEngine) remove(ctx context.Context, id string) error {
	return e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

// NewDocker connects to the daemon named by the DOCKER_* environment. The
// connection is lazy; a missing daemon surfaces on the first run.
func NewDocker(lc fx.Lifecycle, l *zap.SugaredLogger, cfg *config.Config) (Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return cli.Close() },
	})
	return newDocker(&dockerEngine{cli: cli}, Options{
		Image:    cfg.Execution.RunnerImage,
		Timeout:  cfg.Execution.Timeout,
		MemoryMB: cfg.Execution.MemoryMB,
	}, l), nil
}

var Module = fx.Options(
	fx.Provide(NewDocker),
)
