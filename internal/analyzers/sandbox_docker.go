package analyzers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/pitabwire/util"
	"github.com/rs/xid"
)

// DockerRunner executes lint tools inside a disposable container instead
// of the worker host. The scratch directory is bind-mounted read-only and
// the container gets no network; lint tools only ever read the file under
// review.
type DockerRunner struct {
	client        *client.Client
	image         string
	timeout       time.Duration
	memoryLimitMB int64
}

// DockerRunnerConfig tunes the sandbox.
type DockerRunnerConfig struct {
	// Image must have the lint tools installed.
	Image string

	// Timeout bounds one tool invocation. Zero means the default.
	Timeout time.Duration

	// MemoryLimitMB caps container memory. Zero means 256.
	MemoryLimitMB int64
}

// NewDockerRunner creates a container-backed ToolRunner.
func NewDockerRunner(cfg DockerRunnerConfig) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultToolTimeout
	}
	if cfg.MemoryLimitMB == 0 {
		cfg.MemoryLimitMB = 256
	}

	return &DockerRunner{
		client:        cli,
		image:         cfg.Image,
		timeout:       cfg.Timeout,
		memoryLimitMB: cfg.MemoryLimitMB,
	}, nil
}

// Close closes the Docker client.
func (r *DockerRunner) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Run implements ToolRunner.
func (r *DockerRunner) Run(ctx context.Context, dir string, argv []string) (string, string, int, error) {
	if len(argv) == 0 {
		return "", "", 0, errors.New("empty command")
	}
	log := util.Log(ctx)

	config := &container.Config{
		Image:      r.image,
		Cmd:        argv,
		WorkingDir: "/src",
		Tty:        false,
		Labels: map[string]string{
			"codesense.managed": "true",
		},
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:     mount.TypeBind,
				Source:   dir,
				Target:   "/src",
				ReadOnly: true,
			},
		},
		Resources: container.Resources{
			Memory: r.memoryLimitMB * 1024 * 1024,
		},
		NetworkMode: "none",
		AutoRemove:  false,
	}

	containerName := fmt.Sprintf("codesense-lint-%s", xid.New().String())
	resp, err := r.client.ContainerCreate(ctx, config, hostConfig, nil, nil, containerName)
	if err != nil {
		return "", "", -1, fmt.Errorf("container create: %w", err)
	}
	defer r.cleanupContainer(ctx, resp.ID)

	if startErr := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); startErr != nil {
		return "", "", -1, fmt.Errorf("container start: %w", startErr)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	statusCh, errCh := r.client.ContainerWait(timeoutCtx, resp.ID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case waitErr := <-errCh:
		if waitErr != nil {
			log.Warn("container wait error, killing container", "error", waitErr)
			_ = r.client.ContainerKill(ctx, resp.ID, "KILL")
			return "", "", -1, fmt.Errorf("container wait: %w", waitErr)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-timeoutCtx.Done():
		log.Warn("lint container timeout, killing container", "tool", argv[0])
		_ = r.client.ContainerKill(ctx, resp.ID, "KILL")
		return "", "", -1, context.DeadlineExceeded
	}

	stdout, stderr, err := r.containerOutput(ctx, resp.ID)
	if err != nil {
		log.WithError(err).Warn("failed to read container logs")
		return "", "", int(exitCode), nil
	}
	return stdout, stderr, int(exitCode), nil
}

// containerOutput reads the container logs and splits the multiplexed
// stream back into stdout and stderr.
func (r *DockerRunner) containerOutput(ctx context.Context, containerID string) (string, string, error) {
	reader, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     false,
		Tail:       "all",
	})
	if err != nil {
		return "", "", err
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", "", err
	}

	stdout, stderr := demuxLogStream(raw)
	return stdout, stderr, nil
}

// demuxLogStream decodes Docker's multiplexed log framing: an 8-byte
// header per frame whose first byte is the stream (1=stdout, 2=stderr)
// and whose last four bytes are the big-endian frame size.
func demuxLogStream(data []byte) (string, string) {
	var stdout, stderr bytes.Buffer
	for len(data) >= 8 {
		stream := data[0]
		frameSize := int(data[4])<<24 | int(data[5])<<16 | int(data[6])<<8 | int(data[7])

		data = data[8:]
		if frameSize > len(data) {
			frameSize = len(data)
		}

		if stream == 2 {
			stderr.Write(data[:frameSize])
		} else {
			stdout.Write(data[:frameSize])
		}
		data = data[frameSize:]
	}
	if len(data) > 0 {
		stdout.Write(data)
	}
	return stdout.String(), stderr.String()
}

func (r *DockerRunner) cleanupContainer(ctx context.Context, containerID string) {
	log := util.Log(ctx)

	stopTimeout := 5
	_ = r.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &stopTimeout})

	err := r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil {
		log.WithError(err).Warn("failed to remove container", "container_id", containerID)
	}
}
