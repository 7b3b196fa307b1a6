package health

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

const stopTimeoutSecs = 10

// containerState is the part of an inspect response the probe reads.
type containerState struct {
	Running  bool
	Pid      int
	ExitCode int
}

// DockerManager supervises a service that runs as a Docker container.
type DockerManager struct {
	Container string
	inspect   func(ctx context.Context, name string) (containerState, error)
	restart   func(ctx context.Context, name string) error
}

// NewDockerManager creates a Docker-backed service manager from the
// environment's Docker settings.
func NewDockerManager(containerName string) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	slog.Info("Docker client initialized", "container", containerName)

	return &DockerManager{
		Container: containerName,
		inspect: func(ctx context.Context, name string) (containerState, error) {
			inspect, err := cli.ContainerInspect(ctx, name)
			if err != nil {
				return containerState{}, err
			}
			if inspect.State == nil {
				return containerState{}, nil
			}
			return containerState{
				Running:  inspect.State.Running,
				Pid:      inspect.State.Pid,
				ExitCode: inspect.State.ExitCode,
			}, nil
		},
		restart: func(ctx context.Context, name string) error {
			timeout := stopTimeoutSecs
			return cli.ContainerRestart(ctx, name, container.StopOptions{Timeout: &timeout})
		},
	}, nil
}

func (m *DockerManager) Kind() string { return "docker" }

// Status inspects the container. A missing container is reported as not loaded.
func (m *DockerManager) Status(ctx context.Context) (ServiceStatus, error) {
	state, err := m.inspect(ctx, m.Container)
	if err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Container not found", "container", m.Container)
			return ServiceStatus{}, nil
		}
		return ServiceStatus{}, fmt.Errorf("inspect container %s: %w", m.Container, err)
	}
	status := ServiceStatus{Loaded: true, ExitStatus: strconv.Itoa(state.ExitCode)}
	if state.Running {
		status.Running = true
		status.PID = strconv.Itoa(state.Pid)
	}
	return status, nil
}

func (m *DockerManager) Restart(ctx context.Context) error {
	slog.Info("Restarting container", "container", m.Container)
	if err := m.restart(ctx, m.Container); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("container %s does not exist", m.Container)
		}
		return fmt.Errorf("restart container %s: %w", m.Container, err)
	}
	return nil
}
