package docker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// ContainerAPI is the subset of *client.Client needed to manage the nginx
// container.
type ContainerAPI interface {
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
}

// SignalContainer sends signal (e.g. "HUP") to the container's main process.
func SignalContainer(ctx context.Context, cli ContainerAPI, containerID, signal string) error {
	if err := cli.ContainerKill(ctx, containerID, signal); err != nil {
		return fmt.Errorf("signal %s to container %s: %w", signal, containerID, err)
	}
	return nil
}

// RestartContainer restarts a container by its ID or name.
func RestartContainer(ctx context.Context, cli ContainerAPI, containerID string) error {
	if err := cli.ContainerRestart(ctx, containerID, container.StopOptions{}); err != nil {
		return fmt.Errorf("restart container %s: %w", containerID, err)
	}
	return nil
}

// Exec runs cmd inside the container and returns its combined output and
// exit code.
func Exec(ctx context.Context, cli ContainerAPI, containerID string, cmd []string) (string, int, error) {
	created, err := cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", -1, fmt.Errorf("create exec in %s: %w", containerID, err)
	}

	resp, err := cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", -1, fmt.Errorf("attach exec in %s: %w", containerID, err)
	}
	defer resp.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, resp.Reader); err != nil {
		return out.String(), -1, fmt.Errorf("read exec output: %w", err)
	}

	inspect, err := cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return out.String(), -1, fmt.Errorf("inspect exec in %s: %w", containerID, err)
	}
	return strings.TrimSpace(out.String()), inspect.ExitCode, nil
}
