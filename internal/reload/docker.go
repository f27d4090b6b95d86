package reload

import (
	"context"
	"fmt"
	"strings"

	"ngxwhitelist/internal/docker"
)

const (
	ActionSignal  = "signal"
	ActionRestart = "restart"
)

// DockerReloader reloads nginx running in a container, either by sending
// SIGHUP to the master process or by restarting the container.
type DockerReloader struct {
	Client    docker.ContainerAPI
	Container string
	Action    string
	// Validate is run inside the container first. Empty skips it.
	Validate []string
}

func NewDockerReloader(cli docker.ContainerAPI, container, action, validate string) *DockerReloader {
	if action == "" {
		action = ActionSignal
	}
	return &DockerReloader{Client: cli, Container: container, Action: action, Validate: strings.Fields(validate)}
}

func (d *DockerReloader) Name() string { return "docker:" + d.Container }

func (d *DockerReloader) Reload(ctx context.Context) error {
	if len(d.Validate) > 0 {
		out, code, err := docker.Exec(ctx, d.Client, d.Container, d.Validate)
		if err != nil {
			return &Error{Reloader: d.Name(), Step: "validate", Output: out, Err: err}
		}
		if code != 0 {
			return &Error{Reloader: d.Name(), Step: "validate", Output: out, Err: fmt.Errorf("exit status %d", code)}
		}
	}

	var err error
	switch d.Action {
	case ActionSignal:
		err = docker.SignalContainer(ctx, d.Client, d.Container, "HUP")
	case ActionRestart:
		err = docker.RestartContainer(ctx, d.Client, d.Container)
	default:
		err = fmt.Errorf("unknown docker reload action %q", d.Action)
	}
	if err != nil {
		return &Error{Reloader: d.Name(), Step: d.Action, Err: err}
	}
	return nil
}
