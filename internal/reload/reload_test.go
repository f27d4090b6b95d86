package reload

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []string
	fail  map[string]string
}

func (r *recorder) run(_ context.Context, command string) (string, error) {
	r.calls = append(r.calls, command)
	if out, ok := r.fail[command]; ok {
		return out, errors.New("exit status 1")
	}
	return "ok", nil
}

func TestCommandReloader_ValidateThenRestart(t *testing.T) {
	rec := &recorder{}
	c := NewServiceReloader(DefaultValidateCommand, "")
	c.Run = rec.run

	require.NoError(t, c.Reload(context.Background()))
	assert.Equal(t, []string{"nginx -t", "service nginx restart"}, rec.calls)
}

func TestCommandReloader_ValidateFailureSkipsRestart(t *testing.T) {
	rec := &recorder{fail: map[string]string{"nginx -t": "emerg: unexpected \"}\""}}
	c := NewServiceReloader("nginx -t", "systemctl reload nginx")
	c.Run = rec.run

	err := c.Reload(context.Background())
	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "validate", re.Step)
	assert.Equal(t, "service", re.Reloader)
	assert.Contains(t, re.Error(), "emerg")
	assert.Equal(t, []string{"nginx -t"}, rec.calls)
}

func TestCommandReloader_RestartFailure(t *testing.T) {
	rec := &recorder{fail: map[string]string{"service nginx restart": "failed"}}
	c := NewServiceReloader("", "")
	c.Run = rec.run

	err := c.Reload(context.Background())
	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "restart", re.Step)
	assert.Equal(t, []string{"service nginx restart"}, rec.calls)
}

func TestLocalRunner(t *testing.T) {
	out, err := LocalRunner(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = LocalRunner(context.Background(), "exit 3")
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Reload(context.Background()))
	assert.Equal(t, "none", Noop{}.Name())
}

type fakeDocker struct {
	actions  []string
	exitCode int
}

func (f *fakeDocker) ContainerKill(_ context.Context, id, signal string) error {
	f.actions = append(f.actions, "kill:"+signal)
	return nil
}

func (f *fakeDocker) ContainerRestart(_ context.Context, id string, _ container.StopOptions) error {
	f.actions = append(f.actions, "restart")
	return nil
}

func (f *fakeDocker) ContainerExecCreate(_ context.Context, _ string, opts container.ExecOptions) (container.ExecCreateResponse, error) {
	f.actions = append(f.actions, "exec")
	return container.ExecCreateResponse{ID: "e1"}, nil
}

func (f *fakeDocker) ContainerExecAttach(_ context.Context, _ string, _ container.ExecAttachOptions) (types.HijackedResponse, error) {
	var framed bytes.Buffer
	_, _ = stdcopy.NewStdWriter(&framed, stdcopy.Stdout).Write([]byte("syntax is ok\n"))
	conn, peer := net.Pipe()
	peer.Close()
	return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(&framed)}, nil
}

func (f *fakeDocker) ContainerExecInspect(_ context.Context, _ string) (container.ExecInspect, error) {
	return container.ExecInspect{ExitCode: f.exitCode}, nil
}

func TestDockerReloader(t *testing.T) {
	cases := []struct {
		action   string
		exitCode int
		want     []string
		step     string
	}{
		{ActionSignal, 0, []string{"exec", "kill:HUP"}, ""},
		{ActionRestart, 0, []string{"exec", "restart"}, ""},
		{ActionSignal, 1, []string{"exec"}, "validate"},
		{"bogus", 0, []string{"exec"}, "bogus"},
	}
	for _, tc := range cases {
		api := &fakeDocker{exitCode: tc.exitCode}
		r := NewDockerReloader(api, "nginx", tc.action, "nginx -t")
		err := r.Reload(context.Background())
		assert.Equal(t, tc.want, api.actions, "action %s", tc.action)
		if tc.step == "" {
			assert.NoError(t, err)
			continue
		}
		var re *Error
		if assert.True(t, errors.As(err, &re)) {
			assert.Equal(t, tc.step, re.Step)
			assert.Equal(t, "docker:nginx", re.Reloader)
		}
	}
}

func TestDockerReloader_DefaultsToSignalWithoutValidation(t *testing.T) {
	api := &fakeDocker{}
	require.NoError(t, NewDockerReloader(api, "web", "", "").Reload(context.Background()))
	assert.Equal(t, []string{"kill:HUP"}, api.actions)
}
