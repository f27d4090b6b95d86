package reload

import (
	"context"

	sshutil "ngxwhitelist/internal/ssh"
)

// NewSSHReloader runs the validate and restart commands on a remote host.
// Each Reload opens its own connection.
func NewSSHReloader(target sshutil.Target, validate, restart string) *CommandReloader {
	if restart == "" {
		restart = DefaultRestartCommand
	}
	return &CommandReloader{
		Label:    "ssh:" + target.Host,
		Validate: validate,
		Restart:  restart,
		Run:      sshRunner(target),
	}
}

func sshRunner(target sshutil.Target) Runner {
	return func(ctx context.Context, command string) (string, error) {
		client, err := sshutil.Dial(target)
		if err != nil {
			return "", err
		}
		defer client.Close()
		return sshutil.RunCommand(ctx, client, command)
	}
}
