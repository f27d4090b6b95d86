package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
)

// NewLocalClient creates a Docker client connected to the local daemon,
// using environment variables and automatic API version negotiation.
func NewLocalClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// Pinger is the subset of the Docker client used for health checks.
type Pinger interface {
	Ping(ctx context.Context) (types.Ping, error)
}

// PingLocal verifies the Docker daemon is reachable.
func PingLocal(ctx context.Context, cli Pinger) error {
	if _, err := cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}
