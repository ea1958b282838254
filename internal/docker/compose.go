package docker

import (
	"context"
	"fmt"
	"os/exec"
)

// ComposeUp brings up the deployment descriptor in dir, detached. The
// call returns once the engine accepted the bring-up; it does not wait
// for containers to reach "running".
func (c *Client) ComposeUp(ctx context.Context, dir string) error {
	return c.compose(ctx, dir, "up", "-d")
}

// ComposeDown tears down the deployment in dir including its volumes.
func (c *Client) ComposeDown(ctx context.Context, dir string) error {
	return c.compose(ctx, dir, "down", "-v")
}

func (c *Client) compose(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", append([]string{"compose"}, args...)...)
	cmd.Dir = dir
	if c.host != "" {
		cmd.Env = append(cmd.Environ(), "DOCKER_HOST="+c.host)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return &EngineError{Op: "compose " + args[0], Err: fmt.Errorf("%w: %s", err, out)}
	}
	return nil
}
