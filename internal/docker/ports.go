package docker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// IsPortInUse reports whether a host port is already bound.
//
// The engine's own port table is checked first: if any running container
// publishes the port, the answer is yes without further work. The table
// can miss ports held by plain host processes, so an inconclusive cheap
// path falls back to the authoritative probe: start a throwaway container
// bound to the port and see whether the engine refuses the bind.
func (c *Client) IsPortInUse(ctx context.Context, port int) (bool, error) {
	api, err := c.ensureClient()
	if err != nil {
		return false, err
	}

	containers, err := api.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		return false, &EngineError{Op: "list", Err: err}
	}
	if portInTable(containers, port) {
		return true, nil
	}

	return c.probePort(ctx, port)
}

func portInTable(containers []types.Container, port int) bool {
	for _, cont := range containers {
		for _, p := range cont.Ports {
			if int(p.PublicPort) == port {
				return true
			}
		}
	}
	return false
}

// probePort starts a short-lived container bound to the port. A refused
// bind means the port is taken. The probe is always cleaned up; a failed
// cleanup is logged and suppressed so it never masks the detection result.
func (c *Client) probePort(ctx context.Context, port int) (bool, error) {
	api, err := c.ensureClient()
	if err != nil {
		return false, err
	}

	probePort, err := nat.NewPort("tcp", strconv.Itoa(port))
	if err != nil {
		return false, fmt.Errorf("invalid probe port: %w", err)
	}

	name := "portprobe_" + uuid.NewString()[:8]
	created, err := api.ContainerCreate(ctx,
		&container.Config{
			Image:        c.probeImage,
			Cmd:          []string{"sleep", "10"},
			ExposedPorts: nat.PortSet{probePort: struct{}{}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				probePort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(port)}},
			},
		},
		nil, nil, name)
	if err != nil {
		return false, &EngineError{Op: "probe create", Err: err}
	}
	defer c.removeProbe(ctx, created.ID)

	if err := api.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		// The engine refused the bind: the port is held by someone
		// outside its port table.
		return true, nil
	}
	return false, nil
}

func (c *Client) removeProbe(ctx context.Context, id string) {
	api, err := c.ensureClient()
	if err != nil {
		log.WithError(err).Warn("port probe cleanup skipped")
		return
	}
	if err := api.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true}); err != nil {
		log.WithError(err).WithField("container", id).Warn("failed to remove port probe container")
	}
}
