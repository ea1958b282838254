// Package docker wraps the engine control API: container resolution,
// power actions, stats, logs, exec, port probing and compose bring-up.
package docker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/docker/docker/client"
)

// ErrInvalidAction is returned for power actions outside the closed set.
var ErrInvalidAction = errors.New("action must be 'start', 'stop', 'restart' or 'kill'")

// ErrContainerUnavailable is returned when a mutating operation is asked
// to act on a handle whose container does not exist. Read operations
// degrade to empty results instead.
var ErrContainerUnavailable = errors.New("container for this server is not available")

// EngineError wraps a failed engine control API call.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string { return fmt.Sprintf("engine %s: %v", e.Op, e.Err) }
func (e *EngineError) Unwrap() error { return e.Err }

// Client is the engine adapter. The underlying API client is established
// lazily on first use and shared by all callers; acquisition is guarded so
// concurrent first use opens at most one connection, and a failed attempt
// may be retried on the next call.
type Client struct {
	host       string
	probeImage string

	mu  sync.Mutex
	api *client.Client
}

// New returns an unconnected engine adapter. host may be empty, in which
// case the client's environment defaults apply.
func New(host, probeImage string) *Client {
	return &Client{host: host, probeImage: probeImage}
}

func (c *Client) ensureClient() (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api != nil {
		return c.api, nil
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if c.host != "" {
		opts = append(opts, client.WithHost(c.host))
	}
	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, &EngineError{Op: "connect", Err: err}
	}
	c.api = api
	return c.api, nil
}

// Close releases the underlying API client. The next call re-acquires.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil {
		return nil
	}
	err := c.api.Close()
	c.api = nil
	return err
}
