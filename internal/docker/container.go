package docker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Action is a power action from the closed set accepted by Power.
type Action int

const (
	ActionStart Action = iota
	ActionStop
	ActionRestart
	ActionKill
)

var actionNames = map[Action]string{
	ActionStart:   "start",
	ActionStop:    "stop",
	ActionRestart: "restart",
	ActionKill:    "kill",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction validates a power action literal at the boundary.
func ParseAction(s string) (Action, error) {
	switch s {
	case "start":
		return ActionStart, nil
	case "stop":
		return ActionStop, nil
	case "restart":
		return ActionRestart, nil
	case "kill":
		return ActionKill, nil
	}
	return 0, ErrInvalidAction
}

// Handle references a server's container on the engine. A handle is
// either resolved or unavailable; unavailable handles make reads degrade
// to empty results and mutations fail.
type Handle struct {
	id       string
	name     string
	resolved bool
}

// Resolved reports whether the handle points at an existing container.
func (h Handle) Resolved() bool { return h.resolved }

// Stats is a point-in-time resource usage sample.
type Stats struct {
	// CPUUsage is a ratio of host CPU time (1.0 = one full core).
	CPUUsage float64 `json:"cpu_usage"`
	// MemoryUsage is the raw byte count from the engine's snapshot.
	MemoryUsage uint64 `json:"memory_usage"`
}

// LogLine is one parsed container log line.
type LogLine struct {
	Timestamp int64  `json:"timestamp"`
	Content   string `json:"content"`
	Source    string `json:"source"`
}

// ExecResult carries the outcome of a command executed in a container.
type ExecResult struct {
	ExitCode int    `json:"code"`
	Output   string `json:"response"`
}

// Resolve looks up a container by name. A missing container is not an
// error: the returned handle is unavailable.
func (c *Client) Resolve(ctx context.Context, name string) (Handle, error) {
	api, err := c.ensureClient()
	if err != nil {
		return Handle{}, err
	}
	inspect, err := api.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return Handle{name: name}, nil
		}
		return Handle{}, &EngineError{Op: "inspect", Err: err}
	}
	return Handle{id: inspect.ID, name: name, resolved: true}, nil
}

// Power performs a power action on a resolved handle.
func (c *Client) Power(ctx context.Context, h Handle, action Action) error {
	if !h.resolved {
		return ErrContainerUnavailable
	}
	api, err := c.ensureClient()
	if err != nil {
		return err
	}

	switch action {
	case ActionStart:
		err = api.ContainerStart(ctx, h.id, types.ContainerStartOptions{})
	case ActionStop:
		err = api.ContainerStop(ctx, h.id, container.StopOptions{})
	case ActionRestart:
		err = api.ContainerRestart(ctx, h.id, container.StopOptions{})
	case ActionKill:
		err = api.ContainerKill(ctx, h.id, "KILL")
	default:
		return ErrInvalidAction
	}
	if err != nil {
		return &EngineError{Op: action.String(), Err: err}
	}
	return nil
}

// Running reports whether the handle's container is in state "running".
// Unavailable handles are simply not running.
func (c *Client) Running(ctx context.Context, h Handle) (bool, error) {
	if !h.resolved {
		return false, nil
	}
	api, err := c.ensureClient()
	if err != nil {
		return false, err
	}
	inspect, err := api.ContainerInspect(ctx, h.id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, &EngineError{Op: "inspect", Err: err}
	}
	return inspect.State != nil && inspect.State.Status == "running", nil
}

// Stats fetches a single non-streaming stats snapshot. A container that
// is absent or not running reports zero usage.
func (c *Client) Stats(ctx context.Context, h Handle) (Stats, error) {
	running, err := c.Running(ctx, h)
	if err != nil {
		return Stats{}, err
	}
	if !running {
		return Stats{}, nil
	}

	api, err := c.ensureClient()
	if err != nil {
		return Stats{}, err
	}
	resp, err := api.ContainerStats(ctx, h.id, false)
	if err != nil {
		return Stats{}, &EngineError{Op: "stats", Err: err}
	}
	defer resp.Body.Close()

	var raw types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Stats{}, &EngineError{Op: "stats", Err: err}
	}

	return Stats{
		CPUUsage:    calculateCPUUsage(&raw),
		MemoryUsage: raw.MemoryStats.Usage,
	}, nil
}

// calculateCPUUsage computes cpu usage from the snapshot's paired
// previous/current sample window, as docker stats does.
func calculateCPUUsage(raw *types.StatsJSON) float64 {
	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage) - float64(raw.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(raw.CPUStats.SystemUsage) - float64(raw.PreCPUStats.SystemUsage)
	if systemDelta <= 0 {
		return 0
	}
	return cpuDelta / systemDelta * float64(raw.CPUStats.OnlineCPUs)
}

// Logs returns the last lines timestamped log lines. Lines without a
// parsable leading timestamp are dropped; that tolerates partial or
// binary noise in the stream. Unavailable handles yield an empty slice.
func (c *Client) Logs(ctx context.Context, h Handle, lines int) ([]LogLine, error) {
	if !h.resolved {
		return []LogLine{}, nil
	}
	api, err := c.ensureClient()
	if err != nil {
		return nil, err
	}

	rc, err := api.ContainerLogs(ctx, h.id, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Tail:       strconv.Itoa(lines),
	})
	if err != nil {
		return nil, &EngineError{Op: "logs", Err: err}
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return nil, &EngineError{Op: "logs", Err: err}
	}

	formatted := []LogLine{}
	for _, line := range strings.Split(buf.String(), "\n") {
		if parsed, ok := parseLogLine(line); ok {
			formatted = append(formatted, parsed)
		}
	}
	return formatted, nil
}

// StreamLogs follows the container's log output, invoking send for every
// parsed line until ctx is cancelled, send errors, or the stream ends.
func (c *Client) StreamLogs(ctx context.Context, h Handle, send func(LogLine) error) error {
	if !h.resolved {
		return ErrContainerUnavailable
	}
	api, err := c.ensureClient()
	if err != nil {
		return err
	}

	rc, err := api.ContainerLogs(ctx, h.id, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Follow:     true,
		Tail:       "50",
	})
	if err != nil {
		return &EngineError{Op: "logs", Err: err}
	}
	defer rc.Close()

	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		parsed, ok := parseLogLine(scanner.Text())
		if !ok {
			continue
		}
		if err := send(parsed); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return &EngineError{Op: "logs", Err: err}
	}
	return nil
}

func parseLogLine(line string) (LogLine, bool) {
	token, rest, _ := strings.Cut(line, " ")
	ts, err := time.Parse(time.RFC3339Nano, token)
	if err != nil {
		return LogLine{}, false
	}
	return LogLine{Timestamp: ts.Unix(), Content: rest, Source: "log"}, true
}

// Exec runs a command inside the container and returns the engine's exit
// code together with the combined output.
func (c *Client) Exec(ctx context.Context, h Handle, command string) (ExecResult, error) {
	if !h.resolved {
		return ExecResult{}, ErrContainerUnavailable
	}
	api, err := c.ensureClient()
	if err != nil {
		return ExecResult{}, err
	}

	exec, err := api.ContainerExecCreate(ctx, h.id, types.ExecConfig{
		Cmd:          []string{"sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, &EngineError{Op: "exec", Err: err}
	}

	attach, err := api.ContainerExecAttach(ctx, exec.ID, types.ExecStartCheck{})
	if err != nil {
		return ExecResult{}, &EngineError{Op: "exec", Err: err}
	}
	defer attach.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, attach.Reader); err != nil {
		return ExecResult{}, &EngineError{Op: "exec", Err: err}
	}

	inspect, err := api.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return ExecResult{}, &EngineError{Op: "exec", Err: err}
	}

	return ExecResult{ExitCode: inspect.ExitCode, Output: buf.String()}, nil
}
