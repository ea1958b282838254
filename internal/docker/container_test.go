package docker

import (
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	valid := map[string]Action{
		"start":   ActionStart,
		"stop":    ActionStop,
		"restart": ActionRestart,
		"kill":    ActionKill,
	}
	for literal, want := range valid {
		action, err := ParseAction(literal)
		require.NoError(t, err)
		assert.Equal(t, want, action)
		assert.Equal(t, literal, action.String())
	}

	for _, literal := range []string{"", "pause", "START", "remove", "destroy"} {
		_, err := ParseAction(literal)
		assert.ErrorIs(t, err, ErrInvalidAction, "literal %q", literal)
	}
}

func TestParseLogLine(t *testing.T) {
	line, ok := parseLogLine("2021-09-01T11:57:00Z hello world")
	require.True(t, ok)
	assert.Equal(t, time.Date(2021, 9, 1, 11, 57, 0, 0, time.UTC).Unix(), line.Timestamp)
	assert.Equal(t, "hello world", line.Content)
	assert.Equal(t, "log", line.Source)
}

func TestParseLogLineNanosecondTimestamps(t *testing.T) {
	// Engine log timestamps carry nanoseconds.
	line, ok := parseLogLine("2021-09-01T11:57:00.123456789Z joined the game")
	require.True(t, ok)
	assert.Equal(t, time.Date(2021, 9, 1, 11, 57, 0, 0, time.UTC).Unix(), line.Timestamp)
	assert.Equal(t, "joined the game", line.Content)
}

func TestParseLogLineDropsUnparsableLines(t *testing.T) {
	for _, raw := range []string{
		"",
		"no timestamp here",
		"\x00\x01binary noise",
		"12:34:56 partial timestamp",
	} {
		_, ok := parseLogLine(raw)
		assert.False(t, ok, "line %q should be dropped", raw)
	}
}

func TestCalculateCPUUsage(t *testing.T) {
	raw := &types.StatsJSON{}
	raw.CPUStats.CPUUsage.TotalUsage = 1200
	raw.PreCPUStats.CPUUsage.TotalUsage = 1000
	raw.CPUStats.SystemUsage = 11000
	raw.PreCPUStats.SystemUsage = 10000
	raw.CPUStats.OnlineCPUs = 4

	// (200 / 1000) * 4
	assert.InDelta(t, 0.8, calculateCPUUsage(raw), 1e-9)
}

func TestCalculateCPUUsageZeroSystemDelta(t *testing.T) {
	raw := &types.StatsJSON{}
	raw.CPUStats.CPUUsage.TotalUsage = 1200
	raw.PreCPUStats.CPUUsage.TotalUsage = 1000
	raw.CPUStats.SystemUsage = 10000
	raw.PreCPUStats.SystemUsage = 10000
	raw.CPUStats.OnlineCPUs = 4

	assert.Zero(t, calculateCPUUsage(raw))
}
