package docker

import (
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
)

func TestPortInTable(t *testing.T) {
	containers := []types.Container{
		{Ports: []types.Port{{PrivatePort: 30000, PublicPort: 34368, Type: "udp"}}},
		{Ports: []types.Port{{PrivatePort: 22, PublicPort: 34369, Type: "tcp"}}},
		{Ports: nil},
	}

	assert.True(t, portInTable(containers, 34368))
	assert.True(t, portInTable(containers, 34369))
	assert.False(t, portInTable(containers, 34370))

	// private-side ports do not count as bound on the host
	assert.False(t, portInTable(containers, 30000))

	assert.False(t, portInTable(nil, 34368))
}
