package model

import (
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerName(t *testing.T) {
	server := &Server{Name: "mt1"}
	assert.Equal(t, "mt1_main_1", server.ContainerName())
}

func TestNewServerID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{5}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewServerID()
		assert.Regexp(t, pattern, id)
		seen[id] = true
	}
	// 100 draws from a 20 bit space should not all collide
	assert.Greater(t, len(seen), 1)
}

func TestNewSFTPPassword(t *testing.T) {
	password := NewSFTPPassword()

	decoded, err := base64.StdEncoding.DecodeString(password)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{12}$`), string(decoded))

	assert.NotEqual(t, password, NewSFTPPassword())
}
