package model

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"time"
)

// Default resource ceilings assigned at creation. They are informational
// and consumed by templates, not enforced at runtime.
const (
	DefaultMaxCPUUsage    = 2
	DefaultMaxMemoryUsage = 4000
)

// Server represents one provisioned game-server deployment. It is the
// aggregate root: all container operations are derived from its fields.
type Server struct {
	ServerID    string `gorm:"primaryKey;size:5" json:"server_id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`
	Template    string `gorm:"not null" json:"template"`

	// CommandPrefix is prepended to every command executed inside the main
	// container. It comes from the rendered template, never from user input.
	CommandPrefix string `json:"command_prefix"`

	Port         int    `gorm:"uniqueIndex" json:"port"`
	SFTPPort     int    `gorm:"uniqueIndex" json:"sftp_port"`
	SFTPPassword string `json:"-"`

	MaxCPUUsage    float64 `json:"max_cpu_usage"`
	MaxMemoryUsage float64 `json:"max_memory_usage"`

	// Host is the engine endpoint this server's containers run on.
	Host string `json:"host"`

	AllowedUsers []User `gorm:"many2many:server_allowed_users" json:"allowed_users"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContainerName returns the name of the main container backing this
// server, as created by compose: {name}_main_1.
func (s *Server) ContainerName() string {
	return s.Name + "_main_1"
}

// NewServerID returns a random 5 character hex identifier.
func NewServerID() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return hex.EncodeToString(b)[:5]
}

// NewSFTPPassword generates an opaque sftp password: a random hex token,
// base64 encoded.
func NewSFTPPassword() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(b)))
}
