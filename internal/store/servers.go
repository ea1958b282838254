// Package store persists server records.
package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/niwla23/containerpanel/internal/model"
)

// ErrServerNotFound is returned when no record exists for an id.
var ErrServerNotFound = errors.New("server not found")

// Servers is the record store for the Server aggregate.
type Servers struct {
	db *gorm.DB
}

func NewServers(db *gorm.DB) *Servers {
	return &Servers{db: db}
}

// Get loads a server with its allowed users.
func (s *Servers) Get(serverID string) (*model.Server, error) {
	var server model.Server
	err := s.db.Preload("AllowedUsers").First(&server, "server_id = ?", serverID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, fmt.Errorf("loading server %s: %w", serverID, err)
	}
	return &server, nil
}

// Create persists a new record. Uniqueness of server_id, name, port and
// sftp_port is enforced by the database.
func (s *Servers) Create(server *model.Server) error {
	if err := s.db.Create(server).Error; err != nil {
		return fmt.Errorf("creating server record: %w", err)
	}
	return nil
}

// SetCommandPrefix persists the template-derived command prefix.
func (s *Servers) SetCommandPrefix(serverID, prefix string) error {
	err := s.db.Model(&model.Server{}).
		Where("server_id = ?", serverID).
		Update("command_prefix", prefix).Error
	if err != nil {
		return fmt.Errorf("updating command prefix: %w", err)
	}
	return nil
}

// List returns all servers.
func (s *Servers) List() ([]model.Server, error) {
	var servers []model.Server
	if err := s.db.Preload("AllowedUsers").Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	return servers, nil
}

// ListForUser returns the servers whose allowed list contains the user.
func (s *Servers) ListForUser(userID uint) ([]model.Server, error) {
	var servers []model.Server
	err := s.db.Preload("AllowedUsers").
		Joins("JOIN server_allowed_users ON server_allowed_users.server_server_id = servers.server_id").
		Where("server_allowed_users.user_id = ?", userID).
		Find(&servers).Error
	if err != nil {
		return nil, fmt.Errorf("listing servers for user %d: %w", userID, err)
	}
	return servers, nil
}

// Delete removes a record and its allowed-users associations.
func (s *Servers) Delete(serverID string) error {
	server := model.Server{ServerID: serverID}
	if err := s.db.Model(&server).Association("AllowedUsers").Clear(); err != nil {
		return fmt.Errorf("clearing allowed users: %w", err)
	}
	if err := s.db.Delete(&server).Error; err != nil {
		return fmt.Errorf("deleting server record: %w", err)
	}
	return nil
}
