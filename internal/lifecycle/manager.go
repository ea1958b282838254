// Package lifecycle orchestrates server creation and operation: it
// validates input, renders templates, allocates ports, persists records
// and drives the container engine.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	log "github.com/sirupsen/logrus"

	"github.com/niwla23/containerpanel/internal/auth"
	"github.com/niwla23/containerpanel/internal/config"
	"github.com/niwla23/containerpanel/internal/docker"
	"github.com/niwla23/containerpanel/internal/model"
	"github.com/niwla23/containerpanel/internal/store"
	"github.com/niwla23/containerpanel/internal/template"
)

const (
	portMin = 1000
	portMax = 60000
)

var namePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// RecordStore persists server records.
type RecordStore interface {
	Get(serverID string) (*model.Server, error)
	Create(server *model.Server) error
	SetCommandPrefix(serverID, prefix string) error
	Delete(serverID string) error
}

// TemplateStore renders named templates into deployment descriptors.
type TemplateStore interface {
	Render(name string, ctx template.Context) (*template.Rendered, error)
}

// Engine is the container engine surface the manager drives.
type Engine interface {
	Resolve(ctx context.Context, name string) (docker.Handle, error)
	Power(ctx context.Context, h docker.Handle, action docker.Action) error
	Running(ctx context.Context, h docker.Handle) (bool, error)
	Stats(ctx context.Context, h docker.Handle) (docker.Stats, error)
	Logs(ctx context.Context, h docker.Handle, lines int) ([]docker.LogLine, error)
	Exec(ctx context.Context, h docker.Handle, command string) (docker.ExecResult, error)
	IsPortInUse(ctx context.Context, port int) (bool, error)
	ComposeUp(ctx context.Context, dir string) error
	ComposeDown(ctx context.Context, dir string) error
}

// Notifier receives lifecycle events. Implementations must not block.
type Notifier interface {
	ServerCreated(server *model.Server)
	PowerActionPerformed(server *model.Server, action docker.Action, user *model.User)
}

// Manager composes the template store, port allocator, record store and
// engine adapter into the server lifecycle.
type Manager struct {
	cfg       *config.Config
	store     RecordStore
	templates TemplateStore
	engine    Engine
	notifier  Notifier
}

func NewManager(cfg *config.Config, records RecordStore, templates TemplateStore, engine Engine) *Manager {
	return &Manager{cfg: cfg, store: records, templates: templates, engine: engine}
}

// SetNotifier attaches an optional lifecycle event notifier.
func (m *Manager) SetNotifier(n Notifier) { m.notifier = n }

// CreateInput is the caller-supplied part of a new server.
type CreateInput struct {
	Name         string
	Description  string
	Template     string
	Port         int
	SFTPPort     int
	AllowedUsers []model.User
	Options      map[string]string
}

// Create validates input, persists the record and provisions the backing
// containers.
//
// The record becomes durable before any container exists: a crash during
// provisioning leaves an inspectable record rather than an orphaned
// container. Provisioning failures are returned without rolling the
// record back; the caller retries under a new name or removes the record
// through Destroy.
func (m *Manager) Create(ctx context.Context, input CreateInput) (*model.Server, error) {
	if err := m.validate(ctx, input); err != nil {
		return nil, err
	}

	server := &model.Server{
		ServerID:       model.NewServerID(),
		Name:           input.Name,
		Description:    input.Description,
		Template:       input.Template,
		Port:           input.Port,
		SFTPPort:       input.SFTPPort,
		SFTPPassword:   model.NewSFTPPassword(),
		MaxCPUUsage:    model.DefaultMaxCPUUsage,
		MaxMemoryUsage: model.DefaultMaxMemoryUsage,
		Host:           m.cfg.DefaultHost,
		AllowedUsers:   input.AllowedUsers,
	}

	if err := m.store.Create(server); err != nil {
		return nil, err
	}

	if err := m.provision(ctx, server, input.Options); err != nil {
		log.WithFields(log.Fields{"server": server.ServerID, "name": server.Name}).
			WithError(err).Warn("provisioning failed, record kept for inspection")
		return nil, err
	}

	if m.notifier != nil {
		m.notifier.ServerCreated(server)
	}
	return server, nil
}

func (m *Manager) validate(ctx context.Context, input CreateInput) error {
	if input.Port < portMin || input.Port > portMax {
		return &ValidationError{Field: "port", Reason: "port number must be between 1000 and 60000"}
	}
	if input.SFTPPort < portMin || input.SFTPPort > portMax {
		return &ValidationError{Field: "sftp_port", Reason: "port number must be between 1000 and 60000"}
	}
	if !namePattern.MatchString(input.Name) {
		return &ValidationError{Field: "name", Reason: "server name may only contain lowercase letters, numbers and underscores"}
	}

	for field, port := range map[string]int{"port": input.Port, "sftp_port": input.SFTPPort} {
		inUse, err := m.engine.IsPortInUse(ctx, port)
		if err != nil {
			return err
		}
		if inUse {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("port %d is already in use", port)}
		}
	}
	return nil
}

func (m *Manager) provision(ctx context.Context, server *model.Server, options map[string]string) error {
	rendered, err := m.templates.Render(server.Template, template.Context{
		Name:           server.Name,
		Description:    server.Description,
		Port:           server.Port,
		SFTPPort:       server.SFTPPort,
		SFTPPassword:   server.SFTPPassword,
		MaxCPUUsage:    server.MaxCPUUsage,
		MaxMemoryUsage: server.MaxMemoryUsage,
		Options:        options,
		Timezone:       m.cfg.Timezone,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(m.cfg.AppDir, 0755); err != nil {
		return fmt.Errorf("creating app directory: %w", err)
	}

	// Exclusive create doubles as the name-reuse guard: a leftover or
	// concurrently created directory for the same name fails here.
	path := filepath.Join(m.cfg.AppDir, server.Name)
	if err := os.Mkdir(path, 0755); err != nil {
		if os.IsExist(err) {
			return &PathConflictError{Path: path}
		}
		return fmt.Errorf("creating deployment directory: %w", err)
	}

	descriptor := filepath.Join(path, "docker-compose.yml")
	if err := os.WriteFile(descriptor, rendered.ComposeConfig, 0644); err != nil {
		return fmt.Errorf("writing deployment descriptor: %w", err)
	}

	if err := m.engine.ComposeUp(ctx, path); err != nil {
		return err
	}

	server.CommandPrefix = rendered.CommandPrefix
	return m.store.SetCommandPrefix(server.ServerID, rendered.CommandPrefix)
}

// GetAuthorized loads a server and checks the caller may manage it. An
// unknown id yields the same denial as missing permission.
func (m *Manager) GetAuthorized(serverID string, user *model.User) (*model.Server, error) {
	server, err := m.store.Get(serverID)
	if err != nil {
		if err == store.ErrServerNotFound {
			return nil, ErrNotAuthorized
		}
		return nil, err
	}
	if !auth.CanManage(server, user) {
		return nil, ErrNotAuthorized
	}
	return server, nil
}

// PowerAction performs a power action on the server's main container
// after authorization. The record is not re-persisted; only engine state
// changes.
func (m *Manager) PowerAction(ctx context.Context, serverID string, user *model.User, action docker.Action) (*model.Server, error) {
	server, err := m.GetAuthorized(serverID, user)
	if err != nil {
		return nil, err
	}

	handle, err := m.engine.Resolve(ctx, server.ContainerName())
	if err != nil {
		return nil, err
	}
	if err := m.engine.Power(ctx, handle, action); err != nil {
		return nil, err
	}

	if m.notifier != nil {
		m.notifier.PowerActionPerformed(server, action, user)
	}
	return server, nil
}

// Exec runs a command inside the server's main container, prefixed with
// the template-declared command prefix. The suffix is caller-controlled
// and passes through verbatim; authorization is the only gate.
func (m *Manager) Exec(ctx context.Context, serverID string, user *model.User, command string) (docker.ExecResult, error) {
	server, err := m.GetAuthorized(serverID, user)
	if err != nil {
		return docker.ExecResult{}, err
	}

	handle, err := m.engine.Resolve(ctx, server.ContainerName())
	if err != nil {
		return docker.ExecResult{}, err
	}
	return m.engine.Exec(ctx, handle, server.CommandPrefix+" "+command)
}

// State is the runtime view of a server.
type State struct {
	Running     bool    `json:"running"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage uint64  `json:"memory_usage"`
}

// State reports whether the backing container runs and its usage. A
// server without a backing container is simply not running with zero
// usage; that is not an error.
func (m *Manager) State(ctx context.Context, server *model.Server) (State, error) {
	handle, err := m.engine.Resolve(ctx, server.ContainerName())
	if err != nil {
		return State{}, err
	}
	running, err := m.engine.Running(ctx, handle)
	if err != nil {
		return State{}, err
	}
	stats, err := m.engine.Stats(ctx, handle)
	if err != nil {
		return State{}, err
	}
	return State{Running: running, CPUUsage: stats.CPUUsage, MemoryUsage: stats.MemoryUsage}, nil
}

// Logs returns the last lines log lines of the server's main container,
// empty when the container is absent.
func (m *Manager) Logs(ctx context.Context, server *model.Server, lines int) ([]docker.LogLine, error) {
	handle, err := m.engine.Resolve(ctx, server.ContainerName())
	if err != nil {
		return nil, err
	}
	return m.engine.Logs(ctx, handle, lines)
}

// Destroy tears a server down: compose project, deployment directory and
// record. Engine-side teardown failures abort so the operator can retry;
// a missing deployment directory is not an error.
func (m *Manager) Destroy(ctx context.Context, serverID string, user *model.User) error {
	server, err := m.GetAuthorized(serverID, user)
	if err != nil {
		return err
	}

	path := filepath.Join(m.cfg.AppDir, server.Name)
	if _, statErr := os.Stat(path); statErr == nil {
		if err := m.engine.ComposeDown(ctx, path); err != nil {
			return err
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("removing deployment directory: %w", err)
		}
	}

	return m.store.Delete(server.ServerID)
}
