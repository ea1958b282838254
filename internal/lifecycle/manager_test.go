package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niwla23/containerpanel/internal/config"
	"github.com/niwla23/containerpanel/internal/docker"
	"github.com/niwla23/containerpanel/internal/model"
	"github.com/niwla23/containerpanel/internal/store"
	"github.com/niwla23/containerpanel/internal/template"
)

type fakeStore struct {
	servers  map[string]*model.Server
	created  []*model.Server
	prefixes map[string]string
	deleted  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{servers: map[string]*model.Server{}, prefixes: map[string]string{}}
}

func (f *fakeStore) Get(serverID string) (*model.Server, error) {
	server, ok := f.servers[serverID]
	if !ok {
		return nil, store.ErrServerNotFound
	}
	return server, nil
}

func (f *fakeStore) Create(server *model.Server) error {
	f.created = append(f.created, server)
	f.servers[server.ServerID] = server
	return nil
}

func (f *fakeStore) SetCommandPrefix(serverID, prefix string) error {
	f.prefixes[serverID] = prefix
	return nil
}

func (f *fakeStore) Delete(serverID string) error {
	f.deleted = append(f.deleted, serverID)
	delete(f.servers, serverID)
	return nil
}

type fakeTemplates struct {
	rendered *template.Rendered
	err      error
	lastName string
	lastCtx  template.Context
}

func (f *fakeTemplates) Render(name string, ctx template.Context) (*template.Rendered, error) {
	f.lastName = name
	f.lastCtx = ctx
	if f.err != nil {
		return nil, f.err
	}
	return f.rendered, nil
}

type fakeEngine struct {
	portsInUse map[int]bool
	composeUps []string
	downs      []string
	powered    []docker.Action
	execs      []string
	running    bool
	stats      docker.Stats
	logs       []docker.LogLine
}

func (f *fakeEngine) Resolve(ctx context.Context, name string) (docker.Handle, error) {
	return docker.Handle{}, nil
}

func (f *fakeEngine) Power(ctx context.Context, h docker.Handle, action docker.Action) error {
	f.powered = append(f.powered, action)
	return nil
}

func (f *fakeEngine) Running(ctx context.Context, h docker.Handle) (bool, error) {
	return f.running, nil
}

func (f *fakeEngine) Stats(ctx context.Context, h docker.Handle) (docker.Stats, error) {
	return f.stats, nil
}

func (f *fakeEngine) Logs(ctx context.Context, h docker.Handle, lines int) ([]docker.LogLine, error) {
	if f.logs == nil {
		return []docker.LogLine{}, nil
	}
	return f.logs, nil
}

func (f *fakeEngine) Exec(ctx context.Context, h docker.Handle, command string) (docker.ExecResult, error) {
	f.execs = append(f.execs, command)
	return docker.ExecResult{ExitCode: 0, Output: "ok"}, nil
}

func (f *fakeEngine) IsPortInUse(ctx context.Context, port int) (bool, error) {
	return f.portsInUse[port], nil
}

func (f *fakeEngine) ComposeUp(ctx context.Context, dir string) error {
	f.composeUps = append(f.composeUps, dir)
	return nil
}

func (f *fakeEngine) ComposeDown(ctx context.Context, dir string) error {
	f.downs = append(f.downs, dir)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeStore, *fakeTemplates, *fakeEngine) {
	t.Helper()
	cfg := &config.Config{
		AppDir:      t.TempDir(),
		Timezone:    "Europe/Berlin",
		DefaultHost: "local",
	}
	records := newFakeStore()
	templates := &fakeTemplates{rendered: &template.Rendered{
		ComposeConfig: []byte("services:\n  main:\n    image: minetest/server:1.17.1\n"),
		CommandPrefix: "/usr/local/bin/minetest-cmd",
	}}
	engine := &fakeEngine{portsInUse: map[int]bool{}}
	return NewManager(cfg, records, templates, engine), records, templates, engine
}

func validInput() CreateInput {
	return CreateInput{
		Name:        "mt1",
		Description: "Minetest Server 1",
		Template:    "minetest",
		Port:        34368,
		SFTPPort:    34369,
		Options:     map[string]string{"VERSION": "1.17.1"},
	}
}

func TestCreate(t *testing.T) {
	m, records, templates, engine := newTestManager(t)

	server, err := m.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{5}$`), server.ServerID)
	assert.Equal(t, "mt1", server.Name)
	assert.Equal(t, "mt1_main_1", server.ContainerName())
	assert.NotEmpty(t, server.SFTPPassword)
	assert.Equal(t, float64(model.DefaultMaxCPUUsage), server.MaxCPUUsage)
	assert.Equal(t, float64(model.DefaultMaxMemoryUsage), server.MaxMemoryUsage)
	assert.Equal(t, "local", server.Host)

	// record persisted before provisioning
	require.Len(t, records.created, 1)

	// descriptor written into the deployment directory
	path := filepath.Join(m.cfg.AppDir, "mt1")
	descriptor, err := os.ReadFile(filepath.Join(path, "docker-compose.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(descriptor), "minetest/server:1.17.1")

	// bring-up invoked on the deployment directory
	assert.Equal(t, []string{path}, engine.composeUps)

	// template got the full context
	assert.Equal(t, "minetest", templates.lastName)
	assert.Equal(t, "1.17.1", templates.lastCtx.Options["VERSION"])
	assert.Equal(t, "Europe/Berlin", templates.lastCtx.Timezone)
	assert.Equal(t, server.SFTPPassword, templates.lastCtx.SFTPPassword)

	// command prefix from the template, persisted
	assert.Equal(t, "/usr/local/bin/minetest-cmd", server.CommandPrefix)
	assert.Equal(t, "/usr/local/bin/minetest-cmd", records.prefixes[server.ServerID])
}

func TestCreatePortOutOfRange(t *testing.T) {
	for _, port := range []int{0, 368, 999, 60001, 94368} {
		m, records, _, _ := newTestManager(t)
		input := validInput()
		input.Port = port

		_, err := m.Create(context.Background(), input)
		var validationErr *ValidationError
		require.True(t, errors.As(err, &validationErr), "port %d", port)
		assert.Equal(t, "port", validationErr.Field)
		assert.Empty(t, records.created, "no record may be persisted on rejected input")
	}
}

func TestCreateSFTPPortOutOfRange(t *testing.T) {
	for _, port := range []int{369, 94369} {
		m, records, _, _ := newTestManager(t)
		input := validInput()
		input.SFTPPort = port

		_, err := m.Create(context.Background(), input)
		var validationErr *ValidationError
		require.True(t, errors.As(err, &validationErr), "sftp port %d", port)
		assert.Equal(t, "sftp_port", validationErr.Field)
		assert.Empty(t, records.created)
	}
}

func TestCreateInvalidName(t *testing.T) {
	for _, name := range []string{"", "mt server1", "MT1", "mt-1", "mt.1"} {
		m, records, _, _ := newTestManager(t)
		input := validInput()
		input.Name = name

		_, err := m.Create(context.Background(), input)
		var validationErr *ValidationError
		require.True(t, errors.As(err, &validationErr), "name %q", name)
		assert.Equal(t, "name", validationErr.Field)
		assert.Empty(t, records.created)
	}
}

func TestCreatePortInUse(t *testing.T) {
	m, records, _, engine := newTestManager(t)
	engine.portsInUse[34368] = true

	_, err := m.Create(context.Background(), validInput())
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Contains(t, validationErr.Reason, "already in use")
	assert.Empty(t, records.created)
}

func TestCreateDuplicateName(t *testing.T) {
	m, records, _, engine := newTestManager(t)

	first, err := m.Create(context.Background(), validInput())
	require.NoError(t, err)

	input := validInput()
	input.Port = 34370
	input.SFTPPort = 34371
	_, err = m.Create(context.Background(), input)

	var pathErr *PathConflictError
	require.True(t, errors.As(err, &pathErr))

	// first deployment untouched, second record kept for inspection
	assert.Len(t, engine.composeUps, 1)
	assert.Len(t, records.created, 2)
	assert.Equal(t, first.ServerID, records.created[0].ServerID)
}

func TestCreateTemplateErrorKeepsRecord(t *testing.T) {
	m, records, templates, engine := newTestManager(t)
	templates.err = &template.RenderError{Template: "minetest", Err: errors.New("missing key")}

	_, err := m.Create(context.Background(), validInput())
	var renderErr *template.RenderError
	require.True(t, errors.As(err, &renderErr))

	// persisted record stays, nothing was brought up
	assert.Len(t, records.created, 1)
	assert.Empty(t, engine.composeUps)
}

func managedServer(records *fakeStore, allowed ...model.User) *model.Server {
	server := &model.Server{
		ServerID:      "ab123",
		Name:          "mt1",
		CommandPrefix: "/usr/local/bin/minetest-cmd",
		AllowedUsers:  allowed,
	}
	records.servers[server.ServerID] = server
	return server
}

func TestPowerActionAuthorized(t *testing.T) {
	m, records, _, engine := newTestManager(t)
	user := &model.User{ID: 1, Role: model.RoleUser}
	managedServer(records, model.User{ID: 1})

	_, err := m.PowerAction(context.Background(), "ab123", user, docker.ActionStop)
	require.NoError(t, err)
	assert.Equal(t, []docker.Action{docker.ActionStop}, engine.powered)
}

func TestPowerActionDenied(t *testing.T) {
	m, records, _, engine := newTestManager(t)
	user := &model.User{ID: 2, Role: model.RoleUser}
	managedServer(records, model.User{ID: 1})

	_, err := m.PowerAction(context.Background(), "ab123", user, docker.ActionStop)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Empty(t, engine.powered, "denied actions must not reach the engine")
}

func TestPowerActionUnknownServerGivesGenericDenial(t *testing.T) {
	m, _, _, engine := newTestManager(t)
	user := &model.User{ID: 2, Role: model.RoleUser}

	_, err := m.PowerAction(context.Background(), "zzzzz", user, docker.ActionStart)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Empty(t, engine.powered)
}

func TestExecPrependsCommandPrefix(t *testing.T) {
	m, records, _, engine := newTestManager(t)
	user := &model.User{ID: 1, Role: model.RoleAdmin}
	managedServer(records)

	result, err := m.Exec(context.Background(), "ab123", user, "say hello")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	require.Len(t, engine.execs, 1)
	assert.Equal(t, "/usr/local/bin/minetest-cmd say hello", engine.execs[0])
}

func TestStateWithoutContainer(t *testing.T) {
	m, records, _, _ := newTestManager(t)
	server := managedServer(records)

	// repeated reads against an absent container stay stable
	for i := 0; i < 3; i++ {
		state, err := m.State(context.Background(), server)
		require.NoError(t, err)
		assert.False(t, state.Running)
		assert.Zero(t, state.CPUUsage)
		assert.Zero(t, state.MemoryUsage)
	}
}

func TestLogsWithoutContainer(t *testing.T) {
	m, records, _, _ := newTestManager(t)
	server := managedServer(records)

	logs, err := m.Logs(context.Background(), server, 50)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestDestroy(t *testing.T) {
	m, records, _, engine := newTestManager(t)
	user := &model.User{ID: 1, Role: model.RoleAdmin}

	server, err := m.Create(context.Background(), validInput())
	require.NoError(t, err)

	path := filepath.Join(m.cfg.AppDir, server.Name)
	require.DirExists(t, path)

	require.NoError(t, m.Destroy(context.Background(), server.ServerID, user))
	assert.Equal(t, []string{path}, engine.downs)
	assert.NoDirExists(t, path)
	assert.Equal(t, []string{server.ServerID}, records.deleted)
}
