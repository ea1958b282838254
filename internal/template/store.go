// Package template reads app template definitions from a directory and
// renders them into deployment descriptors.
//
// A template file is a YAML document with a text/template layer on top.
// Interpolated values must be quoted so that the unrendered file still
// parses as YAML (the catalog endpoints read it without rendering).
package template

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"

	"github.com/goccy/go-yaml"
)

// ErrNotFound is returned when no template file exists for a name.
var ErrNotFound = errors.New("template not found")

// RenderError indicates that a template could not be rendered or that the
// rendered result was not a valid template document.
type RenderError struct {
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering template %q: %v", e.Template, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Info is one catalog entry.
type Info struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Option is a template-defined option with its default value.
type Option struct {
	Key         string `yaml:"key" json:"key"`
	Value       string `yaml:"value" json:"value"`
	Description string `yaml:"description" json:"description"`
}

// Detail is the full template description including its options.
type Detail struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Options     []Option `json:"options"`
}

// Rendered is the result of rendering a template for a concrete server.
type Rendered struct {
	// ComposeConfig is the deployment descriptor, ready to be written to
	// the server's docker-compose.yml.
	ComposeConfig []byte

	// CommandPrefix is the template's declared exec prefix.
	CommandPrefix string
}

// Context carries the per-server values interpolated into a template.
type Context struct {
	Name           string
	Description    string
	Port           int
	SFTPPort       int
	SFTPPassword   string
	MaxCPUUsage    float64
	MaxMemoryUsage float64
	Options        map[string]string
	Timezone       string
}

// templateFile is the structure of a (rendered) template document.
type templateFile struct {
	Name          string                 `yaml:"name"`
	Description   string                 `yaml:"description"`
	Options       []Option               `yaml:"options"`
	CommandPrefix string                 `yaml:"command_prefix"`
	ComposeConfig map[string]interface{} `yaml:"compose_config"`
}

// Store reads templates from a directory, one .yml file per template.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// List returns one entry per template file in the directory.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading template directory: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yml")
		parsed, err := s.parse(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{
			Name:        name,
			Title:       parsed.Name,
			Description: parsed.Description,
		})
	}
	return infos, nil
}

// Get returns the full description of a single template.
func (s *Store) Get(name string) (*Detail, error) {
	parsed, err := s.parse(name)
	if err != nil {
		return nil, err
	}
	options := parsed.Options
	if options == nil {
		options = []Option{}
	}
	return &Detail{
		Name:        name,
		Title:       parsed.Name,
		Description: parsed.Description,
		Options:     options,
	}, nil
}

// Render interpolates ctx into the named template and returns the compose
// descriptor plus the command prefix declared by the template.
func (s *Store) Render(name string, ctx Context) (*Rendered, error) {
	raw, err := s.read(name)
	if err != nil {
		return nil, err
	}

	tmpl, err := texttemplate.New(name).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, &RenderError{Template: name, Err: err}
	}

	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, ctx.toMap()); err != nil {
		return nil, &RenderError{Template: name, Err: err}
	}

	var parsed templateFile
	if err := yaml.Unmarshal(rendered.Bytes(), &parsed); err != nil {
		return nil, &RenderError{Template: name, Err: err}
	}
	if parsed.ComposeConfig == nil {
		return nil, &RenderError{Template: name, Err: errors.New("missing compose_config section")}
	}
	if parsed.CommandPrefix == "" {
		return nil, &RenderError{Template: name, Err: errors.New("missing command_prefix")}
	}

	composeConfig, err := yaml.Marshal(parsed.ComposeConfig)
	if err != nil {
		return nil, &RenderError{Template: name, Err: err}
	}

	return &Rendered{
		ComposeConfig: composeConfig,
		CommandPrefix: parsed.CommandPrefix,
	}, nil
}

func (s *Store) read(name string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, name+".yml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading template %q: %w", name, err)
	}
	return raw, nil
}

func (s *Store) parse(name string) (*templateFile, error) {
	raw, err := s.read(name)
	if err != nil {
		return nil, err
	}
	var parsed templateFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, &RenderError{Template: name, Err: err}
	}
	return &parsed, nil
}

func (c Context) toMap() map[string]interface{} {
	options := c.Options
	if options == nil {
		options = map[string]string{}
	}
	return map[string]interface{}{
		"name":             c.Name,
		"description":      c.Description,
		"port":             c.Port,
		"sftp_port":        c.SFTPPort,
		"sftp_password":    c.SFTPPassword,
		"max_cpu_usage":    c.MaxCPUUsage,
		"max_memory_usage": c.MaxMemoryUsage,
		"options":          options,
		"timezone":         c.Timezone,
	}
}
