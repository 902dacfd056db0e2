// internal/config/config.go
//
// This package handles project configuration and the .specloom directory
// structure. Every project that uses specloom gets a .specloom/ folder
// created in its root, holding config.yaml, the handler registry, and logs.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// SpecloomDir is the name of the directory we create in each project.
	SpecloomDir = ".specloom"

	defaultDocType  = "prd"
	defaultBackend  = "scripted"
	defaultAuthor   = "specloom"
	defaultDocument = "spec.md"
	defaultRegistry = "handlers.yaml"
)

const defaultProjectConfigYAML = `# specloom project configuration
version: 1

# The marker-annotated document this project completes.
document: spec.md
doc_type: prd

# Handler registry, relative to .specloom/ unless absolute.
registry: handlers.yaml

# Collaborator backend and author recorded in version history.
backend: scripted
author: specloom

# Named model profiles handlers can reference via llm_profile.
profiles:
  default:
    model: default
`

// Profile names a model configuration a handler can request.
type Profile struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
}

// ProjectConfig models .specloom/config.yaml.
type ProjectConfig struct {
	Version  int                `yaml:"version"`
	Document string             `yaml:"document"`
	DocType  string             `yaml:"doc_type"`
	Registry string             `yaml:"registry"`
	Backend  string             `yaml:"backend"`
	Author   string             `yaml:"author"`
	Profiles map[string]Profile `yaml:"profiles,omitempty"`
}

// Config holds the runtime configuration for specloom.
type Config struct {
	// ProjectDir is the directory where the user ran `specloom` from.
	ProjectDir string

	// SpecloomProjectDir is ProjectDir/.specloom.
	SpecloomProjectDir string

	Project ProjectConfig
}

// InitDir creates the .specloom directory structure in the given project
// directory and seeds config.yaml, the default handler registry, and a
// starter document when they do not exist yet.
//
// Structure created:
// .specloom/
// ├── config.yaml    <- project configuration
// ├── handlers.yaml  <- handler registry (doc type x section)
// └── logs/          <- run logbook
func InitDir(projectDir string) error {
	dir := filepath.Join(projectDir, SpecloomDir)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return fmt.Errorf("config: ensure %s: %w", dir, err)
	}
	if err := ensureFile(filepath.Join(dir, "config.yaml"), defaultProjectConfigYAML); err != nil {
		return err
	}
	if err := ensureFile(filepath.Join(dir, defaultRegistry), DefaultRegistryYAML); err != nil {
		return err
	}
	return ensureFile(filepath.Join(projectDir, defaultDocument), StarterDocument)
}

// New loads the configuration for a project directory, falling back to
// defaults when .specloom/config.yaml does not exist.
func New(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:         projectDir,
		SpecloomProjectDir: filepath.Join(projectDir, SpecloomDir),
		Project:            defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DocumentPath returns the absolute path of the working document.
func (c *Config) DocumentPath() string {
	return resolvePath(c.ProjectDir, c.Project.Document)
}

// RegistryPath returns the absolute path of the handler registry file.
// Relative values resolve against .specloom/ so the registry travels with
// the rest of the project metadata.
func (c *Config) RegistryPath() string {
	return resolvePath(c.SpecloomProjectDir, c.Project.Registry)
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.SpecloomProjectDir, "logs")
}

// LogbookPath returns the run logbook file location.
func (c *Config) LogbookPath() string {
	return filepath.Join(c.LogsDir(), "specloom.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.SpecloomProjectDir, "config.yaml")
}

// ProfileFor returns the named model profile, or the default profile when the
// name is empty or unknown.
func (c *Config) ProfileFor(name string) Profile {
	if p, ok := c.Project.Profiles[name]; ok {
		return p
	}
	if p, ok := c.Project.Profiles["default"]; ok {
		return p
	}
	return Profile{Model: "default"}
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

// Save persists the current project configuration back to config.yaml.
func (c *Config) Save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.SpecloomProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure specloom dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:  1,
		Document: defaultDocument,
		DocType:  defaultDocType,
		Registry: defaultRegistry,
		Backend:  defaultBackend,
		Author:   defaultAuthor,
		Profiles: map[string]Profile{"default": {Model: "default"}},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Profiles == nil {
		pc.Profiles = map[string]Profile{}
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Document = strings.TrimSpace(pc.Document)
	if pc.Document == "" {
		pc.Document = defaultDocument
	}
	pc.DocType = strings.ToLower(strings.TrimSpace(pc.DocType))
	if pc.DocType == "" {
		pc.DocType = defaultDocType
	}
	pc.Registry = strings.TrimSpace(pc.Registry)
	if pc.Registry == "" {
		pc.Registry = defaultRegistry
	}
	pc.Backend = strings.ToLower(strings.TrimSpace(pc.Backend))
	if pc.Backend == "" {
		pc.Backend = defaultBackend
	}
	pc.Author = strings.TrimSpace(pc.Author)
	if pc.Author == "" {
		pc.Author = defaultAuthor
	}
}

func (pc ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if strings.ContainsAny(pc.DocType, " \t") {
		return fmt.Errorf("doc_type %q must not contain whitespace", pc.DocType)
	}
	for name, p := range pc.Profiles {
		if strings.TrimSpace(p.Model) == "" {
			return fmt.Errorf("profiles[%s]: model is required", name)
		}
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureFile(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
