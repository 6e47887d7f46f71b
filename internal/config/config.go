// Package config manages doclink configuration and the .doclink directory.
// It handles loading, saving, and initializing the project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DoclinkDir  = ".doclink"
	ConfigFile  = "config"
	OfflineFile = "offline.db"
	ReplicaFile = "replica.db"
)

// Config represents the doclink configuration
type Config struct {
	StackURL         string   `toml:"stack_url"`
	WeaviateURL      string   `toml:"weaviate_url,omitempty"`
	ServerVersion    string   `toml:"server_version,omitempty"` // Detected Weaviate server version on init
	SchemaFile       string   `toml:"schema_file,omitempty"`
	LogLevel         string   `toml:"log_level,omitempty"`
	ReplicaDoctypes  []string `toml:"replica_doctypes,omitempty"`
	OfflineDoctypes  []string `toml:"offline_doctypes,omitempty"`
	WeaviateDoctypes []string `toml:"weaviate_doctypes,omitempty"`
	path             string   // path to .doclink directory
}

// FindRoot finds the .doclink directory by walking up from the current directory
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindRootFrom(dir)
}

// FindRootFrom finds the .doclink directory by walking up from dir
func FindRootFrom(dir string) (string, error) {
	for {
		path := filepath.Join(dir, DoclinkDir)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a doclink project (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration of the project containing the current directory
func Load() (*Config, error) {
	root, err := FindRoot()
	if err != nil {
		return nil, err
	}
	return LoadFrom(root)
}

// LoadFrom loads the configuration from the given .doclink directory
func LoadFrom(root string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(root, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.path = root
	return &cfg, nil
}

// Validate checks the configured values.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid log_level %q", c.LogLevel)
		}
	}
	if len(c.WeaviateDoctypes) > 0 && c.WeaviateURL == "" {
		return fmt.Errorf("weaviate_doctypes requires weaviate_url")
	}

	replicated := make(map[string]bool, len(c.ReplicaDoctypes))
	for _, d := range c.ReplicaDoctypes {
		replicated[d] = true
	}
	for _, d := range c.WeaviateDoctypes {
		if replicated[d] {
			return fmt.Errorf("doctype %s is configured for both the replica and weaviate", d)
		}
	}
	return nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0644)
}

// Path returns the path to the .doclink directory
func (c *Config) Path() string {
	return c.path
}

// OfflinePath returns the path to the bbolt database of stored responses
func (c *Config) OfflinePath() string {
	return filepath.Join(c.path, OfflineFile)
}

// ReplicaPath returns the path to the SQLite replica
func (c *Config) ReplicaPath() string {
	return filepath.Join(c.path, ReplicaFile)
}

// SchemaPath returns the schema file path. Relative paths are resolved
// against the project directory.
func (c *Config) SchemaPath() string {
	if c.SchemaFile == "" || filepath.IsAbs(c.SchemaFile) {
		return c.SchemaFile
	}
	return filepath.Join(filepath.Dir(c.path), c.SchemaFile)
}

// Logger builds the zap logger for the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if c.LogLevel != "" {
		parsed, err := zapcore.ParseLevel(c.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log_level %q", c.LogLevel)
		}
		level = parsed
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// Initialize creates a new .doclink directory in dir with initial configuration
func Initialize(dir, stackURL string) (*Config, error) {
	path := filepath.Join(dir, DoclinkDir)

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("doclink project already exists")
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .doclink directory: %w", err)
	}

	cfg := &Config{
		StackURL: stackURL,
		LogLevel: "warn",
		path:     path,
	}

	if err := cfg.Save(); err != nil {
		os.RemoveAll(path)
		return nil, err
	}

	return cfg, nil
}

// SupportsCursorPagination returns true if the Weaviate server version supports cursor pagination
func (c *Config) SupportsCursorPagination() bool {
	if c.ServerVersion == "" {
		return true
	}

	var major, minor int
	_, err := fmt.Sscanf(c.ServerVersion, "%d.%d", &major, &minor)
	if err != nil {
		return true
	}

	// Cursor pagination (WithAfter) requires Weaviate 1.18+
	return major > 1 || (major == 1 && minor >= 18)
}
