package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config describes everything the daemon loads at startup.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Plugins PluginsConfig `json:"plugins"`
	Events  EventsConfig  `json:"events"`
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig controls the admin API listener.
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig selects the plugin state backend.
type StorageConfig struct {
	Driver string      `json:"driver"`
	MySQL  MySQLConfig `json:"mysql"`
	Redis  RedisConfig `json:"redis"`
}

// MySQLConfig carries MySQL connection settings.
type MySQLConfig struct {
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// RedisConfig carries Redis connection settings.
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// PluginsConfig controls discovery and the host's default-enable policy.
type PluginsConfig struct {
	// Dir is scanned for *.so plugin artifacts.
	Dir string `json:"dir"`
	// Watch re-runs discovery when Dir changes on disk.
	Watch bool `json:"watch"`
	// DefaultEnabled lists plugins the host enables on first run, when no
	// persisted state was restored. This is host policy, not a manager
	// concern.
	DefaultEnabled []string `json:"default_enabled"`
	// OverridesFile points at a YAML file with per-plugin config blocks
	// and mount prefixes.
	OverridesFile string `json:"overrides_file"`
}

// EventsConfig controls the lifecycle event bridge.
type EventsConfig struct {
	Driver   string         `json:"driver"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig carries RabbitMQ connection settings.
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LoggingConfig mirrors the logger package's settings.
type LoggingConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	Audit       AuditLogConfig `json:"audit"`
}

// AuditLogConfig controls the rotated audit trail of lifecycle decisions.
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Load parses the JSON config file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path cannot be empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// applyDefaults fills reasonable values for fields the user left empty.
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Plugins.Dir == "" {
		c.Plugins.Dir = filepath.Join(baseDir, "plugins")
	} else if !filepath.IsAbs(c.Plugins.Dir) {
		c.Plugins.Dir = filepath.Join(baseDir, c.Plugins.Dir)
	}
	if c.Plugins.OverridesFile != "" && !filepath.IsAbs(c.Plugins.OverridesFile) {
		c.Plugins.OverridesFile = filepath.Join(baseDir, c.Plugins.OverridesFile)
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}
}

// Overrides is the per-plugin configuration document, kept in YAML so
// operators can edit it alongside the plugin directory.
type Overrides struct {
	Plugins map[string]PluginOverride `yaml:"plugins"`
}

// PluginOverride adjusts a single plugin without touching its code.
type PluginOverride struct {
	MountPrefix string         `yaml:"mountPrefix"`
	Config      map[string]any `yaml:"config"`
}

// LoadOverrides reads the YAML overrides file. A missing path yields an
// empty document rather than an error.
func LoadOverrides(path string) (Overrides, error) {
	overrides := Overrides{Plugins: map[string]PluginOverride{}}
	if path == "" {
		return overrides, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return overrides, nil
		}
		return overrides, fmt.Errorf("read plugin overrides: %w", err)
	}
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return overrides, fmt.Errorf("parse plugin overrides: %w", err)
	}
	if overrides.Plugins == nil {
		overrides.Plugins = map[string]PluginOverride{}
	}
	return overrides, nil
}
