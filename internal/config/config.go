// Package config provides configuration management for scriptd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure for scriptd.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Hosted   HostedConfig   `mapstructure:"hosted"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// PublicURL is the externally reachable base URL, used when building
	// hosted-script endpoint URLs. Defaults to http://<host>:<port>.
	PublicURL string `mapstructure:"public_url"`

	// Enable CORS
	CORS CORSConfig `mapstructure:"cors"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Maximum request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	ExposedHeaders   []string      `mapstructure:"exposed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Cache size in KB (negative for KB, positive for pages)
	CacheSize int `mapstructure:"cache_size"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Enable foreign keys
	ForeignKeys bool `mapstructure:"foreign_keys"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// EngineConfig holds script execution settings.
type EngineConfig struct {
	// WorkspaceDir is where rendered script files are written before
	// execution. Each execution gets a uniquely named file.
	WorkspaceDir string `mapstructure:"workspace_dir"`

	// Timeout is the wall-clock limit for a single execution.
	Timeout time.Duration `mapstructure:"timeout"`

	// InstallTimeout bounds a single dependency install, independent of
	// the execution timeout.
	InstallTimeout time.Duration `mapstructure:"install_timeout"`

	// CleanupDelay is how long a workspace file is kept after its
	// execution reaches a terminal state.
	CleanupDelay time.Duration `mapstructure:"cleanup_delay"`

	// InstallDependencies toggles automatic dependency installation.
	InstallDependencies bool `mapstructure:"install_dependencies"`

	// HistoryRetention is how long finished executions are kept in the
	// database before cleanup.
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

// HostedConfig holds hosted-script settings.
type HostedConfig struct {
	// SchedulerEnabled toggles the recurring-schedule runner.
	SchedulerEnabled bool `mapstructure:"scheduler_enabled"`

	// InvokeTimeout bounds a synchronous endpoint invocation, including
	// the wait for the underlying execution to finish.
	InvokeTimeout time.Duration `mapstructure:"invoke_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format: console or json
	Format string `mapstructure:"format"`

	// Include caller information
	Caller bool `mapstructure:"caller"`

	// Include timestamps
	Timestamp bool `mapstructure:"timestamp"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Address returns the host:port address for the server.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BaseURL returns the externally reachable base URL.
func (c *ServerConfig) BaseURL() string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return fmt.Sprintf("http://%s", c.Address())
}
