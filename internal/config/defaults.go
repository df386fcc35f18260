package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8070
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 5 * time.Minute // invoke endpoint waits for script completion
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 1024 * 1024 // 1MB of script text is plenty

	// Database defaults.
	DefaultDBPath       = "scriptd.db"
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Engine defaults.
	DefaultWorkspaceDir     = "workspace"
	DefaultExecutionTimeout = 2 * time.Minute
	DefaultInstallTimeout   = 60 * time.Second
	DefaultCleanupDelay     = 5 * time.Second
	DefaultHistoryRetention = 30 * 24 * time.Hour

	// Hosted defaults.
	DefaultInvokeTimeout = 3 * time.Minute

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
			CORS: CORSConfig{
				Enabled:          true,
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Owner-ID"},
				ExposedHeaders:   []string{"X-Request-ID"},
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			},
		},
		Database: DatabaseConfig{
			Path:            DefaultDBPath,
			WALMode:         true,
			CacheSize:       DefaultCacheSize,
			BusyTimeout:     DefaultBusyTimeout,
			ForeignKeys:     true,
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: 0, // No limit
		},
		Engine: EngineConfig{
			WorkspaceDir:        DefaultWorkspaceDir,
			Timeout:             DefaultExecutionTimeout,
			InstallTimeout:      DefaultInstallTimeout,
			CleanupDelay:        DefaultCleanupDelay,
			InstallDependencies: true,
			HistoryRetention:    DefaultHistoryRetention,
		},
		Hosted: HostedConfig{
			SchedulerEnabled: true,
			InvokeTimeout:    DefaultInvokeTimeout,
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			Format:    DefaultLogFormat,
			Caller:    false,
			Timestamp: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
