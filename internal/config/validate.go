package config

import "fmt"

// Validate checks a Config for invalid or inconsistent values.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be between 1 and 65535, got %d", ErrInvalidConfig, cfg.Server.Port)
	}

	if cfg.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}

	if cfg.Engine.WorkspaceDir == "" {
		return fmt.Errorf("%w: engine.workspace_dir is required", ErrInvalidConfig)
	}

	if cfg.Engine.Timeout <= 0 {
		return fmt.Errorf("%w: engine.timeout must be positive", ErrInvalidConfig)
	}

	if cfg.Engine.InstallTimeout <= 0 {
		return fmt.Errorf("%w: engine.install_timeout must be positive", ErrInvalidConfig)
	}

	if cfg.Hosted.InvokeTimeout <= 0 {
		return fmt.Errorf("%w: hosted.invoke_timeout must be positive", ErrInvalidConfig)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level must be one of debug, info, warn, error", ErrInvalidConfig)
	}

	switch cfg.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format must be console or json", ErrInvalidConfig)
	}

	return nil
}
