package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/scriptd/scriptd/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a scriptd config file",
	Long: `Write a scriptd.yaml config file with the default settings, ready to
edit. Defaults to the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")

	rootCmd.AddCommand(initCmd)
}

// configFileLayout mirrors the config structure with yaml tags so the
// generated file uses the same keys the loader reads.
type configFileLayout struct {
	Server struct {
		Host      string `yaml:"host"`
		Port      int    `yaml:"port"`
		PublicURL string `yaml:"public_url,omitempty"`
	} `yaml:"server"`
	Database struct {
		Path    string `yaml:"path"`
		WALMode bool   `yaml:"wal_mode"`
	} `yaml:"database"`
	Engine struct {
		WorkspaceDir        string `yaml:"workspace_dir"`
		Timeout             string `yaml:"timeout"`
		InstallTimeout      string `yaml:"install_timeout"`
		CleanupDelay        string `yaml:"cleanup_delay"`
		InstallDependencies bool   `yaml:"install_dependencies"`
	} `yaml:"engine"`
	Hosted struct {
		SchedulerEnabled bool   `yaml:"scheduler_enabled"`
		InvokeTimeout    string `yaml:"invoke_timeout"`
	} `yaml:"hosted"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	path := filepath.Join(dir, "scriptd.yaml")
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	data, err := yaml.Marshal(defaultLayout())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	log.Info().Str("path", path).Msg("Config file written")
	return nil
}

func defaultLayout() *configFileLayout {
	defaults := config.Default()

	var layout configFileLayout
	layout.Server.Host = defaults.Server.Host
	layout.Server.Port = defaults.Server.Port
	layout.Database.Path = defaults.Database.Path
	layout.Database.WALMode = defaults.Database.WALMode
	layout.Engine.WorkspaceDir = defaults.Engine.WorkspaceDir
	layout.Engine.Timeout = defaults.Engine.Timeout.String()
	layout.Engine.InstallTimeout = defaults.Engine.InstallTimeout.String()
	layout.Engine.CleanupDelay = defaults.Engine.CleanupDelay.String()
	layout.Engine.InstallDependencies = defaults.Engine.InstallDependencies
	layout.Hosted.SchedulerEnabled = defaults.Hosted.SchedulerEnabled
	layout.Hosted.InvokeTimeout = defaults.Hosted.InvokeTimeout.String()
	layout.Logging.Level = defaults.Logging.Level
	layout.Logging.Format = defaults.Logging.Format
	layout.Metrics.Enabled = defaults.Metrics.Enabled
	return &layout
}
