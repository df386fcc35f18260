package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scriptd/scriptd/internal/config"
	"github.com/scriptd/scriptd/internal/database"
	"github.com/scriptd/scriptd/internal/engine"
	"github.com/scriptd/scriptd/internal/hosted"
	"github.com/scriptd/scriptd/internal/server"
)

var (
	servePort int
	serveHost string
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scriptd server",
	Long: `Start the scriptd HTTP server.

The server exposes the execution API, hosted script endpoints, health, and
metrics, and runs the background scheduler for hosted scripts.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", config.DefaultHost, "Host to bind to")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
	} else {
		cfg, err = config.LoadWithDefaults()
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}

	configureLogging(&cfg.Logging)

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open database")
		return err
	}
	defer db.Close()

	manager := engine.NewManager(&cfg.Engine, engine.NewStore(db))
	hostedSvc := hosted.NewService(&cfg.Hosted, db, manager)
	srv := server.New(cfg, db, manager, hostedSvc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Start(ctx)
	if err := hostedSvc.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start hosted script service")
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("url", cfg.Server.BaseURL()).
		Msg("Server started")

	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}

	hostedSvc.Stop()
	manager.Shutdown()

	return nil
}

// configureLogging applies the loaded logging config to the global logger.
func configureLogging(cfg *config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logCtx := logger.With()
	if cfg.Timestamp {
		logCtx = logCtx.Timestamp()
	}
	if cfg.Caller {
		logCtx = logCtx.Caller()
	}
	log.Logger = logCtx.Logger()
}
