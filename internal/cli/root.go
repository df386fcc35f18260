// Package cli implements the scriptd command line interface.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "scriptd",
	Short: "A script execution and hosting daemon",
	Long: `Scriptd executes user-supplied Python and JavaScript scripts as managed
OS processes with parameter substitution, automatic dependency installation,
live log capture, and timeouts.

Scripts can also be saved as hosted endpoints, invocable over HTTP by a
stable slug or fired automatically on a cron schedule.

Start the server:
  scriptd serve

Initialize a config file:
  scriptd init`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./scriptd.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// setupLogging configures zerolog before any command runs. The serve command
// reconfigures from the loaded config afterwards.
func setupLogging() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}
