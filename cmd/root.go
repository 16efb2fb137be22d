// Package cmd provides the command-line interface for hammer with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	Settings are read with clear precedence:
//	1. Command-line flags (--dist, --port, etc.) - highest priority
//	2. Individual environment variables (HAMMER_SERVER_PORT, etc.)
//	3. The configuration file: --config, else HAMMER_CONFIG_FILE, else .hammer.yml
//	4. Built-in defaults - lowest priority
//
// Environment Variables:
//
//	HAMMER_CONFIG_FILE: Path to custom configuration file
//	HAMMER_BUILD_DIST: Override the output directory
//	HAMMER_SERVER_PORT: Override server port
//	And the rest following the HAMMER_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/hammer/internal/config"
	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hammer",
	Short: "Incremental build and live-reload tool for web and script projects",
	Long: `Hammer builds HTML, script and style entry points into an output directory,
rebuilding only what changed and reloading connected browsers.

Key Features:
  • Reference discovery from HTML markup
  • Incremental rebuilds driven by file watching
  • Live-reload development server
  • Process restarts for node programs and shell commands
  • Scriptable tasks

Quick Start:
  hammer build index.html             Build once into dist
  hammer serve index.html             Build, watch and serve on :5000
  hammer run index.ts -- --verbose    Build, watch and run with node
  hammer monitor src --command "go test ./..."
  hammer task build --file tasks.js   Run an exported task function`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. SIGINT and SIGTERM cancel the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, herrors.FormatSuggestions(fmt.Sprintf("❌ %v", err), herrors.Suggest(err)))
	}

	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .hammer.yml, can also use HAMMER_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfigErr holds a failure to read the configuration file. Commands
// report it when they load the configuration.
var initConfigErr error

// initConfig points viper at the configuration file and the HAMMER_
// environment. A missing default file is not an error.
func initConfig() {
	used, err := config.Init(viper.GetViper(), cfgFile)
	if err != nil {
		initConfigErr = err
		return
	}
	if used != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
}

// loadConfig binds the flags cmd defines to their configuration keys and
// loads the merged configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if initConfigErr != nil {
		return nil, initConfigErr
	}
	if err := bindFlags(viper.GetViper(), cmd); err != nil {
		return nil, err
	}

	return config.Load()
}

// newLogger builds the logger selected by --log-level and --log-format.
func newLogger() (logging.Logger, error) {
	level, err := logging.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, herrors.NewConfigError("log-level", err.Error())
	}

	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = viper.GetString("log-format")
	cfg.Component = "hammer"

	return logging.NewLogger(cfg), nil
}
