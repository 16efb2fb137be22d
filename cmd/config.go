package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/hammer/internal/config"
	herrors "github.com/conneroisu/hammer/internal/errors"
)

var (
	configOutput string
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage hammer configuration",
	Long: `Manage hammer configuration files and settings.

Examples:
  hammer config init                   # Write .hammer.yml with the defaults
  hammer config init --output ci.yml   # Write to a custom file
  hammer config show                   # Show the effective configuration`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().StringVarP(&configOutput, "output", "o", config.FileName, "File to write")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")

	addBuildFlags(configShowCmd)
	addWatchFlags(configShowCmd)
	addServerFlags(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configOutput); err == nil && !configForce {
		return herrors.NewConfigError("output", fmt.Sprintf("%s already exists (use --force to overwrite)", configOutput))
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := config.Write(configOutput, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Wrote %s\n", configOutput)

	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	encoder := yaml.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return err
	}

	return encoder.Close()
}
