package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/version"
)

var (
	versionFormat   string
	versionDetailed bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for hammer including the release, the commit it
was built from, and the bundled esbuild and goja versions.

Examples:
  hammer version                 # Show short version
  hammer version --detailed      # Show detailed version info
  hammer version --format json   # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	info := version.Get()
	out := cmd.OutOrStdout()

	switch versionFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "text":
		if versionDetailed {
			fmt.Fprintln(out, info.Detailed())
		} else {
			fmt.Fprintln(out, info.Short())
		}
		return nil
	default:
		return herrors.NewConfigError("format", fmt.Sprintf("unsupported format %q (supported: text, json)", versionFormat))
	}
}
