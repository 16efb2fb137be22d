package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys maps flag names to the configuration keys they override. Flags
// are bound when a command runs so commands sharing a flag name never
// shadow each other.
var flagKeys = map[string]string{
	"dist":          "build.dist",
	"target":        "build.target",
	"platform":      "build.platform",
	"external":      "build.external",
	"minify":        "build.minify",
	"sourcemap":     "build.sourcemap",
	"esm":           "build.esm",
	"port":          "server.port",
	"host":          "server.host",
	"cors":          "server.cors",
	"sab":           "server.sab",
	"debounce":      "watch.debounce",
	"poll":          "watch.poll",
	"poll-interval": "watch.poll_interval",
	"file":          "task.file",
}

// addBuildFlags adds the compiler flags shared by every building command.
func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().String("dist", "dist", "Output directory")
	cmd.Flags().StringSlice("target", []string{"esnext"}, "Compile targets, e.g. es2020,chrome90")
	cmd.Flags().String("platform", "browser", "Compile platform (browser, node, neutral)")
	cmd.Flags().StringArray("external", nil, "Module left unbundled (repeatable)")
	cmd.Flags().Bool("minify", false, "Minify output")
	cmd.Flags().Bool("sourcemap", false, "Emit linked source maps")
	cmd.Flags().Bool("esm", false, "Emit ES modules for every script")
}

// addWatchFlags adds the watcher flags.
func addWatchFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("debounce", 0, "Quiet period before a change is reported (default 100ms)")
	cmd.Flags().Bool("poll", false, "Poll the file system instead of using native events")
	cmd.Flags().Duration("poll-interval", 0, "Polling interval (default 500ms)")
}

// addServerFlags adds the reload server flags.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 5000, "Port to serve on")
	cmd.Flags().String("host", "localhost", "Host to bind to")
	cmd.Flags().Bool("cors", false, "Send cross-origin headers")
	cmd.Flags().Bool("sab", false, "Send headers enabling SharedArrayBuffer")
}

// bindFlags binds every flag of cmd that has a configuration key.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}

	return nil
}
