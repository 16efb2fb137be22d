package cmd

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <paths...>",
	Short: "Build entry points and rebuild on change",
	Long: `Build the given entry points, then watch them and every asset they reference,
rebuilding only what changed until interrupted.

Examples:
  hammer watch index.html                 # Build into dist and keep watching
  hammer watch src --poll                 # Poll instead of native file events
  hammer watch index.html --debounce 250ms`,
	Aliases: []string{"w"},
	RunE:    runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addBuildFlags(watchCmd)
	addWatchFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	paths, err := entries(args)
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	p, err := s.pipeline(paths, true)
	if err != nil {
		return err
	}
	defer dispose(ctx, s.logger, "pipeline", p.Dispose)

	s.printf("👀 Watching %d entry point(s), output in %s\n", len(paths), s.cfg.Build.Dist)

	return p.Watch(ctx)
}
