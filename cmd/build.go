package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build <paths...>",
	Short: "Build entry points once",
	Long: `Build the given HTML, script, style or folder entry points into the output
directory once and exit. Assets referenced from HTML documents are discovered
and compiled or copied alongside them.

Examples:
  hammer build index.html                     # Build into dist
  hammer build index.html --dist public       # Build into public
  hammer build src --minify --sourcemap       # Build every file under src
  hammer build app.ts --platform node --target node18`,
	Aliases: []string{"b"},
	RunE:    runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	addBuildFlags(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := cmd.Context()

	paths, err := entries(args)
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	p, err := s.pipeline(paths, false)
	if err != nil {
		return err
	}
	defer dispose(ctx, s.logger, "pipeline", p.Dispose)

	s.printf("🔨 Building %d entry point(s) into %s\n", len(paths), s.cfg.Build.Dist)
	if err := p.Build(ctx); err != nil {
		return err
	}
	s.summary(start)

	return nil
}
