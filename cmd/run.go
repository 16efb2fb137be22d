package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/process"
)

var runNode string

var runCmd = &cobra.Command{
	Use:   "run <entry> [-- args...]",
	Short: "Build, watch and run a script with node",
	Long: `Build a script entry point for node, watch it, and run the compiled output
with node. The program is restarted every time the output changes; the old
process and its children are terminated first.

Arguments after -- are passed to the program.

Examples:
  hammer run server.ts                    # Build into dist, run node dist/server.js
  hammer run server.ts -- --port 8080     # Pass arguments to the program
  hammer run server.ts --node "node --inspect"`,
	Aliases: []string{"r"},
	RunE:    runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addBuildFlags(runCmd)
	addWatchFlags(runCmd)
	runCmd.Flags().StringVar(&runNode, "node", "node", "Command used to run the compiled entry")
}

func runRun(cmd *cobra.Command, args []string) error {
	entry, programArgs := splitArgs(cmd, args)
	if entry == "" {
		return herrors.NewConfigError("entry", "missing entry path")
	}
	paths, err := entries([]string{entry})
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	if platformUnset(cmd) {
		s.cfg.Build.Platform = "node"
	}

	p, err := s.pipeline(paths, true)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer dispose(ctx, s.logger, "pipeline", p.Dispose)

	if err := p.Build(ctx); err != nil {
		return err
	}
	asset, ok := p.Cache().Get(paths[0])
	if !ok || !asset.Compiled() {
		return herrors.NewConfigError("entry", fmt.Sprintf("%q is not a script", entry))
	}

	output, err := s.newWatcher(asset.TargetPath)
	if err != nil {
		return err
	}
	defer dispose(ctx, s.logger, "output watcher", output.Dispose)

	command := strings.Join(append([]string{runNode, quoteArg(asset.TargetPath)}, quoteArgs(programArgs)...), " ")
	supervisor := process.NewSupervisor(command, process.WithLogger(s.logger))
	defer dispose(ctx, s.logger, "process", supervisor.Dispose)

	s.printf("🚀 Running %s\n", command)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Watch(ctx)
	})
	g.Go(func() error {
		return supervisor.Run(ctx, output.Events())
	})

	return g.Wait()
}

// splitArgs separates the entry from the arguments after --.
func splitArgs(cmd *cobra.Command, args []string) (string, []string) {
	dash := cmd.ArgsLenAtDash()
	before, after := args, []string(nil)
	if dash >= 0 {
		before, after = args[:dash], args[dash:]
	}
	if len(before) == 0 {
		return "", after
	}

	return before[0], append(before[1:], after...)
}

// platformUnset reports whether no flag, environment variable or file chose
// a platform.
func platformUnset(cmd *cobra.Command) bool {
	if f := cmd.Flags().Lookup("platform"); f != nil && f.Changed {
		return false
	}
	if _, ok := os.LookupEnv("HAMMER_BUILD_PLATFORM"); ok {
		return false
	}

	return !viper.InConfig("build.platform")
}

func quoteArgs(args []string) []string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = quoteArg(arg)
	}

	return quoted
}

// quoteArg quotes arg for the platform shell when it needs it.
func quoteArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\"'\\$`&|;<>()*?[]{}!#~%") {
		return arg
	}
	if runtime.GOOS == "windows" {
		return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
	}

	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
