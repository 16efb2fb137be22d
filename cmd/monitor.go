package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/hammer/internal/process"
	"github.com/conneroisu/hammer/internal/validation"
)

var monitorCommand string

var monitorCmd = &cobra.Command{
	Use:   "monitor <paths...> --command <cmd>",
	Short: "Run a shell command and restart it on change",
	Long: `Run a shell command and restart it whenever a file under the given paths
changes. The running command and its children are terminated before the next
one starts.

Examples:
  hammer monitor src --command "go run ./cmd/server"
  hammer monitor . --command "npm test" --debounce 500ms`,
	Aliases: []string{"m"},
	RunE:    runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	addWatchFlags(monitorCmd)
	monitorCmd.Flags().StringVarP(&monitorCommand, "command", "c", "", "Shell command to run")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if err := validation.ValidateCommand(monitorCommand); err != nil {
		return err
	}
	paths, err := entries(args)
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	w, err := s.newWatcher(paths...)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer dispose(ctx, s.logger, "watcher", w.Dispose)

	s.printf("👀 Monitoring %d path(s), running %s\n", len(paths), monitorCommand)

	supervisor := process.NewSupervisor(monitorCommand, process.WithLogger(s.logger))

	return supervisor.Run(ctx, w.Events())
}
