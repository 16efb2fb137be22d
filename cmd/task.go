package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/hammer/internal/task"
	"github.com/conneroisu/hammer/internal/validation"
)

var taskList bool

var taskCmd = &cobra.Command{
	Use:   "task <name> [args...]",
	Short: "Run a function exported from a task file",
	Long: `Run a function exported from a JavaScript or TypeScript task file. The file
is compiled and evaluated with file, folder and shell helpers available; the
remaining arguments are passed to the function as strings.

Examples:
  hammer task build                       # Run build() from tasks.js
  hammer task deploy production --file tasks.ts
  hammer task --list                      # List the exported functions`,
	Aliases: []string{"t"},
	RunE:    runTask,
}

func init() {
	rootCmd.AddCommand(taskCmd)

	taskCmd.Flags().StringP("file", "f", "tasks.js", "Task file")
	taskCmd.Flags().BoolVar(&taskList, "list", false, "List the tasks the file exports")
}

func runTask(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	file := s.cfg.Task.File
	runner := task.New(
		task.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		task.WithLogger(s.logger),
	)

	if taskList || len(args) == 0 {
		names, err := runner.List(cmd.Context(), file)
		if err != nil {
			return err
		}
		s.printf("📋 Tasks in %s: %s\n", file, strings.Join(names, ", "))
		return nil
	}

	if err := validation.ValidateTaskName(args[0]); err != nil {
		return err
	}

	return runner.Run(cmd.Context(), file, args[0], args[1:])
}
