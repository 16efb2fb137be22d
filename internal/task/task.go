// Package task runs exported functions of a JavaScript or TypeScript task
// file. The file is bundled with esbuild and evaluated in an embedded goja
// runtime that provides file, folder and shell helpers.
package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"

	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/logging"
)

// TaskError reports a task that could not be found or that failed.
type TaskError struct {
	Task   string
	Reason string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Task, e.Reason)
}

// Option configures a Runner.
type Option func(*Runner)

// WithDir sets the directory helper paths are resolved against. Helpers
// cannot reach outside it. Defaults to the working directory.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithOutput redirects console output and shell output.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// Runner evaluates task files. Every run gets a fresh runtime.
type Runner struct {
	dir    string
	stdout io.Writer
	stderr io.Writer
	logger logging.Logger
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dir == "" {
		if wd, err := os.Getwd(); err == nil {
			r.dir = wd
		}
	}
	r.logger = r.logger.WithComponent("task")

	return r
}

// Run calls the function exported as name from file with args.
func Run(ctx context.Context, file, name string, args []string) error {
	return New().Run(ctx, file, name, args)
}

// Run calls the function exported as name from file with args and waits for
// any promise it returns to settle.
func (r *Runner) Run(ctx context.Context, file, name string, args []string) error {
	rt, exports, err := r.load(ctx, file)
	if err != nil {
		return err
	}
	defer rt.close()

	value := exports.Get(name)
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return &TaskError{
			Task:   name,
			Reason: fmt.Sprintf("no such task (available: %s)", strings.Join(taskNames(exports), ", ")),
		}
	}

	r.logger.Debug(ctx, "Running task", "task", name, "file", file, "args", args)

	params := make([]goja.Value, len(args))
	for i, arg := range args {
		params[i] = rt.vm.ToValue(arg)
	}

	result, err := fn(goja.Undefined(), params...)
	if err != nil {
		return &TaskError{Task: name, Reason: reason(err)}
	}

	if err := rt.drain(ctx); err != nil {
		return &TaskError{Task: name, Reason: err.Error()}
	}

	promise, ok := result.Export().(*goja.Promise)
	if !ok {
		return nil
	}
	switch promise.State() {
	case goja.PromiseStateRejected:
		return &TaskError{Task: name, Reason: promise.Result().String()}
	case goja.PromiseStatePending:
		return &TaskError{Task: name, Reason: "task returned a promise that never settled"}
	default:
		return nil
	}
}

// List returns the names of the functions file exports, sorted.
func (r *Runner) List(ctx context.Context, file string) ([]string, error) {
	rt, exports, err := r.load(ctx, file)
	if err != nil {
		return nil, err
	}
	defer rt.close()

	return taskNames(exports), nil
}

func (r *Runner) load(ctx context.Context, file string) (*runtime, *goja.Object, error) {
	path, err := filepath.Abs(file)
	if err != nil {
		return nil, nil, herrors.NewTaskError(herrors.ErrCodeTaskNotFound, "unable to find task file", err).WithPath(file)
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, nil, herrors.NewTaskError(herrors.ErrCodeTaskNotFound, "unable to find task file", err).WithPath(file)
	}

	op := logging.StartOperation(r.logger, "bundle")
	code, err := bundle(path)
	if err != nil {
		op.EndWithError(ctx, err)
		return nil, nil, err
	}
	op.End(ctx)

	rt := newRuntime(ctx, r, path)
	exports, err := rt.evaluate(code)
	if err != nil {
		rt.close()
		return nil, nil, &TaskError{Task: filepath.Base(path), Reason: reason(err)}
	}

	return rt, exports, nil
}

// bundle compiles the task file and its relative imports into one CommonJS
// script. Package imports stay as require calls for the runtime to reject.
func bundle(path string) (string, error) {
	result := api.Build(api.BuildOptions{
		EntryPoints: []string{path},
		Bundle:      true,
		Write:       false,
		Outdir:      "out",
		Platform:    api.PlatformNode,
		Packages:    api.PackagesExternal,
		Format:      api.FormatCommonJS,
		Target:      api.ESNext,
		LogLevel:    api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		detail := msg.Text
		if msg.Location != nil {
			detail = fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text)
		}
		return "", herrors.NewTaskError(herrors.ErrCodeTaskFailed, "unable to compile task file", errors.New(detail)).WithPath(path)
	}
	if len(result.OutputFiles) == 0 {
		return "", herrors.NewTaskError(herrors.ErrCodeTaskFailed, "compiler produced no output", nil).WithPath(path)
	}

	return string(result.OutputFiles[0].Contents), nil
}

func taskNames(exports *goja.Object) []string {
	var names []string
	for _, key := range exports.Keys() {
		if _, ok := goja.AssertFunction(exports.Get(key)); ok {
			names = append(names, key)
		}
	}
	sort.Strings(names)

	return names
}

// reason extracts the script-level message from an evaluation error.
func reason(err error) string {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return exc.Value().String()
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprintf("interrupted: %v", interrupted.Value())
	}

	return err.Error()
}
