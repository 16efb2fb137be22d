package task

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"github.com/conneroisu/hammer/internal/channel"
	"github.com/conneroisu/hammer/internal/validation"
)

// runtime is one goja instance plus the queue that hands results of helper
// work back to the goroutine owning the instance.
type runtime struct {
	ctx    context.Context
	vm     *goja.Runtime
	runner *Runner
	file   string

	sender    *channel.Sender[func()]
	callbacks *channel.Receiver[func()]
	pending   int
	stop      func() bool
}

func newRuntime(ctx context.Context, runner *Runner, file string) *runtime {
	sender, callbacks := channel.New[func()]()
	rt := &runtime{
		ctx:       ctx,
		vm:        goja.New(),
		runner:    runner,
		file:      file,
		sender:    sender,
		callbacks: callbacks,
	}
	rt.stop = context.AfterFunc(ctx, func() {
		rt.vm.Interrupt(ctx.Err())
	})

	return rt
}

func (rt *runtime) close() {
	rt.stop()
	rt.sender.End()
}

// evaluate runs the bundled script and returns what it exported.
func (rt *runtime) evaluate(code string) (*goja.Object, error) {
	vm := rt.vm

	module := vm.NewObject()
	exports := vm.NewObject()
	_ = module.Set("exports", exports)

	globals := map[string]any{
		"module":     module,
		"exports":    exports,
		"__filename": rt.file,
		"__dirname":  filepath.Dir(rt.file),
		"console":    rt.console(),
		"require":    rt.require,
		"file":       rt.fileHelper,
		"folder":     rt.folderHelper,
		"shell":      rt.shellHelper,
	}
	for name, value := range globals {
		if err := vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("set %s: %w", name, err)
		}
	}

	if _, err := vm.RunScript(rt.file, code); err != nil {
		return nil, err
	}
	if err := rt.drain(rt.ctx); err != nil {
		return nil, err
	}

	return module.Get("exports").ToObject(vm), nil
}

// async runs work off the runtime goroutine and returns a promise settled
// with its result. The returned promise also has an exec method returning
// itself, so both `await file(p).create()` and
// `await file(p).create().exec()` work.
func (rt *runtime) async(work func() (any, error), convert func(any) (goja.Value, error)) goja.Value {
	if convert == nil {
		convert = func(v any) (goja.Value, error) { return rt.vm.ToValue(v), nil }
	}

	promise, resolve, reject := rt.vm.NewPromise()
	rt.pending++
	go func() {
		value, err := work()
		rt.sender.Send(func() {
			if err != nil {
				reject(rt.newError(err.Error()))
				return
			}
			converted, err := convert(value)
			if err != nil {
				reject(rt.newError(err.Error()))
				return
			}
			resolve(converted)
		})
	}()

	obj := rt.vm.ToValue(promise).ToObject(rt.vm)
	_ = obj.Set("exec", func(goja.FunctionCall) goja.Value { return obj })

	return obj
}

// drain settles helper promises until none are outstanding. Promise jobs
// run as part of each settle.
func (rt *runtime) drain(ctx context.Context) error {
	for rt.pending > 0 {
		callback, ok, err := rt.callbacks.Receive(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		rt.pending--
		callback()
	}

	return nil
}

func (rt *runtime) newError(message string) goja.Value {
	obj, err := rt.vm.New(rt.vm.Get("Error"), rt.vm.ToValue(message))
	if err != nil {
		return rt.vm.ToValue(message)
	}

	return obj
}

// throw raises err as a script exception.
func (rt *runtime) throw(err error) {
	panic(rt.newError(err.Error()))
}

func (rt *runtime) resolve(p string) string {
	full, err := validation.ResolveWithin(rt.runner.dir, p)
	if err != nil {
		rt.throw(err)
	}

	return full
}

func (rt *runtime) require(call goja.FunctionCall) goja.Value {
	rt.throw(fmt.Errorf("module %q is not available to tasks", call.Argument(0).String()))

	return goja.Undefined()
}

func (rt *runtime) console() *goja.Object {
	obj := rt.vm.NewObject()
	log := func(w io.Writer) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = rt.format(arg)
			}
			fmt.Fprintln(w, strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	_ = obj.Set("log", log(rt.runner.stdout))
	_ = obj.Set("info", log(rt.runner.stdout))
	_ = obj.Set("debug", log(rt.runner.stdout))
	_ = obj.Set("warn", log(rt.runner.stderr))
	_ = obj.Set("error", log(rt.runner.stderr))

	return obj
}

// format renders a console argument: objects as JSON, everything else with
// its string conversion.
func (rt *runtime) format(v goja.Value) string {
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() == "Error" {
		return v.String()
	}
	if _, callable := goja.AssertFunction(v); callable {
		return v.String()
	}

	stringify, _ := goja.AssertFunction(rt.vm.Get("JSON").ToObject(rt.vm).Get("stringify"))
	out, err := stringify(goja.Undefined(), v)
	if err != nil || goja.IsUndefined(out) {
		return v.String()
	}

	return out.String()
}
