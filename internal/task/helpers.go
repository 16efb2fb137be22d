package task

import (
	"fmt"

	"github.com/dop251/goja"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/hammer/internal/process"
)

type method = func(call goja.FunctionCall) goja.Value

func (rt *runtime) object(methods map[string]method) *goja.Object {
	obj := rt.vm.NewObject()
	for name, fn := range methods {
		_ = obj.Set(name, fn)
	}

	return obj
}

// done adapts an operation without a result.
func done(op func() error) func() (any, error) {
	return func() (any, error) {
		return nil, op()
	}
}

// fileHelper implements file(path).
func (rt *runtime) fileHelper(call goja.FunctionCall) goja.Value {
	path := rt.resolve(call.Argument(0).String())
	arg := func(c goja.FunctionCall, i int) string {
		v := c.Argument(i)
		if goja.IsUndefined(v) || goja.IsNull(v) {
			return ""
		}
		return v.String()
	}

	return rt.object(map[string]method{
		"path": func(goja.FunctionCall) goja.Value {
			return rt.vm.ToValue(path)
		},
		"read": func(goja.FunctionCall) goja.Value {
			return rt.async(func() (any, error) { return readFile(path) }, nil)
		},
		"json": func(goja.FunctionCall) goja.Value {
			return rt.async(func() (any, error) { return readFile(path) }, rt.parseJSON(path))
		},
		"write": func(c goja.FunctionCall) goja.Value {
			data := arg(c, 0)
			return rt.async(done(func() error { return writeFile(path, data) }), nil)
		},
		"append": func(c goja.FunctionCall) goja.Value {
			data := arg(c, 0)
			return rt.async(done(func() error { return appendFile(path, data) }), nil)
		},
		"prepend": func(c goja.FunctionCall) goja.Value {
			data := arg(c, 0)
			return rt.async(done(func() error { return prependFile(path, data) }), nil)
		},
		"create": func(goja.FunctionCall) goja.Value {
			return rt.async(done(func() error { return createFile(path) }), nil)
		},
		"delete": func(goja.FunctionCall) goja.Value {
			return rt.async(done(func() error { return deleteFile(path) }), nil)
		},
		"exists": func(goja.FunctionCall) goja.Value {
			return rt.async(func() (any, error) { return fileExists(path), nil }, nil)
		},
		"copy": func(c goja.FunctionCall) goja.Value {
			folder := rt.resolve(arg(c, 0))
			return rt.async(done(func() error { return copyFileInto(path, folder) }), nil)
		},
		"move": func(c goja.FunctionCall) goja.Value {
			folder := rt.resolve(arg(c, 0))
			return rt.async(done(func() error { return moveFileInto(path, folder) }), nil)
		},
		"rename": func(c goja.FunctionCall) goja.Value {
			name := arg(c, 0)
			return rt.async(done(func() error { return renameFile(path, name) }), nil)
		},
		"size": func(goja.FunctionCall) goja.Value {
			return rt.async(func() (any, error) { return fileSize(path) }, nil)
		},
		"hash": func(c goja.FunctionCall) goja.Value {
			algorithm := arg(c, 0)
			return rt.async(func() (any, error) { return hashFile(path, algorithm) }, nil)
		},
	})
}

func (rt *runtime) parseJSON(path string) func(any) (goja.Value, error) {
	return func(v any) (goja.Value, error) {
		parse, _ := goja.AssertFunction(rt.vm.Get("JSON").ToObject(rt.vm).Get("parse"))
		out, err := parse(goja.Undefined(), rt.vm.ToValue(v))
		if err != nil {
			return nil, fmt.Errorf("file.json: the file path '%s' failed to parse as json", path)
		}
		return out, nil
	}
}

// folderHelper implements folder(path).
func (rt *runtime) folderHelper(call goja.FunctionCall) goja.Value {
	path := rt.resolve(call.Argument(0).String())
	target := func(c goja.FunctionCall) string {
		return rt.resolve(c.Argument(0).String())
	}

	contents := func(goja.FunctionCall) goja.Value {
		return rt.object(map[string]method{
			"copy": func(c goja.FunctionCall) goja.Value {
				dst := target(c)
				return rt.async(done(func() error { return copyContents(path, dst) }), nil)
			},
			"move": func(c goja.FunctionCall) goja.Value {
				dst := target(c)
				return rt.async(done(func() error { return moveContents(path, dst) }), nil)
			},
		})
	}

	return rt.object(map[string]method{
		"path": func(goja.FunctionCall) goja.Value {
			return rt.vm.ToValue(path)
		},
		"contents": contents,
		"create": func(goja.FunctionCall) goja.Value {
			return rt.async(done(func() error { return createFolder(path) }), nil)
		},
		"delete": func(goja.FunctionCall) goja.Value {
			return rt.async(done(func() error { return deleteFolder(path) }), nil)
		},
		"exists": func(goja.FunctionCall) goja.Value {
			return rt.async(func() (any, error) { return folderExists(path), nil }, nil)
		},
		"add": func(c goja.FunctionCall) goja.Value {
			source := target(c)
			return rt.async(done(func() error { return addToFolder(path, source) }), nil)
		},
		"copy": func(c goja.FunctionCall) goja.Value {
			dst := target(c)
			return rt.async(done(func() error { return copyFolderInto(path, dst) }), nil)
		},
		"move": func(c goja.FunctionCall) goja.Value {
			dst := target(c)
			return rt.async(done(func() error { return moveFolderInto(path, dst) }), nil)
		},
		"rename": func(c goja.FunctionCall) goja.Value {
			name := c.Argument(0).String()
			return rt.async(done(func() error { return renameFolder(path, name) }), nil)
		},
		"size": func(goja.FunctionCall) goja.Value {
			return rt.async(func() (any, error) { return folderSize(path) }, nil)
		},
	})
}

// shellHelper implements shell(command, {exitcode}) and
// shell([commands...], {exitcode}). An array runs its commands in parallel
// and resolves to their exit codes.
func (rt *runtime) shellHelper(call goja.FunctionCall) goja.Value {
	expect := 0
	if opts := call.Argument(1); !goja.IsUndefined(opts) && !goja.IsNull(opts) {
		if code := opts.ToObject(rt.vm).Get("exitcode"); code != nil && !goja.IsUndefined(code) {
			expect = int(code.ToInteger())
		}
	}

	var commands []string
	parallel := false
	if obj, ok := call.Argument(0).(*goja.Object); ok && obj.ClassName() == "Array" {
		parallel = true
		if err := rt.vm.ExportTo(obj, &commands); err != nil {
			rt.throw(err)
		}
	} else {
		commands = []string{call.Argument(0).String()}
	}

	return rt.async(func() (any, error) {
		codes, err := rt.exec(commands, expect)
		if err != nil {
			return nil, err
		}
		if parallel {
			return codes, nil
		}
		return codes[0], nil
	}, nil)
}

func (rt *runtime) exec(commands []string, expect int) ([]int, error) {
	codes := make([]int, len(commands))

	var g errgroup.Group
	for i, command := range commands {
		g.Go(func() error {
			p, err := process.Start(rt.ctx, command,
				process.WithDir(rt.runner.dir),
				process.WithOutput(rt.runner.stdout, rt.runner.stderr),
				process.WithLogger(rt.runner.logger),
			)
			if err != nil {
				return fmt.Errorf("the command '%s' encountered an error: %w", command, err)
			}
			code, err := p.Wait()
			if err != nil {
				return fmt.Errorf("the command '%s' encountered an error: %w", command, err)
			}
			codes[i] = code
			if code != expect {
				return fmt.Errorf("the command '%s' ended with exitcode '%d', expected '%d'", command, code, expect)
			}
			return nil
		})
	}

	return codes, g.Wait()
}
