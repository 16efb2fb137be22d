package task

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/testutils"
)

func newRunner(t *testing.T, dir string) (*Runner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return New(WithDir(dir), WithOutput(&out, &out)), &out
}

func TestRunExportedFunction(t *testing.T) {
	dir := t.TempDir()
	file := testutils.WriteFile(t, dir, "tasks.ts", `
export function greet(name: string, punctuation = '!') {
  console.log('hello', name + punctuation, { n: 1 })
}
`)
	r, out := newRunner(t, dir)

	require.NoError(t, r.Run(context.Background(), file, "greet", []string{"world"}))
	assert.Equal(t, "hello world! {\"n\":1}\n", out.String())
}

func TestRunProvidesFileGlobals(t *testing.T) {
	dir := t.TempDir()
	file := testutils.WriteFile(t, dir, "scripts/tasks.js", `
exports.where = () => console.log(__filename, __dirname)
`)
	r, out := newRunner(t, dir)

	require.NoError(t, r.Run(context.Background(), file, "where", nil))
	assert.Equal(t, file+" "+filepath.Dir(file)+"\n", out.String())
}

func TestUnknownTaskListsAvailable(t *testing.T) {
	dir := t.TempDir()
	file := testutils.WriteFile(t, dir, "tasks.js", `
export function build() {}
export async function clean() {}
export const version = '1.0.0'
`)
	r, _ := newRunner(t, dir)

	err := r.Run(context.Background(), file, "deploy", nil)
	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "deploy", te.Task)
	assert.Contains(t, te.Reason, "build, clean")
	assert.NotContains(t, te.Reason, "version")

	names, err := r.List(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "clean"}, names)
}

func TestMissingTaskFile(t *testing.T) {
	r, _ := newRunner(t, t.TempDir())

	err := r.Run(context.Background(), "does-not-exist.js", "build", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to find task file")

	var he *herrors.HammerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, herrors.ErrCodeTaskNotFound, he.Code)
}

func TestCompileError(t *testing.T) {
	dir := t.TempDir()
	file := testutils.WriteFile(t, dir, "tasks.ts", "export function broken( {\n")
	r, _ := newRunner(t, dir)

	err := r.Run(context.Background(), file, "broken", nil)
	var he *herrors.HammerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, herrors.ErrCodeTaskFailed, he.Code)
}

func TestThrownAndRejectedErrors(t *testing.T) {
	dir := t.TempDir()
	file := testutils.WriteFile(t, dir, "tasks.js", `
export function fails() { throw new Error('boom') }
export async function rejects() {
  await Promise.resolve()
  throw new Error('async boom')
}
export function top() {}
`)
	r, _ := newRunner(t, dir)

	tests := []struct {
		task   string
		reason string
	}{
		{"fails", "Error: boom"},
		{"rejects", "Error: async boom"},
	}
	for _, tt := range tests {
		t.Run(tt.task, func(t *testing.T) {
			err := r.Run(context.Background(), file, tt.task, nil)
			var te *TaskError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.task, te.Task)
			assert.Contains(t, te.Reason, tt.reason)
		})
	}

	assert.NoError(t, r.Run(context.Background(), file, "top", nil))
}

func TestTopLevelEvaluationError(t *testing.T) {
	dir := t.TempDir()
	file := testutils.WriteFile(t, dir, "tasks.js", "throw new Error('load failure')\n")
	r, _ := newRunner(t, dir)

	err := r.Run(context.Background(), file, "any", nil)
	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "tasks.js", te.Task)
	assert.Contains(t, te.Reason, "load failure")
}

func TestRequireIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	file := testutils.WriteFile(t, dir, "tasks.js", `
export function load() { return require('left-pad') }
`)
	r, _ := newRunner(t, dir)

	err := r.Run(context.Background(), file, "load", nil)
	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "load", te.Task)
	assert.Contains(t, te.Reason, `module "left-pad" is not available`)

	imported := testutils.WriteFile(t, dir, "imports.js", `
import pad from 'left-pad'
export function build() { return pad('x', 3) }
`)
	err = r.Run(context.Background(), imported, "build", nil)
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "imports.js", te.Task)
	assert.Contains(t, te.Reason, "left-pad")
}

func TestFileHelper(t *testing.T) {
	dir := t.TempDir()
	file := testutils.WriteFile(t, dir, "tasks.js", `
export async function files() {
  const f = file('out/notes.txt')
  console.log(await f.exists())
  await f.create().exec()
  await f.write('world')
  await f.prepend('hello ')
  await f.append('!')
  console.log(await f.read(), await f.size())
  console.log(await f.hash('sha256'))
  await f.copy('backup')
  await f.rename('renamed.txt')
  await file('config.json').write('{"port": 5000}')
  const config = await file('config.json').json()
  console.log(config.port)
  await file('backup/notes.txt').delete()
  console.log(await file('backup/notes.txt').exists())
}
`)
	r, out := newRunner(t, dir)

	require.NoError(t, r.Run(context.Background(), file, "files", nil))
	assert.Equal(t,
		"false\nhello world! 12\n"+
			"7509e5bda0c762d2bac7f90d758b5b2263fa01ccbc542ab5e3df163be08e6ca9\n"+
			"5000\nfalse\n",
		out.String())

	data, err := os.ReadFile(filepath.Join(dir, "out", "renamed.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world!", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "out", "notes.txt"))
}

func TestFileHelperErrors(t *testing.T) {
	dir := t.TempDir()
	file := testutils.WriteFile(t, dir, "tasks.js", `
export async function missing() { await file('nope.txt').read() }
export async function escape() { await file('../outside.txt').write('x') }
export async function badJSON() {
  await file('bad.json').write('{')
  await file('bad.json').json()
}
`)
	r, _ := newRunner(t, dir)

	tests := []struct {
		task   string
		reason string
	}{
		{"missing", "does not exist"},
		{"escape", "outside"},
		{"badJSON", "failed to parse as json"},
	}
	for _, tt := range tests {
		t.Run(tt.task, func(t *testing.T) {
			err := r.Run(context.Background(), file, tt.task, nil)
			var te *TaskError
			require.ErrorAs(t, err, &te)
			assert.Contains(t, te.Reason, tt.reason)
		})
	}
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "outside.txt"))
}

func TestFolderHelper(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFile(t, dir, "assets/img/logo.png", "png")
	testutils.WriteFile(t, dir, "assets/readme.md", "readme")
	testutils.WriteFile(t, dir, "license", "MIT")
	file := testutils.WriteFile(t, dir, "tasks.js", `
export async function folders() {
  await folder('target').delete().exec()
  await folder('target').create().exec()
  await folder('target').add('assets')
  await folder('target').add('license')
  await folder('target').add('missing')
  console.log(await folder('target').exists(), await folder('target').size())
  await folder('assets').contents().copy('flat')
  await folder('flat').rename('flattened')
  console.log(await folder('flat').exists(), await folder('flattened').exists())
}
`)
	r, out := newRunner(t, dir)

	require.NoError(t, r.Run(context.Background(), file, "folders", nil))
	assert.Equal(t, "true 12\nfalse true\n", out.String())

	assert.FileExists(t, filepath.Join(dir, "target", "assets", "img", "logo.png"))
	assert.FileExists(t, filepath.Join(dir, "target", "license"))
	assert.FileExists(t, filepath.Join(dir, "flattened", "img", "logo.png"))
	assert.FileExists(t, filepath.Join(dir, "flattened", "readme.md"))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	file := testutils.WriteFile(t, dir, "tasks.js", `
export function spin() { for (;;) {} }
`)
	r, _ := newRunner(t, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := r.Run(ctx, file, "spin", nil)
	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Reason, "interrupted")
}
