//go:build !windows

package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/hammer/internal/testutils"
)

func TestShellHelper(t *testing.T) {
	dir := t.TempDir()
	file := testutils.WriteFile(t, dir, "tasks.js", `
export async function ok() {
  const code = await shell('echo from-shell > shell.txt').exec()
  const codes = await shell(['true', 'exit 3'], { exitcode: 3 }).catch(e => e.message)
  console.log(code, JSON.stringify(codes))
}
export async function fails() {
  await shell('exit 2')
}
export async function parallel() {
  console.log(JSON.stringify(await shell(['exit 0', 'exit 0'])))
}
`)
	r, out := newRunner(t, dir)

	require.NoError(t, r.Run(context.Background(), file, "ok", nil))
	data, err := os.ReadFile(filepath.Join(dir, "shell.txt"))
	require.NoError(t, err)
	assert.Equal(t, "from-shell\n", string(data))
	assert.Contains(t, out.String(), "0 \"the command 'true' ended with exitcode '0', expected '3'\"")

	out.Reset()
	require.NoError(t, r.Run(context.Background(), file, "parallel", nil))
	assert.Equal(t, "[0,0]\n", out.String())

	err = r.Run(context.Background(), file, "fails", nil)
	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Reason, "ended with exitcode '2', expected '0'")
}
