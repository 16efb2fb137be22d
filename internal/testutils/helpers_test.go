package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTempProject(t *testing.T) {
	projectDir := CreateTempProject(t)

	for name, content := range StandardProjectFiles {
		data, err := os.ReadFile(filepath.Join(projectDir, "src", name))
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := WriteFile(t, dir, "a/b/c.txt", "nested")

	assert.Equal(t, filepath.Join(dir, "a", "b", "c.txt"), path)
	assert.FileExists(t, path)
}

func TestTouch(t *testing.T) {
	path := WriteFile(t, t.TempDir(), "f.txt", "x")
	stamp := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	Touch(t, path, stamp)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(stamp))
}

func TestWaitForFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.txt")
	since := time.Now().Add(-time.Minute)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = os.WriteFile(path, []byte("done"), 0644)
	}()

	WaitForFile(t, path, since, 2*time.Second)
	assert.FileExists(t, path)
}

func TestSecurityTestCases(t *testing.T) {
	assert.NotEmpty(t, SecurityTestCases.PathTraversal)
	assert.NotEmpty(t, SecurityTestCases.CommandInjection)
}
