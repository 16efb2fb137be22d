package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// StandardProjectFiles is a small web project: one document referencing a
// module script, a stylesheet and an image.
var StandardProjectFiles = map[string]string{
	"index.html": `<!DOCTYPE html>
<html>
<head>
	<link rel="stylesheet" href="style.css">
	<script type="module" src="main.ts"></script>
</head>
<body>
	<img src="logo.png">
</body>
</html>
`,
	"main.ts":   `export const greeting: string = "hello";` + "\n",
	"style.css": "body { margin: 0; }\n",
	"logo.png":  "not really a png",
}

// CreateTempProject writes StandardProjectFiles under a "src" directory of a
// temporary project and returns the project root.
func CreateTempProject(t *testing.T) string {
	t.Helper()
	projectDir := t.TempDir()

	for name, content := range StandardProjectFiles {
		WriteFile(t, filepath.Join(projectDir, "src"), name, content)
	}

	return projectDir
}

// WriteFile writes content to dir/name, creating parent directories, and
// returns the written path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	return path
}

// Touch sets the modification time of path.
func Touch(t *testing.T, path string, modTime time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

// SecurityTestCases provides common security test vectors
var SecurityTestCases = struct {
	PathTraversal    []string
	CommandInjection []string
}{
	PathTraversal: []string{
		"../../../etc/passwd",
		"..\\..\\..\\windows\\system32\\config\\sam",
		"....//....//....//etc/passwd",
		"/./../../etc/passwd",
		"../../../../../etc/passwd",
	},
	CommandInjection: []string{
		"node; rm -rf /",
		"node && rm -rf /",
		"node | rm -rf /",
		"node`rm -rf /`",
		"node$(rm -rf /)",
		"node\nrm -rf /",
	},
}

// AssertFilePermissions checks that files have the expected permissions
func AssertFilePermissions(t *testing.T, path string, expectedMode os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)

	actualMode := info.Mode()
	require.Equal(t, expectedMode, actualMode&os.FileMode(0777),
		"File %s has incorrect permissions: got %o, want %o",
		path, actualMode&os.FileMode(0777), expectedMode)
}

// WaitForFile waits for a file to exist with a modification time after since.
func WaitForFile(t *testing.T, filePath string, since time.Time, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(since) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not written within %v", filePath, timeout)
}
