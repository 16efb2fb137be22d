// Package validation checks user-supplied paths, ports and commands before
// they reach the file system or a shell.
package validation

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	herrors "github.com/conneroisu/hammer/internal/errors"
)

// Platforms accepted by the compiler.
var Platforms = []string{"browser", "node", "neutral"}

var taskNamePattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ContainedPath maps a request path onto a file under root. The request is
// cleaned as a rooted slash path first, so ".." segments cannot climb above
// root; the joined result is checked again in case the platform separator
// differs from "/".
func ContainedPath(root, request string) (string, error) {
	if strings.ContainsRune(request, 0) {
		return "", herrors.NewSecurityError(herrors.ErrCodePathTraversal, "path contains NUL byte")
	}

	cleaned := path.Clean("/" + request)
	full := filepath.Join(root, filepath.FromSlash(cleaned))

	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", herrors.NewSecurityError(herrors.ErrCodePathTraversal,
			fmt.Sprintf("path escapes %s", root)).WithPath(request)
	}

	return full, nil
}

// ResolveWithin resolves p against root and rejects results outside root.
// Unlike ContainedPath, escaping paths are an error rather than clamped.
func ResolveWithin(root, p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", herrors.NewSecurityError(herrors.ErrCodePathTraversal, "path contains NUL byte")
	}

	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, full)
	}
	full = filepath.Clean(full)

	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", herrors.NewSecurityError(herrors.ErrCodePathTraversal,
			fmt.Sprintf("path is outside %s", root)).WithPath(p)
	}

	return full, nil
}

// ValidatePath validates a file path to prevent path traversal attacks
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("path contains NUL byte")
	}

	// Check for path traversal attempts
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal detected: %s", p)
		}
	}

	return nil
}

// ValidatePort checks that port is a usable TCP port. Zero asks the kernel
// for a free one.
func ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return herrors.NewConfigError("port", fmt.Sprintf("must be between 0 and 65535, got %d", port))
	}

	return nil
}

// ValidatePlatform checks the compiler platform name.
func ValidatePlatform(platform string) error {
	for _, p := range Platforms {
		if p == platform {
			return nil
		}
	}

	return herrors.NewConfigError("platform",
		fmt.Sprintf("must be one of %s, got %q", strings.Join(Platforms, ", "), platform))
}

// ValidateCommand checks a shell command line for the monitor command. The
// line is run by the platform shell, so metacharacters are allowed; empty
// commands and control characters are not.
func ValidateCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return herrors.NewConfigError("command", "missing command")
	}
	for _, r := range command {
		if r == 0 || r == '\n' || r == '\r' {
			return herrors.NewConfigError("command", "command contains control characters")
		}
	}

	return nil
}

// ValidateTaskName checks that name can be an exported function name.
func ValidateTaskName(name string) error {
	if name == "" {
		return herrors.NewConfigError("task", "missing task name")
	}
	if !taskNamePattern.MatchString(name) {
		return herrors.NewConfigError("task", fmt.Sprintf("invalid task name %q", name))
	}

	return nil
}
