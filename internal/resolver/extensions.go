package resolver

import (
	"fmt"
	"path/filepath"
	"strings"

	herrors "github.com/conneroisu/hammer/internal/errors"
)

// ErrUnmappedExtension is returned when a compiled source has no output
// extension. Passing such a file through would write an output the page
// cannot load, so the pass fails instead.
var ErrUnmappedExtension = herrors.NewResolveError(herrors.ErrCodeUnmappedExtension, "no output extension for compiled source")

var defaultKinds = map[string]Kind{
	".html": KindHTML,
	".htm":  KindHTML,
	".ts":   KindScript,
	".tsx":  KindScript,
	".mts":  KindScript,
	".cts":  KindScript,
	".js":   KindScript,
	".jsx":  KindScript,
	".mjs":  KindScript,
	".cjs":  KindScript,
	".css":  KindStyle,
}

var defaultOutputs = map[string]string{
	".ts":  ".js",
	".tsx": ".js",
	".js":  ".js",
	".jsx": ".js",
	".mts": ".mjs",
	".mjs": ".mjs",
	".cts": ".js",
	".cjs": ".js",
	".css": ".css",
}

// extensionTable classifies source files and maps compiled sources to their
// output extension.
type extensionTable struct {
	kinds   map[string]Kind
	outputs map[string]string
}

func newExtensionTable() *extensionTable {
	t := &extensionTable{
		kinds:   make(map[string]Kind, len(defaultKinds)),
		outputs: make(map[string]string, len(defaultOutputs)),
	}
	for ext, kind := range defaultKinds {
		t.kinds[ext] = kind
	}
	for ext, out := range defaultOutputs {
		t.outputs[ext] = out
	}

	return t
}

func (t *extensionTable) classify(path string) Kind {
	if kind, ok := t.kinds[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}

	return KindFile
}

// output returns the output extension for a compiled source.
func (t *extensionTable) output(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	out, ok := t.outputs[ext]
	if !ok {
		return "", fmt.Errorf("%s (%q): %w", path, ext, ErrUnmappedExtension)
	}

	return out, nil
}

// OutputPath replaces the extension of a compiled source path with its
// output extension using the default table.
func OutputPath(path string) (string, error) {
	out, err := newExtensionTable().output(path)
	if err != nil {
		return "", err
	}

	return strings.TrimSuffix(path, filepath.Ext(path)) + out, nil
}
