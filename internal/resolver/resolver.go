// Package resolver discovers the set of assets reachable from a list of entry
// paths. HTML documents are scanned for src and href references, directories
// are walked, and every file found is mapped to a target path in the output
// tree.
package resolver

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/conneroisu/hammer/internal/logging"
)

// Resolver maps source files to assets under a target directory.
type Resolver struct {
	target     string
	extensions *extensionTable
	logger     logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for skipped references.
func WithLogger(logger logging.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger.WithComponent("resolver")
	}
}

// WithKind classifies files with ext as kind. Classifying an extension as a
// script or style without an output extension makes resolution fail with
// ErrUnmappedExtension.
func WithKind(ext string, kind Kind) Option {
	return func(r *Resolver) {
		r.extensions.kinds[normalizeExt(ext)] = kind
	}
}

// WithOutputExtension sets the output extension of a compiled source extension.
func WithOutputExtension(ext, output string) Option {
	return func(r *Resolver) {
		r.extensions.outputs[normalizeExt(ext)] = normalizeExt(output)
	}
}

// New creates a resolver writing targets under the target directory.
func New(target string, opts ...Option) *Resolver {
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = filepath.Clean(target)
	}

	r := &Resolver{
		target:     abs,
		extensions: newExtensionTable(),
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Target returns the absolute output directory.
func (r *Resolver) Target() string {
	return r.target
}

// Resolve lazily yields every asset reachable from paths. Referenced assets are
// yielded before the HTML document referencing them. Each call starts with an
// empty visited set. The sequence stops after the first error.
func (r *Resolver) Resolve(paths []string) iter.Seq2[Asset, error] {
	return func(yield func(Asset, error) bool) {
		entries := make([]string, 0, len(paths))
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				yield(Asset{}, fmt.Errorf("resolving %s: %w", p, err))
				return
			}
			entries = append(entries, abs)
		}

		w := &walk{
			resolver: r,
			base:     basePath(entries),
			visited:  make(map[string]struct{}),
			modules:  r.moduleSources(entries),
			yield:    yield,
		}
		for _, entry := range entries {
			if !w.any(entry) {
				return
			}
		}
	}
}

// Collect drains a resolution into a slice.
func Collect(seq iter.Seq2[Asset, error]) ([]Asset, error) {
	var assets []Asset
	for asset, err := range seq {
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}

	return assets, nil
}

// walk holds the state of one resolution pass.
type walk struct {
	resolver *Resolver
	base     string
	visited  map[string]struct{}
	// modules holds every source referenced from a module script tag in
	// any reachable document, so the flag does not depend on visit order.
	modules map[string]struct{}
	yield   func(Asset, error) bool
}

// any resolves one path. It returns false once the consumer stops or an error
// has been yielded.
func (w *walk) any(path string) bool {
	if _, seen := w.visited[path]; seen {
		return true
	}
	w.visited[path] = struct{}{}

	if isWithin(w.resolver.target, path) {
		return true
	}

	info, err := os.Stat(path)
	if err != nil {
		return true
	}

	switch {
	case info.IsDir():
		return w.directory(path)
	case !info.Mode().IsRegular():
		return true
	}

	switch kind := w.resolver.extensions.classify(path); kind {
	case KindHTML:
		return w.html(path, info)
	case KindScript, KindStyle:
		return w.compiled(path, info, kind)
	default:
		return w.yield(Asset{
			Kind:       KindFile,
			SourcePath: path,
			TargetPath: w.targetFor(path),
			Timestamp:  info.ModTime(),
		}, nil)
	}
}

func (w *walk) directory(path string) bool {
	entries, err := os.ReadDir(path)
	if err != nil {
		w.resolver.logger.Warn(context.Background(), err, "Skipping unreadable directory", "path", path)
		return true
	}
	// os.ReadDir already sorts by name.
	for _, entry := range entries {
		if !w.any(filepath.Join(path, entry.Name())) {
			return false
		}
	}

	return true
}

func (w *walk) compiled(path string, info os.FileInfo, kind Kind) bool {
	out, err := w.resolver.extensions.output(path)
	if err != nil {
		w.yield(Asset{}, err)
		return false
	}

	target := w.targetFor(path)
	target = strings.TrimSuffix(target, filepath.Ext(target)) + out

	return w.yield(Asset{
		Kind:       kind,
		SourcePath: path,
		TargetPath: target,
		Timestamp:  info.ModTime(),
		ESM:        w.isModule(path),
	}, nil)
}

func (w *walk) html(path string, info os.FileInfo) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		w.resolver.logger.Warn(context.Background(), err, "Skipping unreadable document", "path", path)
		return true
	}

	content := string(data)
	dir := filepath.Dir(path)
	var rewrites []rewrite

	for _, ref := range scanReferences(content) {
		source := ref.source(dir)
		if _, err := os.Stat(source); err != nil {
			w.resolver.logger.Debug(context.Background(), "Dropping missing reference",
				"document", path, "reference", ref.raw)
			continue
		}

		if !w.any(source) {
			return false
		}

		if w.resolver.extensions.classify(source) != KindScript {
			continue
		}
		out, err := w.resolver.extensions.output(source)
		if err != nil {
			continue
		}
		if ext := filepath.Ext(ref.path); ext != out {
			rewrites = append(rewrites, ref.rewriteExt(out))
		}
	}

	return w.yield(Asset{
		Kind:       KindHTML,
		SourcePath: path,
		TargetPath: w.targetFor(path),
		Timestamp:  info.ModTime(),
		Content:    applyRewrites(content, rewrites),
	}, nil)
}

func (w *walk) isModule(path string) bool {
	_, ok := w.modules[path]

	return ok
}

// moduleSources walks the same graph as Resolve without emitting anything
// and returns the sources referenced from module script tags.
func (r *Resolver) moduleSources(entries []string) map[string]struct{} {
	modules := make(map[string]struct{})
	visited := make(map[string]struct{})

	var scan func(path string)
	scan = func(path string) {
		if _, seen := visited[path]; seen || isWithin(r.target, path) {
			return
		}
		visited[path] = struct{}{}

		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			entries, err := os.ReadDir(path)
			if err != nil {
				return
			}
			for _, entry := range entries {
				scan(filepath.Join(path, entry.Name()))
			}
			return
		}
		if !info.Mode().IsRegular() || r.extensions.classify(path) != KindHTML {
			return
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return
		}
		dir := filepath.Dir(path)
		for _, ref := range scanReferences(string(data)) {
			source := ref.source(dir)
			if ref.module {
				modules[source] = struct{}{}
			}
			scan(source)
		}
	}

	for _, entry := range entries {
		scan(entry)
	}

	return modules
}

func (w *walk) targetFor(source string) string {
	rel, err := filepath.Rel(w.base, source)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(source)
	}

	return filepath.Join(w.resolver.target, rel)
}

// basePath returns the nearest common ancestor directory of the entries. A
// file entry contributes its directory.
func basePath(entries []string) string {
	if len(entries) == 0 {
		return "."
	}

	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if info, err := os.Stat(entry); err == nil && info.IsDir() {
			dirs = append(dirs, entry)
			continue
		}
		dirs = append(dirs, filepath.Dir(entry))
	}

	base := dirs[0]
	for _, dir := range dirs[1:] {
		for !isWithin(base, dir) {
			parent := filepath.Dir(base)
			if parent == base {
				break
			}
			base = parent
		}
	}

	return base
}

// isWithin reports whether path equals root or lies inside it.
func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return ext
}

// Sorted returns assets ordered by source path. Resolution order is
// dependency order; this is for stable display.
func Sorted(assets []Asset) []Asset {
	sorted := slices.Clone(assets)
	slices.SortFunc(sorted, func(a, b Asset) int {
		return strings.Compare(a.SourcePath, b.SourcePath)
	})

	return sorted
}
