package resolver

import (
	"slices"
	"time"
)

// Kind tags what the builder does with an asset.
type Kind string

const (
	KindHTML   Kind = "html"
	KindScript Kind = "script"
	KindStyle  Kind = "style"
	KindFile   Kind = "file"
)

// Asset is one resolved source file and where its output goes. Assets are
// values: a changed file produces a new Asset with a new Timestamp.
type Asset struct {
	Kind       Kind
	SourcePath string
	TargetPath string
	Timestamp  time.Time
	// Content is the rewritten document text for html assets.
	Content string
	// ESM is set on scripts and styles referenced from a module script tag.
	ESM bool
}

// Key identifies the asset across resolution passes.
func (a Asset) Key() string {
	return a.SourcePath
}

// Fingerprint is the value compared to decide whether the asset changed.
func (a Asset) Fingerprint() time.Time {
	return a.Timestamp
}

// Compiled reports whether the asset goes through the compiler rather than
// being copied.
func (a Asset) Compiled() bool {
	return a.Kind == KindScript || a.Kind == KindStyle
}

// SourcePaths returns the source path of every asset, in order.
func SourcePaths(assets []Asset) []string {
	paths := make([]string, 0, len(assets))
	for _, a := range assets {
		paths = append(paths, a.SourcePath)
	}

	return slices.Clip(paths)
}
