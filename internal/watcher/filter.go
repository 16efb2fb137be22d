package watcher

import (
	"path/filepath"
	"slices"
	"strings"
)

// Filter reports whether a path should be ignored.
type Filter func(path string) bool

// IgnoreDirs ignores any path with one of names as a path component.
func IgnoreDirs(names ...string) Filter {
	return func(path string) bool {
		for _, part := range strings.Split(filepath.ToSlash(path), "/") {
			if slices.Contains(names, part) {
				return true
			}
		}

		return false
	}
}

// IgnoreSuffixes ignores files whose base name ends with one of suffixes.
func IgnoreSuffixes(suffixes ...string) Filter {
	return func(path string) bool {
		base := filepath.Base(path)
		for _, suffix := range suffixes {
			if strings.HasSuffix(base, suffix) {
				return true
			}
		}

		return false
	}
}

// DefaultFilters ignores VCS metadata, installed packages and editor swap files.
func DefaultFilters() []Filter {
	return []Filter{
		IgnoreDirs(".git", "node_modules"),
		IgnoreSuffixes("~", ".swp", ".swx"),
	}
}

func anyFilter(filters []Filter) Filter {
	return func(path string) bool {
		for _, f := range filters {
			if f(path) {
				return true
			}
		}

		return false
	}
}

// isWithin reports whether path equals root or lies inside it.
func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
