package resolver

import (
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// reference is one src or href value found in a document.
type reference struct {
	// raw is the attribute value as written.
	raw string
	// path is raw without query or fragment.
	path   string
	module bool
}

// rewrite replaces one attribute value in document text.
type rewrite struct {
	from string
	to   string
}

// source returns the file the reference points at. Root-relative values
// resolve against the document directory like any other reference.
func (r reference) source(dir string) string {
	return filepath.Join(dir, filepath.FromSlash(strings.TrimLeft(r.path, "/")))
}

func (r reference) rewriteExt(out string) rewrite {
	suffix := strings.TrimPrefix(r.raw, r.path)
	mapped := strings.TrimSuffix(r.path, filepath.Ext(r.path)) + out

	return rewrite{from: r.raw, to: mapped + suffix}
}

// scanReferences tokenizes document and returns the local references it
// contains, in document order.
func scanReferences(document string) []reference {
	var refs []reference
	tokenizer := html.NewTokenizer(strings.NewReader(document))

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return refs
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			module := token.Data == "script" && attr(token, "type") == "module"
			for _, a := range token.Attr {
				if a.Key != "src" && a.Key != "href" {
					continue
				}
				if ref, ok := parseReference(a.Val); ok {
					ref.module = module
					refs = append(refs, ref)
				}
			}
		}
	}
}

func attr(token html.Token, key string) string {
	for _, a := range token.Attr {
		if a.Key == key {
			return strings.TrimSpace(strings.ToLower(a.Val))
		}
	}

	return ""
}

// parseReference keeps values that point at a file relative to the document.
func parseReference(value string) (reference, bool) {
	raw := strings.TrimSpace(value)
	switch {
	case raw == "",
		strings.HasPrefix(raw, "#"),
		strings.HasPrefix(raw, "//"),
		strings.HasPrefix(strings.ToLower(raw), "data:"),
		hasScheme(raw):
		return reference{}, false
	}

	path := raw
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return reference{}, false
	}

	return reference{raw: raw, path: path}, true
}

// hasScheme reports whether value starts with a URL scheme such as https: or
// mailto:.
func hasScheme(value string) bool {
	for i, c := range value {
		switch {
		case c == ':':
			return i > 0
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}

	return false
}

func applyRewrites(document string, rewrites []rewrite) string {
	if len(rewrites) == 0 {
		return document
	}

	pairs := make([]string, 0, len(rewrites)*4)
	seen := make(map[string]struct{}, len(rewrites))
	for _, r := range rewrites {
		if _, dup := seen[r.from]; dup {
			continue
		}
		seen[r.from] = struct{}{}
		pairs = append(pairs,
			`"`+r.from+`"`, `"`+r.to+`"`,
			`'`+r.from+`'`, `'`+r.to+`'`,
		)
	}

	return strings.NewReplacer(pairs...).Replace(document)
}
