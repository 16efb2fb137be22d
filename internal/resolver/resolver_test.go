package resolver

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/hammer/internal/testutils"
)

func kindsAndSources(t *testing.T, assets []Asset, base string) []string {
	t.Helper()
	out := make([]string, len(assets))
	for i, a := range assets {
		rel, err := filepath.Rel(base, a.SourcePath)
		require.NoError(t, err)
		out[i] = string(a.Kind) + ":" + filepath.ToSlash(rel)
	}
	return out
}

func TestResolveDocument(t *testing.T) {
	project := testutils.CreateTempProject(t)
	src := filepath.Join(project, "src")
	dist := filepath.Join(project, "dist")

	assets, err := Collect(New(dist).Resolve([]string{filepath.Join(src, "index.html")}))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"style:style.css",
		"script:main.ts",
		"file:logo.png",
		"html:index.html",
	}, kindsAndSources(t, assets, src))

	assert.Equal(t, filepath.Join(dist, "style.css"), assets[0].TargetPath)
	assert.False(t, assets[0].ESM)

	assert.Equal(t, filepath.Join(dist, "main.js"), assets[1].TargetPath)
	assert.True(t, assets[1].ESM)

	assert.Equal(t, filepath.Join(dist, "logo.png"), assets[2].TargetPath)

	document := assets[3]
	assert.Equal(t, filepath.Join(dist, "index.html"), document.TargetPath)
	assert.Contains(t, document.Content, `src="main.js"`)
	assert.NotContains(t, document.Content, "main.ts")
	assert.False(t, document.Timestamp.IsZero())
}

func TestResolveSkipsRemoteAndMissingReferences(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFile(t, dir, "app.js", "console.log(1)")
	entry := testutils.WriteFile(t, dir, "index.html", `<html><head>
<script src="https://cdn.example.com/lib.js"></script>
<script src="//cdn.example.com/lib.js"></script>
<link rel="icon" href="data:image/png;base64,AAAA">
<a href="#top">top</a>
<a href="mailto:someone@example.com">mail</a>
<script src="missing.js"></script>
<script src="app.js?v=2"></script>
</head></html>`)

	assets, err := Collect(New(filepath.Join(dir, "dist")).Resolve([]string{entry}))
	require.NoError(t, err)

	assert.Equal(t, []string{"script:app.js", "html:index.html"}, kindsAndSources(t, assets, dir))
}

func TestResolveRootRelativeReference(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFile(t, dir, "main.ts", "console.log(1)")
	entry := testutils.WriteFile(t, dir, "index.html", `<script src="/main.ts"></script>`)

	assets, err := Collect(New(filepath.Join(dir, "dist")).Resolve([]string{entry}))
	require.NoError(t, err)

	assert.Equal(t, []string{"script:main.ts", "html:index.html"}, kindsAndSources(t, assets, dir))
	assert.Equal(t, filepath.Join(dir, "dist", "main.js"), assets[0].TargetPath)
	assert.Contains(t, assets[1].Content, `src="/main.js"`)
}

func TestResolveModuleFlagIgnoresVisitOrder(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	testutils.WriteFile(t, src, "app.ts", "export {}")
	testutils.WriteFile(t, src, "index.html", `<script type="module" src="app.ts"></script>`)

	t.Run("directory entry", func(t *testing.T) {
		assets, err := Collect(New(filepath.Join(dir, "dist")).Resolve([]string{src}))
		require.NoError(t, err)

		require.Equal(t, []string{"script:app.ts", "html:index.html"}, kindsAndSources(t, assets, src))
		assert.True(t, assets[0].ESM)
	})

	t.Run("plain reference visited first", func(t *testing.T) {
		testutils.WriteFile(t, src, "about.html", `<script src="app.ts"></script>`)
		entries := []string{filepath.Join(src, "about.html"), filepath.Join(src, "index.html")}

		assets, err := Collect(New(filepath.Join(dir, "dist")).Resolve(entries))
		require.NoError(t, err)

		require.Equal(t, []string{"script:app.ts", "html:about.html", "html:index.html"}, kindsAndSources(t, assets, src))
		assert.True(t, assets[0].ESM)
	})
}

func TestResolveRewritesTypeScriptReferencesOnly(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFile(t, dir, "a.tsx", "")
	testutils.WriteFile(t, dir, "b.mts", "")
	testutils.WriteFile(t, dir, "c.js", "")
	entry := testutils.WriteFile(t, dir, "index.html",
		`<script src="a.tsx?x=1"></script><script src='b.mts'></script><script src="c.js"></script>`)

	assets, err := Collect(New(filepath.Join(dir, "dist")).Resolve([]string{entry}))
	require.NoError(t, err)
	require.Len(t, assets, 4)

	content := assets[3].Content
	assert.Contains(t, content, `src="a.js?x=1"`)
	assert.Contains(t, content, `src='b.mjs'`)
	assert.Contains(t, content, `src="c.js"`)
	assert.Equal(t, filepath.Join(dir, "dist", "b.mjs"), assets[1].TargetPath)
}

func TestResolveCycleTerminates(t *testing.T) {
	dir := t.TempDir()
	a := testutils.WriteFile(t, dir, "a.html", `<a href="b.html">b</a>`)
	testutils.WriteFile(t, dir, "b.html", `<a href="a.html">a</a>`)

	assets, err := Collect(New(filepath.Join(dir, "dist")).Resolve([]string{a}))
	require.NoError(t, err)

	assert.Equal(t, []string{"html:b.html", "html:a.html"}, kindsAndSources(t, assets, dir))
}

func TestResolveDirectoryIsSorted(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	testutils.WriteFile(t, src, "z.txt", "")
	testutils.WriteFile(t, src, "a.css", "")
	testutils.WriteFile(t, src, "m/inner.ts", "")

	assets, err := Collect(New(filepath.Join(dir, "dist")).Resolve([]string{src}))
	require.NoError(t, err)

	assert.Equal(t, []string{"style:a.css", "script:m/inner.ts", "file:z.txt"}, kindsAndSources(t, assets, src))
	assert.Equal(t, filepath.Join(dir, "dist", "m", "inner.js"), assets[1].TargetPath)
}

func TestResolveSkipsOutputDirectory(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFile(t, dir, "main.ts", "")
	testutils.WriteFile(t, dir, "dist/main.js", "")

	assets, err := Collect(New(filepath.Join(dir, "dist")).Resolve([]string{dir}))
	require.NoError(t, err)

	assert.Equal(t, []string{"script:main.ts"}, kindsAndSources(t, assets, dir))
}

func TestResolveBasePathIsCommonAncestor(t *testing.T) {
	dir := t.TempDir()
	x := testutils.WriteFile(t, dir, "src/a/x.ts", "")
	y := testutils.WriteFile(t, dir, "src/b/y.css", "")
	dist := filepath.Join(dir, "dist")

	assets, err := Collect(New(dist).Resolve([]string{x, y}))
	require.NoError(t, err)
	require.Len(t, assets, 2)

	assert.Equal(t, filepath.Join(dist, "a", "x.js"), assets[0].TargetPath)
	assert.Equal(t, filepath.Join(dist, "b", "y.css"), assets[1].TargetPath)
}

func TestResolveDuplicatesAndMissingEntries(t *testing.T) {
	dir := t.TempDir()
	f := testutils.WriteFile(t, dir, "main.js", "")

	assets, err := Collect(New(filepath.Join(dir, "dist")).Resolve([]string{
		f, f, filepath.Join(dir, "nope.js"),
	}))
	require.NoError(t, err)

	assert.Len(t, assets, 1)
}

func TestResolveUnmappedExtension(t *testing.T) {
	dir := t.TempDir()
	f := testutils.WriteFile(t, dir, "theme.scss", "")

	_, err := Collect(New(filepath.Join(dir, "dist"), WithKind("scss", KindStyle)).Resolve([]string{f}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnmappedExtension))

	assets, err := Collect(New(filepath.Join(dir, "dist"),
		WithKind(".scss", KindStyle),
		WithOutputExtension(".scss", ".css"),
	).Resolve([]string{f}))
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, filepath.Join(dir, "dist", "theme.css"), assets[0].TargetPath)
}

func TestResolveStopsWhenConsumerBreaks(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		testutils.WriteFile(t, dir, name, "")
	}

	count := 0
	for _, err := range New(filepath.Join(dir, "dist")).Resolve([]string{dir}) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestResolveIsRestartable(t *testing.T) {
	project := testutils.CreateTempProject(t)
	r := New(filepath.Join(project, "dist"))
	entry := []string{filepath.Join(project, "src")}

	first, err := Collect(r.Resolve(entry))
	require.NoError(t, err)
	second, err := Collect(r.Resolve(entry))
	require.NoError(t, err)

	assert.Equal(t, SourcePaths(first), SourcePaths(second))
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		value string
		path  string
		ok    bool
	}{
		{"main.ts", "main.ts", true},
		{"./lib/util.js", "./lib/util.js", true},
		{"style.css?v=3", "style.css", true},
		{"page.html#section", "page.html", true},
		{"", "", false},
		{"#anchor", "", false},
		{"/root.js", "/root.js", true},
		{"//cdn.example.com/x.js", "", false},
		{"https://example.com/x.js", "", false},
		{"DATA:text/plain,hi", "", false},
		{"mailto:a@b.c", "", false},
		{"?only=query", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			ref, ok := parseReference(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.path, ref.path)
		})
	}
}

func TestOutputPath(t *testing.T) {
	tests := map[string]string{
		"a.ts":  "a.js",
		"a.tsx": "a.js",
		"a.jsx": "a.js",
		"a.mts": "a.mjs",
		"a.cjs": "a.js",
		"a.cts": "a.js",
		"a.css": "a.css",
	}
	for in, want := range tests {
		got, err := OutputPath(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := OutputPath("a.png")
	assert.ErrorIs(t, err, ErrUnmappedExtension)
}

func TestBasePath(t *testing.T) {
	dir := t.TempDir()
	page := testutils.WriteFile(t, dir, "src/index.html", "")
	script := testutils.WriteFile(t, dir, "src/app/main.ts", "")
	style := testutils.WriteFile(t, dir, "styles/site.css", "")
	src := filepath.Join(dir, "src")

	tests := []struct {
		name    string
		entries []string
		want    string
	}{
		{"file entry uses its directory", []string{page}, src},
		{"directory entry is its own base", []string{src}, src},
		{"nested file under directory entry", []string{src, script}, src},
		{"siblings share their parent", []string{page, style}, dir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, basePath(tt.entries))
		})
	}

	assets, err := Collect(New(filepath.Join(dir, "dist")).Resolve([]string{page}))
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, filepath.Join(dir, "dist", "index.html"), assets[0].TargetPath)
}
