package build

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/resolver"
)

func TestParseTargets(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		target  api.Target
		engines []api.Engine
	}{
		{"default", nil, api.ESNext, nil},
		{"language level", []string{"es2020"}, api.ES2020, nil},
		{"es6 alias", []string{"ES6"}, api.ES2015, nil},
		{"engines", []string{"chrome58", " node18.2 "}, api.ESNext, []api.Engine{
			{Name: api.EngineChrome, Version: "58"},
			{Name: api.EngineNode, Version: "18.2"},
		}},
		{"mixed", []string{"es2017", "safari11", ""}, api.ES2017, []api.Engine{
			{Name: api.EngineSafari, Version: "11"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, engines, err := parseTargets(tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.target, target)
			assert.Equal(t, tt.engines, engines)
		})
	}
}

func TestParseTargetsRejectsUnknown(t *testing.T) {
	for _, value := range []string{"es1999", "netscape4", "58", "chrome"} {
		_, _, err := parseTargets([]string{value})
		require.Error(t, err, value)
		assert.True(t, herrors.IsConfigError(err), value)
		assert.Contains(t, err.Error(), "option:target")
	}
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
	assert.NoError(t, Options{}.Validate())

	err := Options{Platform: "deno"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "option:platform")

	_, err = NewEsbuildBuilder(Options{Target: []string{"ie"}})
	assert.Error(t, err)
}

func TestBuildOptions(t *testing.T) {
	script := resolver.Asset{
		Kind:       resolver.KindScript,
		SourcePath: "/src/main.ts",
		TargetPath: "/dist/main.js",
		Timestamp:  time.Now(),
	}

	opts, err := DefaultOptions().buildOptions(script)
	require.NoError(t, err)
	assert.Equal(t, []string{"/src/main.ts"}, opts.EntryPoints)
	assert.Equal(t, "/dist/main.js", opts.Outfile)
	assert.True(t, opts.Bundle)
	assert.True(t, opts.Write)
	assert.Equal(t, api.PlatformBrowser, opts.Platform)
	assert.Equal(t, api.FormatDefault, opts.Format)
	assert.Equal(t, api.SourceMapNone, opts.Sourcemap)
	assert.False(t, opts.MinifySyntax)

	script.ESM = true
	opts, err = DefaultOptions().buildOptions(script)
	require.NoError(t, err)
	assert.Equal(t, api.FormatESModule, opts.Format)
	assert.True(t, opts.Splitting)
	assert.Empty(t, opts.Outfile)
	assert.Equal(t, "/dist", filepath.ToSlash(opts.Outdir))
	assert.Equal(t, "[name]", opts.EntryNames)
	assert.Equal(t, map[string]string{".js": ".js"}, opts.OutExtension)

	module := resolver.Asset{Kind: resolver.KindScript, SourcePath: "/src/lib.mts", TargetPath: "/dist/lib.mjs", ESM: true}
	opts, err = DefaultOptions().buildOptions(module)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{".js": ".mjs"}, opts.OutExtension)

	style := resolver.Asset{Kind: resolver.KindStyle, SourcePath: "/src/a.css", TargetPath: "/dist/a.css", ESM: true}
	options := Options{Platform: "node", Minify: true, Sourcemap: true, ESM: true, External: []string{"fs"}}
	opts, err = options.buildOptions(style)
	require.NoError(t, err)
	assert.Equal(t, api.FormatDefault, opts.Format)
	assert.Equal(t, api.PlatformNode, opts.Platform)
	assert.Equal(t, api.SourceMapLinked, opts.Sourcemap)
	assert.True(t, opts.MinifyWhitespace)
	assert.True(t, opts.MinifyIdentifiers)
	assert.Equal(t, []string{"fs"}, opts.External)
}
