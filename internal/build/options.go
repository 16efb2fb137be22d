package build

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/resolver"
)

// Options configures how script and style assets are compiled.
type Options struct {
	Platform  string   `json:"platform"`
	Target    []string `json:"target"`   // "esnext", "es2020", "chrome58", etc.
	External  []string `json:"external"` // Left unbundled
	Minify    bool     `json:"minify"`
	Sourcemap bool     `json:"sourcemap"`
	ESM       bool     `json:"esm"` // Emit ESM for every script, not only module scripts
	Watch     bool     `json:"watch"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Platform: "browser",
		Target:   []string{"esnext"},
	}
}

var platforms = map[string]api.Platform{
	"browser": api.PlatformBrowser,
	"node":    api.PlatformNode,
	"neutral": api.PlatformNeutral,
}

var esTargets = map[string]api.Target{
	"esnext": api.ESNext,
	"es5":    api.ES5,
	"es6":    api.ES2015,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

var engines = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// Files referenced from stylesheets are emitted next to the bundle.
var fileLoaders = map[string]api.Loader{
	".png":   api.LoaderFile,
	".jpg":   api.LoaderFile,
	".jpeg":  api.LoaderFile,
	".gif":   api.LoaderFile,
	".svg":   api.LoaderFile,
	".webp":  api.LoaderFile,
	".woff":  api.LoaderFile,
	".woff2": api.LoaderFile,
	".ttf":   api.LoaderFile,
	".eot":   api.LoaderFile,
}

// Validate reports the first option esbuild would not accept.
func (o Options) Validate() error {
	if _, err := parsePlatform(o.Platform); err != nil {
		return err
	}
	_, _, err := parseTargets(o.Target)

	return err
}

func parsePlatform(name string) (api.Platform, error) {
	if name == "" {
		return api.PlatformBrowser, nil
	}
	platform, ok := platforms[name]
	if !ok {
		return 0, herrors.NewConfigError("platform",
			fmt.Sprintf("unsupported platform %q (expected browser, node or neutral)", name))
	}

	return platform, nil
}

// parseTargets splits a target list into the language level and the engine
// versions esbuild takes separately. A later language level wins.
func parseTargets(values []string) (api.Target, []api.Engine, error) {
	target := api.ESNext
	var list []api.Engine

	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if t, ok := esTargets[value]; ok {
			target = t
			continue
		}

		i := strings.IndexAny(value, "0123456789")
		if i <= 0 {
			return 0, nil, herrors.NewConfigError("target", fmt.Sprintf("unsupported target %q", value))
		}
		name, ok := engines[value[:i]]
		if !ok {
			return 0, nil, herrors.NewConfigError("target", fmt.Sprintf("unsupported target %q", value))
		}
		list = append(list, api.Engine{Name: name, Version: value[i:]})
	}

	return target, list, nil
}

// buildOptions returns the esbuild options that compile asset into its
// target path.
func (o Options) buildOptions(asset resolver.Asset) (api.BuildOptions, error) {
	platform, err := parsePlatform(o.Platform)
	if err != nil {
		return api.BuildOptions{}, err
	}
	target, engineList, err := parseTargets(o.Target)
	if err != nil {
		return api.BuildOptions{}, err
	}

	opts := api.BuildOptions{
		EntryPoints:       []string{asset.SourcePath},
		Outfile:           asset.TargetPath,
		Bundle:            true,
		Write:             true,
		Platform:          platform,
		Target:            target,
		Engines:           engineList,
		External:          o.External,
		Loader:            fileLoaders,
		MinifyWhitespace:  o.Minify,
		MinifyIdentifiers: o.Minify,
		MinifySyntax:      o.Minify,
		LogLevel:          api.LogLevelSilent,
	}
	if o.Sourcemap {
		opts.Sourcemap = api.SourceMapLinked
	}
	if asset.Kind == resolver.KindScript && (asset.ESM || o.ESM) {
		opts.Format = api.FormatESModule
		// Splitting needs an output directory; the entry keeps its target
		// name and shared chunks land next to it.
		opts.Splitting = true
		opts.Outfile = ""
		opts.Outdir = filepath.Dir(asset.TargetPath)
		opts.EntryNames = "[name]"
		opts.OutExtension = map[string]string{".js": filepath.Ext(asset.TargetPath)}
	}

	return opts, nil
}
