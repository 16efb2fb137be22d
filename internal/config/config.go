// Package config provides configuration management for hammer using Viper
// for loading from files, environment variables and command-line flags.
//
// Values come from .hammer.yml (or the file named by HAMMER_CONFIG_FILE),
// HAMMER_ prefixed environment variables such as HAMMER_SERVER_PORT, and
// flags bound with viper.BindPFlag. Flags win over the environment, which
// wins over the file.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/hammer/internal/build"
	herrors "github.com/conneroisu/hammer/internal/errors"
)

// FileName is the configuration file looked up in the working directory.
const FileName = ".hammer.yml"

// EnvPrefix prefixes environment variable overrides.
const EnvPrefix = "HAMMER"

type Config struct {
	Build  BuildConfig  `yaml:"build" mapstructure:"build"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Watch  WatchConfig  `yaml:"watch" mapstructure:"watch"`
	Task   TaskConfig   `yaml:"task" mapstructure:"task"`
}

type BuildConfig struct {
	Dist      string   `yaml:"dist" mapstructure:"dist"`
	Target    []string `yaml:"target" mapstructure:"target"`
	Platform  string   `yaml:"platform" mapstructure:"platform"`
	External  []string `yaml:"external,omitempty" mapstructure:"external"`
	Minify    bool     `yaml:"minify" mapstructure:"minify"`
	Sourcemap bool     `yaml:"sourcemap" mapstructure:"sourcemap"`
	ESM       bool     `yaml:"esm" mapstructure:"esm"`
}

type ServerConfig struct {
	Port      int           `yaml:"port" mapstructure:"port"`
	Host      string        `yaml:"host" mapstructure:"host"`
	CORS      bool          `yaml:"cors" mapstructure:"cors"`
	SAB       bool          `yaml:"sab" mapstructure:"sab"`
	KeepAlive time.Duration `yaml:"keep_alive" mapstructure:"keep_alive"`
	Metrics   bool          `yaml:"metrics" mapstructure:"metrics"`
}

type WatchConfig struct {
	Debounce     time.Duration `yaml:"debounce" mapstructure:"debounce"`
	Poll         bool          `yaml:"poll" mapstructure:"poll"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	Ignore       []string      `yaml:"ignore" mapstructure:"ignore"`
}

type TaskConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// defaults holds the value of every key when nothing else sets it.
var defaults = map[string]any{
	"build.dist":          "dist",
	"build.target":        []string{"esnext"},
	"build.platform":      "browser",
	"build.external":      []string{},
	"build.minify":        false,
	"build.sourcemap":     false,
	"build.esm":           false,
	"server.port":         5000,
	"server.host":         "localhost",
	"server.cors":         false,
	"server.sab":          false,
	"server.keep_alive":   16 * time.Second,
	"server.metrics":      true,
	"watch.debounce":      100 * time.Millisecond,
	"watch.poll":          false,
	"watch.poll_interval": 500 * time.Millisecond,
	"watch.ignore":        []string{".git", "node_modules"},
	"task.file":           "tasks.js",
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Init points v at its sources: file when set, else HAMMER_CONFIG_FILE, else
// .hammer.yml in the working directory, plus HAMMER_ environment variables.
// It returns the file that was read, or "" when none was found.
func Init(v *viper.Viper, file string) (string, error) {
	switch {
	case file != "":
		v.SetConfigFile(file)
	case os.Getenv(EnvPrefix+"_CONFIG_FILE") != "":
		v.SetConfigFile(os.Getenv(EnvPrefix + "_CONFIG_FILE"))
	default:
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", herrors.NewConfigError("config", err.Error())
	}

	return v.ConfigFileUsed(), nil
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Slices set from flags or comma separated env values.
	for key, dst := range map[string]*[]string{
		"build.target":   &config.Build.Target,
		"build.external": &config.Build.External,
		"watch.ignore":   &config.Watch.Ignore,
	} {
		if v.IsSet(key) {
			*dst = splitList(v.GetStringSlice(key))
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// splitList flattens comma separated entries and drops empty ones.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}

// Default returns the configuration used when no file, env or flag sets
// anything.
func Default() *Config {
	config, err := LoadFrom(viper.New())
	if err != nil {
		panic("config: invalid defaults: " + err.Error())
	}

	return config
}

// Options returns the compiler options the build section describes.
func (c BuildConfig) Options(watch bool) build.Options {
	return build.Options{
		Platform:  c.Platform,
		Target:    c.Target,
		External:  c.External,
		Minify:    c.Minify,
		Sourcemap: c.Sourcemap,
		ESM:       c.ESM,
		Watch:     watch,
	}
}
