package config

import (
	"fmt"
	"strings"

	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/validation"
)

// validateConfig validates configuration values for security and correctness.
// Every error is a config error naming the offending option.
func validateConfig(config *Config) error {
	if err := validateBuildConfig(&config.Build); err != nil {
		return err
	}
	if err := validateServerConfig(&config.Server); err != nil {
		return err
	}
	if err := validateWatchConfig(&config.Watch); err != nil {
		return err
	}

	return validateTaskConfig(&config.Task)
}

func validateBuildConfig(config *BuildConfig) error {
	if config.Dist == "" {
		return herrors.NewConfigError("dist", "missing output directory")
	}
	if strings.ContainsRune(config.Dist, 0) {
		return herrors.NewConfigError("dist", "path contains NUL byte")
	}
	if len(config.Target) == 0 {
		return herrors.NewConfigError("target", "missing compile target")
	}

	return config.Options(false).Validate()
}

func validateServerConfig(config *ServerConfig) error {
	if err := validation.ValidatePort(config.Port); err != nil {
		return err
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return herrors.NewConfigError("host", fmt.Sprintf("contains invalid character %q", char))
			}
		}
	}
	if config.KeepAlive < 0 {
		return herrors.NewConfigError("keep_alive", "must not be negative")
	}

	return nil
}

func validateWatchConfig(config *WatchConfig) error {
	if config.Debounce < 0 {
		return herrors.NewConfigError("debounce", "must not be negative")
	}
	if config.Poll && config.PollInterval <= 0 {
		return herrors.NewConfigError("poll_interval", "must be positive when polling")
	}
	for _, name := range config.Ignore {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return herrors.NewConfigError("ignore", fmt.Sprintf("%q is not a directory name", name))
		}
	}

	return nil
}

func validateTaskConfig(config *TaskConfig) error {
	if config.File == "" {
		return nil
	}

	if err := validation.ValidatePath(config.File); err != nil {
		return herrors.NewConfigError("file", err.Error())
	}

	return nil
}
