package errors

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// Suggest returns the suggestions that apply to err, if any.
func Suggest(err error) []ErrorSuggestion {
	var he *HammerError
	if errors.As(err, &he) {
		switch he.Type {
		case ErrorTypeConfig:
			return configSuggestions(he)
		case ErrorTypeTask:
			if he.Code == ErrCodeTaskNotFound {
				return []ErrorSuggestion{{
					Title:       "Create the task file",
					Description: "Tasks are functions exported from tasks.js unless --file names another file",
					Example:     "export function build() { file.write('dist/ok', 'ok') }",
				}}
			}
		case ErrorTypeProcess:
			if he.Code == ErrCodeSpawnFailed {
				return []ErrorSuggestion{{
					Title:       "Check the command",
					Description: "The command runs through the platform shell; make sure it is on PATH",
				}}
			}
		}
	}

	if errors.Is(err, syscall.EADDRINUSE) || strings.Contains(err.Error(), "address already in use") {
		return []ErrorSuggestion{
			{
				Title:       "Port already in use",
				Description: "Another process is listening on the port",
				Command:     "lsof -i :5000",
			},
			{
				Title:       "Use a different port",
				Description: "Start the server on a different port",
				Command:     "hammer serve index.html --port 8080",
			},
		}
	}

	return nil
}

func configSuggestions(he *HammerError) []ErrorSuggestion {
	switch he.Option {
	case "paths", "entry":
		return []ErrorSuggestion{{
			Title:       "Pass an existing entry point",
			Description: "Entry points are HTML, script or style files, or directories",
			Command:     "hammer build index.html",
		}}
	case "platform":
		return []ErrorSuggestion{{
			Title:   "Use a supported platform",
			Command: "hammer build app.ts --platform node",
		}}
	case "target":
		return []ErrorSuggestion{{
			Title:   "Use an esbuild target",
			Example: "--target es2020,chrome90,node18",
		}}
	case "port":
		return []ErrorSuggestion{{
			Title:   "Use a port between 0 and 65535",
			Command: "hammer serve index.html --port 8080",
		}}
	case "config":
		return []ErrorSuggestion{
			{
				Title:       "Check configuration file",
				Description: "Verify the file exists and is valid YAML",
			},
			{
				Title:   "Write a fresh configuration file",
				Command: "hammer config init --force",
			},
		}
	}

	return nil
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	output.WriteString(title + "\n\n")
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		output.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion.Title))
		if suggestion.Description != "" {
			output.WriteString(fmt.Sprintf("     %s\n", suggestion.Description))
		}
		if suggestion.Command != "" {
			output.WriteString(fmt.Sprintf("     Run: %s\n", suggestion.Command))
		}
		if suggestion.Example != "" {
			output.WriteString(fmt.Sprintf("     Example: %s\n", suggestion.Example))
		}
	}

	return output.String()
}
