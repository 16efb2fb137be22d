// Package cmd provides the command-line interface for hammer.
//
// This package implements all CLI commands using the Cobra framework.
//
// # Available Commands
//
//   - build: Build entry points once
//   - watch: Build and rebuild on change
//   - serve: Build, watch and serve with live reload
//   - run: Build, watch and run the output with node
//   - monitor: Run a shell command and restart it on change
//   - task: Run a function exported from a task file
//   - config: Write or show configuration
//   - version: Show version information
//
// # Command Examples
//
//	// Build once with minification
//	hammer build index.html --minify
//
//	// Serve with live reload on port 3000
//	hammer serve index.html --port 3000
//
//	// Restart a node program whenever its source changes
//	hammer run server.ts -- --verbose
package cmd
