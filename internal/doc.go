// Package internal contains the core implementation packages for hammer.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - resolver: Walks entry points and HTML references into assets
//   - cache: Per-asset state and the insert/update/delete diff
//   - build: Incremental esbuild contexts for scripts and styles
//   - pipeline: Resolve, diff and dispatch passes, once or on change
//   - watcher: File system monitoring with debouncing and polling
//   - server: Static file server with live reload
//   - process: Shell commands and restart supervision
//   - task: Exported functions run from JavaScript task files
//   - channel: Unbounded multi-consumer event channel
//   - config: Configuration loading and validation
//   - errors: Structured errors and build diagnostics
//   - logging: Structured logging on log/slog
//   - monitoring: Prometheus metrics and health checks
//
// # Inter-Package Communication
//
//   - Watcher events reach the pipeline and the server through channels
//   - The pipeline diffs resolved assets against the cache and hands the
//     actions to the builder
//   - Output directory changes drive reloads and process restarts
//
// For detailed documentation, see the individual package documentation.
package internal
