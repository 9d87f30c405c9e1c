// Package internal contains the implementation packages of assetpipe.
//
// # Package Organization
//
//   - config: Configuration loading (viper) and validation
//   - errors: The PipelineError type and sentinel errors
//   - logging: Structured logging over log/slog with timed operations
//   - pipeline: Files, steps, tasks and the Series/Parallel runner
//   - steps: Transformation steps: sass, autoprefixer, minify, concat,
//     stylelint, source maps and the icon font
//   - tasks: The named tasks, their watch bindings and the default graph
//   - watcher: fsnotify source, debouncer and per-binding runners
//   - server: Static dev server with websocket live reload
//   - version: Build information
//
// # Data Flow
//
//	cmd -> config.Load -> tasks.Graph
//	         Build:  pipeline.Parallel(html, assets, styles, scripts, icons, robots)
//	         Watch:  watcher.Watcher --(Notifier)--> server.Hub --> browsers
package internal
