// Package internal contains the implementation packages of the htmlc CLI.
//
// # Package Organization
//
//   - build: Walks a source tree and mirrors it into a destination tree,
//     rendering every file through a renderer.Renderer
//   - renderer: Template engines (html/template via templ, goldmark) and
//     extension-based dispatch
//   - config: Viper-backed configuration loading and validation
//   - errors: Structured build errors and exit codes
//   - logging: Structured logging on log/slog
//   - watcher: Debounced fsnotify watching for rebuild-on-change
//   - server: Preview server with websocket live reload
//   - scaffolding: Project templates for htmlc init
//   - version: Build information
//   - testing, testutils: Fault-injecting filesystem and test helpers
//
// # Concurrency
//
// A build runs one task per directory and one per file on an errgroup.
// Directory tasks create their destination directory before submitting
// children, so a file task never writes into a missing directory. Build
// returns only after every task has finished.
package internal
