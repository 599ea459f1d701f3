// Package internal contains the core implementation packages for prismd.
//
// # Package Organization
//
//   - language: closed language enum with filename and shebang detection
//   - registry: process-wide immutable grammar and query table
//   - highlight: tree-sitter highlighting into a scope event stream,
//     plus per-line HTML rendering
//   - engine: per-file jobs and the batch coordinator
//   - pool: bounded FIFO worker pool with idle shrink
//   - protocol: zero-copy binary wire framing
//   - server: the HTTP surface (/v1/html, /v1/languages, /healthz)
//   - client: the thin client behind the render subcommand
//   - config: viper-backed configuration with validation
//   - errors: per-file failure taxonomy and whole-request rejections
//   - logging: structured slog wrapper with component scoping
//   - stylesheet: chroma-derived CSS for the rendered scope classes
//   - version: build-time identity
//
// A request flows protocol → engine → pool → highlight and back; every
// other package is shared plumbing.
package internal
