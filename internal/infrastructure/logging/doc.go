// Package logging provides structured logging for LumiGrid Core.
//
// The Logger wraps log/slog with service-wide default fields and a small
// amount of configuration glue. Components derive their own loggers with
// With("component", ...) so every log line carries its origin.
package logging
