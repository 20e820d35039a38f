// Package database provides the SQLite connection and migration runner for
// LumiGrid Core.
//
// SQLite is configured for a single writer with WAL mode so concurrent
// message handlers can read while registrations write. All multi-row device
// and command state transitions rely on single-statement atomicity (UPSERT,
// conditional UPDATE) executed through this connection.
//
// Migrations are embedded into the binary by the top-level migrations
// package and applied on startup, each in its own transaction.
package database
