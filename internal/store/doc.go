// ABOUTME: Package documentation for the exchange journal.
// ABOUTME: Describes the SQLite call record store and retention pruning.

// Package store persists the gateway's exchange journal in SQLite.
//
// Every call crossing the gateway, inbound or outbound, is appended as a
// CallRecord with its service, operation, pattern, outcome and duration.
// The journal is optional: the gateway runs without a database path, and
// MockJournal serves tests that do not need SQLite.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (pure Go) with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:") for tests with real SQLite.
package store
