// Package storage persists subscriptions and the last known availability of
// each location.
//
// Drivers:
//   - "sqlite": modernc.org/sqlite database file (default)
//   - "file": JSON snapshot plus an append-only journal
//   - "memory": process-local, for tests and dry runs
package storage
