// Package storage provides the persistence layer for dailyrun records.
//
// A Backend stores serialized rows per named table; Table[T] layers typed
// records and identity assignment on top of it. Tables read through to the
// backend on every call, so several processes may share one store.
//
// Backends:
//   - memory (tests, ephemeral runs)
//   - file (JSON Lines journal + snapshot, guarded by flock)
//   - sqlite (modernc.org/sqlite, pure Go)
//   - postgres (pgx connection pool)
package storage
