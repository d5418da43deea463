// Package storage provides the execution ledger backends.
//
// Two implementations of ledger.Store are available:
//
//   - SQLiteStore: the durable backend. Works with either the cgo driver
//     (mattn/go-sqlite3, driver name "sqlite3") or the pure-Go driver
//     (modernc.org/sqlite, driver name "sqlite"), selected by config.
//   - MemoryStore: map-backed, for tests and ephemeral dev runs.
//
// Both backends enforce the same two write-side guarantees: only one
// non-terminal execution per (policy_id, target), and version-checked
// updates that reject stale writers with a ConflictError. In SQLite the
// slot invariant is a partial unique index, so it holds even across
// processes sharing one database file.
package storage
