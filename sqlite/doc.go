// Package sqlite provides an embedded SQLite outbox store.
//
// The default driver is the pure Go modernc.org/sqlite, registered as
// "sqlite". Any database/sql SQLite driver works, e.g. mattn/go-sqlite3
// registered as "sqlite3". Use EnqueueTx to write the outbox row in the same
// transaction as the local mutation it describes.
package sqlite
