// Package mysql provides a MySQL 8.0+ outbox store for server-side producers.
//
// Rows are ordered by created_at then id, and every status update is a single
// guarded UPDATE. Use EnqueueTx with the *sql.Tx of the business write so the
// outbox row commits or rolls back with it.
//
// See Schema (JSON payloads) or SchemaText (payload bytes kept verbatim), and
// CleanupMaintainer for periodic removal of delivered rows.
package mysql
