package sqlstore

import "fmt"

const columns = "id, op_id, entity_type, entity_id, op, payload, created_at, last_attempt_at, status, error"

type queries struct {
	insert       string
	get          string
	listByStatus string
	count        string
	markAttempt  string
	markDone     string
	markFailed   string
	resetOne     string
	resetAll     string
	clearDone    string
}

func newQueries(table string) queries {
	return queries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (op_id, entity_type, entity_id, op, payload, created_at, status) VALUES (?, ?, ?, ?, ?, ?, ?)",
			table,
		),
		get: fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", columns, table),
		listByStatus: fmt.Sprintf(
			"SELECT %s FROM %s WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?",
			columns,
			table,
		),
		count: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = ?", table),
		markAttempt: fmt.Sprintf(
			"UPDATE %s SET last_attempt_at = ? WHERE id = ? AND status = ?",
			table,
		),
		markDone: fmt.Sprintf(
			"UPDATE %s SET status = ?, last_attempt_at = ?, error = NULL WHERE id = ? AND status = ?",
			table,
		),
		markFailed: fmt.Sprintf(
			"UPDATE %s SET status = ?, last_attempt_at = ?, error = ? WHERE id = ? AND status = ?",
			table,
		),
		resetOne: fmt.Sprintf(
			"UPDATE %s SET status = ?, last_attempt_at = NULL, error = NULL WHERE id = ? AND status = ?",
			table,
		),
		resetAll: fmt.Sprintf(
			"UPDATE %s SET status = ?, last_attempt_at = NULL, error = NULL WHERE status = ?",
			table,
		),
		clearDone: fmt.Sprintf("DELETE FROM %s WHERE status = ?", table),
	}
}
