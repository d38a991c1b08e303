package eventlog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists events to a SQLite database using the pure-Go
// modernc.org/sqlite driver (no cgo), matching the driver pairing used
// elsewhere in this tree (sql.Open("sqlite", ...)).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a SQLite-backed event
// store at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			task_id TEXT,
			agent_id TEXT,
			priority INTEGER NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			delivered_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
		CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize event log schema: %w", err)
	}
	return nil
}

// Save persists an event.
func (s *SQLiteStore) Save(event *Event) error {
	_, err := s.db.Exec(`
		INSERT INTO events (id, type, task_id, agent_id, priority, message, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
	`, event.ID, event.Type, event.TaskID, event.AgentID, event.Priority, event.Message, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetPending returns undelivered events, optionally filtered by type.
func (s *SQLiteStore) GetPending(types []EventType) ([]*Event, error) {
	query := `SELECT id, type, task_id, agent_id, priority, message, created_at FROM events WHERE delivered_at IS NULL`
	var args []interface{}
	if len(types) > 0 {
		query += " AND type IN ("
		for i, t := range types {
			if i > 0 {
				query += ", "
			}
			query += "?"
			args = append(args, string(t))
		}
		query += ")"
	}
	query += " ORDER BY priority ASC, created_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var taskID, agentID sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &taskID, &agentID, &e.Priority, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.TaskID = taskID.String
		e.AgentID = agentID.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

// MarkDelivered marks an event delivered so GetPending stops returning it.
func (s *SQLiteStore) MarkDelivered(eventID string) error {
	res, err := s.db.Exec(`UPDATE events SET delivered_at = ? WHERE id = ?`, time.Now(), eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}
	return nil
}

// Cleanup deletes delivered events older than olderThan.
func (s *SQLiteStore) Cleanup(olderThan time.Duration) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE delivered_at IS NOT NULL AND created_at < ?`, time.Now().Add(-olderThan))
	if err != nil {
		return fmt.Errorf("failed to clean up old events: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
