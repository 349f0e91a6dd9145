package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SessionID looks up the persisted session identifier for the
// (device, room, runner, thread) key. The second return reports whether a
// record exists.
func (s *Store) SessionID(ctx context.Context, deviceID, roomID, runner, threadID string) (string, bool, error) {
	var sessionID string
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM device_sessions WHERE device_id = ? AND room_id = ? AND runner = ? AND thread_id = ?`,
		deviceID, roomID, runner, threadID)
	err := row.Scan(&sessionID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select session: %w", err)
	}
	return sessionID, true, nil
}

// SaveSessionID persists the session identifier for the key, overwriting any
// previous value. Callers only invoke this after a successful run.
func (s *Store) SaveSessionID(ctx context.Context, deviceID, roomID, runner, threadID, sessionID string) error {
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_sessions (device_id, room_id, runner, thread_id, session_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(device_id, room_id, runner, thread_id)
		 DO UPDATE SET session_id = excluded.session_id, updated_at = excluded.updated_at`,
		deviceID, roomID, runner, threadID, sessionID, now, now)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
