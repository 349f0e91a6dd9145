package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"remoteprompt-server/internal/model"
)

func (s *Store) CreateThread(ctx context.Context, roomID, name string) (model.Thread, error) {
	now := s.now().UTC()
	thread := model.Thread{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, room_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		thread.ID, thread.RoomID, thread.Name, formatTime(now), formatTime(now))
	if err != nil {
		return model.Thread{}, fmt.Errorf("insert thread: %w", err)
	}
	return thread, nil
}

const threadColumns = `id, room_id, name, has_unread, unread_runners, created_at, updated_at`

func (s *Store) Thread(ctx context.Context, id string) (model.Thread, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM threads WHERE id = ?`, id)
	thread, err := scanThread(row)
	if err == sql.ErrNoRows {
		return model.Thread{}, ErrNotFound
	}
	if err != nil {
		return model.Thread{}, fmt.Errorf("select thread: %w", err)
	}
	return thread, nil
}

func (s *Store) ThreadsByRoom(ctx context.Context, roomID string) ([]model.Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE room_id = ? ORDER BY created_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []model.Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		out = append(out, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return out, nil
}

func (s *Store) RenameThread(ctx context.Context, id, name string) (model.Thread, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE threads SET name = ?, updated_at = ? WHERE id = ?`,
		name, formatTime(s.now()), id)
	if err != nil {
		return model.Thread{}, fmt.Errorf("rename thread: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Thread{}, fmt.Errorf("rename thread: %w", err)
	} else if n == 0 {
		return model.Thread{}, ErrNotFound
	}
	return s.Thread(ctx, id)
}

// MarkThreadRead clears the unread flag and the unread-runner set, as the
// client does when it opens the conversation.
func (s *Store) MarkThreadRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE threads SET has_unread = 0, unread_runners = '[]', updated_at = ? WHERE id = ?`,
		formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("mark thread read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark thread read: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteThread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnreadThreadCount is the device's badge count outside a finalize
// transaction.
func (s *Store) UnreadThreadCount(ctx context.Context, deviceID string) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM threads t JOIN rooms r ON t.room_id = r.id WHERE r.device_id = ? AND t.has_unread = 1`,
		deviceID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("unread thread count: %w", err)
	}
	return count, nil
}

func scanThread(row interface{ Scan(...any) error }) (model.Thread, error) {
	var thread model.Thread
	var hasUnread int
	var rawRunners, createdAt, updatedAt string
	err := row.Scan(&thread.ID, &thread.RoomID, &thread.Name, &hasUnread, &rawRunners, &createdAt, &updatedAt)
	if err != nil {
		return model.Thread{}, err
	}
	thread.HasUnread = hasUnread != 0
	if rawRunners != "" {
		_ = json.Unmarshal([]byte(rawRunners), &thread.UnreadRunners)
	}
	thread.CreatedAt = parseTime(createdAt)
	thread.UpdatedAt = parseTime(updatedAt)
	return thread, nil
}
