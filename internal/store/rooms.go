package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"remoteprompt-server/internal/model"
)

type CreateRoomParams struct {
	DeviceID      string
	Name          string
	WorkspacePath string
	Settings      string
}

func (s *Store) CreateRoom(ctx context.Context, p CreateRoomParams) (model.Room, error) {
	now := s.now().UTC()
	room := model.Room{
		ID:            uuid.NewString(),
		DeviceID:      p.DeviceID,
		Name:          p.Name,
		WorkspacePath: p.WorkspacePath,
		Settings:      p.Settings,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, device_id, name, workspace_path, settings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		room.ID, room.DeviceID, room.Name, room.WorkspacePath, room.Settings,
		formatTime(now), formatTime(now))
	if err != nil {
		return model.Room{}, fmt.Errorf("insert room: %w", err)
	}
	return room, nil
}

func (s *Store) Room(ctx context.Context, id string) (model.Room, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, device_id, name, workspace_path, settings, created_at, updated_at FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return model.Room{}, ErrNotFound
	}
	if err != nil {
		return model.Room{}, fmt.Errorf("select room: %w", err)
	}
	return room, nil
}

func (s *Store) RoomsByDevice(ctx context.Context, deviceID string) ([]model.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, name, workspace_path, settings, created_at, updated_at
		 FROM rooms WHERE device_id = ? ORDER BY created_at`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return out, nil
}

type UpdateRoomParams struct {
	Name          *string
	WorkspacePath *string
	Settings      *string
}

func (s *Store) UpdateRoom(ctx context.Context, id string, p UpdateRoomParams) (model.Room, error) {
	room, err := s.Room(ctx, id)
	if err != nil {
		return model.Room{}, err
	}
	if p.Name != nil {
		room.Name = *p.Name
	}
	if p.WorkspacePath != nil {
		room.WorkspacePath = *p.WorkspacePath
	}
	if p.Settings != nil {
		room.Settings = *p.Settings
	}
	room.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE rooms SET name = ?, workspace_path = ?, settings = ?, updated_at = ? WHERE id = ?`,
		room.Name, room.WorkspacePath, room.Settings, formatTime(room.UpdatedAt), id)
	if err != nil {
		return model.Room{}, fmt.Errorf("update room: %w", err)
	}
	return room, nil
}

// DeleteRoom removes the room and its threads and session records.
func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete room: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE id = ?`, id)
	if err = row.Scan(&exists); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if exists == 0 {
		err = ErrNotFound
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM threads WHERE room_id = ?`, id); err != nil {
		return fmt.Errorf("delete room threads: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM device_sessions WHERE room_id = ?`, id); err != nil {
		return fmt.Errorf("delete room sessions: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("delete room: commit: %w", err)
	}
	return nil
}

func scanRoom(row interface{ Scan(...any) error }) (model.Room, error) {
	var room model.Room
	var createdAt, updatedAt string
	err := row.Scan(&room.ID, &room.DeviceID, &room.Name, &room.WorkspacePath, &room.Settings, &createdAt, &updatedAt)
	if err != nil {
		return model.Room{}, err
	}
	room.CreatedAt = parseTime(createdAt)
	room.UpdatedAt = parseTime(updatedAt)
	return room, nil
}
