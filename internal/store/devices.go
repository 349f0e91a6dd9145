package store

import (
	"context"
	"database/sql"
	"fmt"

	"remoteprompt-server/internal/model"
)

func (s *Store) UpsertDevice(ctx context.Context, deviceID, deviceToken string) (model.Device, error) {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (device_id, device_token, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET device_token = excluded.device_token, updated_at = excluded.updated_at`,
		deviceID, deviceToken, formatTime(now), formatTime(now))
	if err != nil {
		return model.Device{}, fmt.Errorf("upsert device: %w", err)
	}
	return s.Device(ctx, deviceID)
}

func (s *Store) Device(ctx context.Context, deviceID string) (model.Device, error) {
	var device model.Device
	var createdAt, updatedAt string
	row := s.db.QueryRowContext(ctx,
		`SELECT device_id, device_token, created_at, updated_at FROM devices WHERE device_id = ?`, deviceID)
	err := row.Scan(&device.DeviceID, &device.DeviceToken, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return model.Device{}, ErrNotFound
	}
	if err != nil {
		return model.Device{}, fmt.Errorf("select device: %w", err)
	}
	device.CreatedAt = parseTime(createdAt)
	device.UpdatedAt = parseTime(updatedAt)
	return device, nil
}
