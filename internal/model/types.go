package model

import "time"

type JobStatus string

const (
	StatusQueued  JobStatus = "queued"
	StatusRunning JobStatus = "running"
	StatusSuccess JobStatus = "success"
	StatusFailed  JobStatus = "failed"
)

func (s JobStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type Job struct {
	ID          string
	Runner      string
	Input       string
	DeviceID    string
	RoomID      string
	ThreadID    string
	Status      JobStatus
	ExitCode    *int
	Stdout      string
	Stderr      string
	NotifyToken string
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

type Room struct {
	ID            string
	DeviceID      string
	Name          string
	WorkspacePath string
	Settings      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Thread struct {
	ID            string
	RoomID        string
	Name          string
	HasUnread     bool
	UnreadRunners []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Device struct {
	DeviceID    string
	DeviceToken string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type SessionRecord struct {
	DeviceID  string
	RoomID    string
	Runner    string
	ThreadID  string
	SessionID string
	CreatedAt time.Time
	UpdatedAt time.Time
}
