package store

import (
	"database/sql"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path and returns a Store
// over it.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return NewWithNow(db, time.Now)
}

func NewWithNow(db *sql.DB, now func() time.Time) *Store {
	return &Store{db: db, now: now}
}

func (s *Store) Close() error { return s.db.Close() }

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, raw)
	return t
}

func scanNullTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t := parseTime(raw.String)
	return &t
}
