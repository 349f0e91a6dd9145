package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"remoteprompt-server/internal/model"
)

type CreateJobParams struct {
	Runner      string
	Input       string
	DeviceID    string
	RoomID      string
	ThreadID    string
	NotifyToken string
}

func (s *Store) CreateJob(ctx context.Context, p CreateJobParams) (model.Job, error) {
	job := model.Job{
		ID:          uuid.NewString(),
		Runner:      p.Runner,
		Input:       p.Input,
		DeviceID:    p.DeviceID,
		RoomID:      p.RoomID,
		ThreadID:    p.ThreadID,
		Status:      model.StatusQueued,
		NotifyToken: p.NotifyToken,
		CreatedAt:   s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, runner, input, device_id, room_id, thread_id, status, notify_token, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Runner, job.Input, job.DeviceID, job.RoomID, nullString(job.ThreadID),
		string(job.Status), job.NotifyToken, formatTime(job.CreatedAt))
	if err != nil {
		return model.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

const jobColumns = `id, runner, input, device_id, room_id, thread_id, status, exit_code, stdout, stderr, notify_token, created_at, started_at, finished_at`

func (s *Store) Job(ctx context.Context, id string) (model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

type JobFilter struct {
	Limit    int
	Status   model.JobStatus
	DeviceID string
}

func (s *Store) Jobs(ctx context.Context, f JobFilter) ([]model.Job, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, `status = ?`)
		args = append(args, string(f.Status))
	}
	if f.DeviceID != "" {
		conds = append(conds, `device_id = ?`)
		args = append(args, f.DeviceID)
	}
	for i, cond := range conds {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// MarkJobRunning moves a queued job to running. Any other starting status is
// an invalid transition.
func (s *Store) MarkJobRunning(ctx context.Context, id string, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(model.StatusRunning), formatTime(startedAt), id, string(model.StatusQueued))
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	if n == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

type FinalizeJobParams struct {
	JobID      string
	Status     model.JobStatus
	ExitCode   int
	Stdout     string
	Stderr     string
	FinishedAt time.Time
}

// FinalizeJob commits the terminal job update, the thread unread mutation,
// and the badge count in a single transaction. The badge is counted after
// the unread write so it reflects the job that just finished.
func (s *Store) FinalizeJob(ctx context.Context, p FinalizeJobParams) (badge int, err error) {
	if !p.Status.Terminal() {
		return 0, fmt.Errorf("finalize job: %q is not a terminal status", p.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("finalize job: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var runner, deviceID string
	var threadID sql.NullString
	row := tx.QueryRowContext(ctx, `SELECT runner, device_id, thread_id FROM jobs WHERE id = ?`, p.JobID)
	if err = row.Scan(&runner, &deviceID, &threadID); err != nil {
		if err == sql.ErrNoRows {
			err = ErrNotFound
		}
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, exit_code = ?, stdout = ?, stderr = ?, finished_at = ? WHERE id = ? AND status = ?`,
		string(p.Status), p.ExitCode, p.Stdout, p.Stderr, formatTime(p.FinishedAt), p.JobID, string(model.StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("finalize job: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("finalize job: %w", err)
	}
	if n == 0 {
		err = fmt.Errorf("job %s: %w", p.JobID, ErrInvalidTransition)
		return 0, err
	}

	if threadID.Valid && threadID.String != "" {
		if err = addUnreadRunner(ctx, tx, threadID.String, runner, s.now()); err != nil {
			return 0, err
		}
	}

	row = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM threads t JOIN rooms r ON t.room_id = r.id WHERE r.device_id = ? AND t.has_unread = 1`,
		deviceID)
	if err = row.Scan(&badge); err != nil {
		return 0, fmt.Errorf("finalize job: badge count: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("finalize job: commit: %w", err)
	}
	return badge, nil
}

// addUnreadRunner adds the runner to the thread's unread set (idempotent)
// and raises the unread flag. A missing thread is skipped, matching jobs
// whose thread was deleted mid-flight.
func addUnreadRunner(ctx context.Context, tx *sql.Tx, threadID, runner string, now time.Time) error {
	var rawRunners string
	row := tx.QueryRowContext(ctx, `SELECT unread_runners FROM threads WHERE id = ?`, threadID)
	if err := row.Scan(&rawRunners); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("read thread unread: %w", err)
	}

	var runners []string
	if rawRunners != "" {
		if err := json.Unmarshal([]byte(rawRunners), &runners); err != nil {
			runners = nil
		}
	}
	present := false
	for _, r := range runners {
		if r == runner {
			present = true
			break
		}
	}
	if !present {
		runners = append(runners, runner)
	}
	encoded, err := json.Marshal(runners)
	if err != nil {
		return fmt.Errorf("encode unread runners: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE threads SET has_unread = 1, unread_runners = ?, updated_at = ? WHERE id = ?`,
		string(encoded), formatTime(now), threadID)
	if err != nil {
		return fmt.Errorf("update thread unread: %w", err)
	}
	return nil
}

func (s *Store) transitionError(ctx context.Context, id string) error {
	var status string
	row := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id)
	if err := row.Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	return fmt.Errorf("job %s is %s: %w", id, status, ErrInvalidTransition)
}

func scanJob(row interface{ Scan(...any) error }) (model.Job, error) {
	var job model.Job
	var threadID sql.NullString
	var exitCode sql.NullInt64
	var status, createdAt string
	var startedAt, finishedAt sql.NullString
	err := row.Scan(&job.ID, &job.Runner, &job.Input, &job.DeviceID, &job.RoomID, &threadID,
		&status, &exitCode, &job.Stdout, &job.Stderr, &job.NotifyToken, &createdAt, &startedAt, &finishedAt)
	if err != nil {
		return model.Job{}, err
	}
	if threadID.Valid {
		job.ThreadID = threadID.String
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		job.ExitCode = &code
	}
	job.Status = model.JobStatus(status)
	job.CreatedAt = parseTime(createdAt)
	job.StartedAt = scanNullTime(startedAt)
	job.FinishedAt = scanNullTime(finishedAt)
	return job, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
