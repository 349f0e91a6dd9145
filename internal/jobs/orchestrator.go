// Package jobs coordinates job persistence, runner execution, stream
// fan-out, and push notifications.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"remoteprompt-server/internal/metrics"
	"remoteprompt-server/internal/model"
	"remoteprompt-server/internal/runner"
	"remoteprompt-server/internal/store"
	"remoteprompt-server/internal/stream"
)

// internalError is the stderr written when execution dies somewhere no
// structured message exists, so clients never see raw stack material.
const internalError = "Internal error"

// Notifier delivers one push notification. Implementations report failure
// through the return value and never let delivery faults escape.
type Notifier interface {
	Send(ctx context.Context, token, title, body string, badge int) bool
}

// Dispatcher schedules job execution off the caller's goroutine. A nil
// Dispatcher runs the job inline before Submit returns.
type Dispatcher func(task func())

type Config struct {
	Store    *store.Store
	Registry *runner.Registry
	Bridge   *stream.Bridge
	Notifier Notifier
	Dispatch Dispatcher
	Metrics  *metrics.Collector
	Now      func() time.Time
}

// Orchestrator drives jobs from submission to a terminal status. All
// execution failures are folded into the job record; nothing from the
// runner layer propagates to callers.
type Orchestrator struct {
	store    *store.Store
	registry *runner.Registry
	bridge   *stream.Bridge
	notifier Notifier
	dispatch Dispatcher
	metrics  *metrics.Collector
	now      func() time.Time
}

func New(cfg Config) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Bridge == nil {
		cfg.Bridge = stream.NewBridge(nil)
	}
	return &Orchestrator{
		store:    cfg.Store,
		registry: cfg.Registry,
		bridge:   cfg.Bridge,
		notifier: cfg.Notifier,
		dispatch: cfg.Dispatch,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
}

// SubmitRequest carries everything needed to create and execute one job.
// WorkspacePath and Settings are resolved by the caller from the room and
// passed through to the runner untouched.
type SubmitRequest struct {
	Runner        string
	Input         string
	DeviceID      string
	RoomID        string
	ThreadID      string
	WorkspacePath string
	NotifyToken   string
	Settings      *runner.Settings
}

// Submit stores a queued job and schedules its execution. The returned
// snapshot is the queued row; with a nil Dispatcher the job has already
// finished by the time Submit returns, and callers reload it by id.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (model.Job, error) {
	job, err := o.store.CreateJob(ctx, store.CreateJobParams{
		Runner:      req.Runner,
		Input:       req.Input,
		DeviceID:    req.DeviceID,
		RoomID:      req.RoomID,
		ThreadID:    req.ThreadID,
		NotifyToken: req.NotifyToken,
	})
	if err != nil {
		return model.Job{}, err
	}
	o.metrics.RecordSubmitted(job.Runner)
	log.Printf("jobs: job %s created (%s) for device %s", job.ID, job.Runner, job.DeviceID)

	task := func() {
		// Execution outlives the submitting request.
		o.ExecuteJob(context.Background(), job.ID, req.WorkspacePath, req.Settings)
	}
	if o.dispatch != nil {
		o.dispatch(task)
	} else {
		task()
	}
	return job, nil
}

// ExecuteJob drives one stored job to a terminal status: mark running,
// run the strategy, finalize, fan out, notify.
func (o *Orchestrator) ExecuteJob(ctx context.Context, jobID, workspacePath string, settings *runner.Settings) {
	job, err := o.store.Job(ctx, jobID)
	if err != nil {
		log.Printf("jobs: job %s not found: %v", jobID, err)
		return
	}

	startedAt := o.now().UTC()
	if err := o.store.MarkJobRunning(ctx, jobID, startedAt); err != nil {
		log.Printf("jobs: mark job %s running: %v", jobID, err)
		return
	}
	job.Status = model.StatusRunning
	job.StartedAt = &startedAt
	o.publish(jobID, map[string]any{
		"status":     string(model.StatusRunning),
		"started_at": startedAt.Format(time.RFC3339Nano),
	}, false)

	log.Printf("jobs: executing job %s (%s) in workspace %s", jobID, job.Runner, workspacePath)
	out := o.run(ctx, job, workspacePath, settings)
	o.finalize(ctx, job, out)
}

type outcome struct {
	status   model.JobStatus
	exitCode int
	stdout   string
	stderr   string
}

// run resolves the strategy and executes it, converting every failure
// mode into an outcome. A panic anywhere below lands as Internal error.
func (o *Orchestrator) run(ctx context.Context, job model.Job, workspacePath string, settings *runner.Settings) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("jobs: job %s execution panicked: %v", job.ID, r)
			out = outcome{status: model.StatusFailed, exitCode: 1, stderr: internalError}
		}
	}()

	strategy, err := o.registry.Get(job.Runner)
	if err != nil {
		log.Printf("jobs: job %s: %v", job.ID, err)
		return outcome{status: model.StatusFailed, exitCode: 1, stderr: err.Error()}
	}

	res := strategy.Execute(ctx, runner.Request{
		Prompt:          job.Input,
		DeviceID:        job.DeviceID,
		RoomID:          job.RoomID,
		ThreadID:        job.ThreadID,
		WorkspacePath:   workspacePath,
		ContinueSession: true,
		Settings:        settings,
	})
	if res.Success {
		return outcome{status: model.StatusSuccess, exitCode: 0, stdout: res.Output}
	}
	return outcome{status: model.StatusFailed, exitCode: 1, stdout: res.Output, stderr: res.Error}
}

// finalize commits the terminal update, then fans out the terminal event
// and the push notification. A store failure gets one retry that forces
// the job into failed/Internal error rather than leaving it running.
func (o *Orchestrator) finalize(ctx context.Context, job model.Job, out outcome) {
	finishedAt := o.now().UTC()

	var badge int
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		badge, err = o.store.FinalizeJob(ctx, store.FinalizeJobParams{
			JobID:      job.ID,
			Status:     out.status,
			ExitCode:   out.exitCode,
			Stdout:     out.stdout,
			Stderr:     out.stderr,
			FinishedAt: finishedAt,
		})
		if err == nil {
			break
		}
		log.Printf("jobs: finalize job %s: %v", job.ID, err)
		out = outcome{status: model.StatusFailed, exitCode: 1, stdout: out.stdout, stderr: internalError}
	}
	if err != nil {
		return
	}

	if job.StartedAt != nil {
		o.metrics.RecordCompleted(job.Runner, string(out.status), finishedAt.Sub(*job.StartedAt).Seconds())
	}

	o.publish(job.ID, map[string]any{
		"status":      string(out.status),
		"finished_at": finishedAt.Format(time.RFC3339Nano),
		"exit_code":   out.exitCode,
	}, true)

	o.sendNotification(ctx, job, out.status, badge)
}

func (o *Orchestrator) publish(jobID string, payload map[string]any, closeAfter bool) {
	o.bridge.Publish(jobID, payload, closeAfter)
	o.metrics.RecordBroadcast()
}

func (o *Orchestrator) sendNotification(ctx context.Context, job model.Job, status model.JobStatus, badge int) {
	if job.NotifyToken == "" {
		return
	}
	if o.notifier == nil {
		log.Printf("jobs: no notifier configured, skipping notification for job %s", job.ID)
		return
	}

	title := "Job completed"
	if status != model.StatusSuccess {
		title = "Job failed"
	}

	roomName := "Unknown"
	if room, err := o.store.Room(ctx, job.RoomID); err == nil {
		roomName = room.Name
	}
	threadName := "Default"
	if job.ThreadID != "" {
		if thread, err := o.store.Thread(ctx, job.ThreadID); err == nil {
			threadName = thread.Name
		}
	}

	body := fmt.Sprintf("%s/%s - %s", roomName, threadName, job.Runner)
	if !o.notifier.Send(ctx, job.NotifyToken, title, body, badge) {
		log.Printf("jobs: notification for job %s not delivered", job.ID)
		o.metrics.RecordNotification("failed")
		return
	}
	log.Printf("jobs: notification sent for job %s (badge=%d)", job.ID, badge)
	o.metrics.RecordNotification("sent")
}
