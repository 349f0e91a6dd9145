package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"remoteprompt-server/internal/model"
	"remoteprompt-server/internal/runner"
	"remoteprompt-server/internal/store"
	"remoteprompt-server/internal/stream"
)

type fakeRunner struct {
	name    string
	result  runner.Result
	panics  bool
	lastReq *runner.Request
}

func (f *fakeRunner) Name() string { return f.name }

func (f *fakeRunner) Execute(ctx context.Context, req runner.Request) runner.Result {
	f.lastReq = &req
	if f.panics {
		panic("runner blew up")
	}
	return f.result
}

func (f *fakeRunner) SessionID(ctx context.Context, deviceID, roomID, threadID string) (string, bool, error) {
	return "", false, nil
}

type sentPush struct {
	token string
	title string
	body  string
	badge int
}

type fakeNotifier struct {
	ok    bool
	calls []sentPush
}

func (f *fakeNotifier) Send(ctx context.Context, token, title, body string, badge int) bool {
	f.calls = append(f.calls, sentPush{token: token, title: title, body: body, badge: badge})
	return f.ok
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedRoomAndThread(t *testing.T, st *store.Store, deviceID string) (model.Room, model.Thread) {
	t.Helper()
	ctx := context.Background()
	room, err := st.CreateRoom(ctx, store.CreateRoomParams{DeviceID: deviceID, Name: "demo room"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	thread, err := st.CreateThread(ctx, room.ID, "main")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	return room, thread
}

func TestSubmitRunsJobInline(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	room, thread := seedRoomAndThread(t, st, "device-1")

	claude := &fakeRunner{name: "claude", result: runner.Result{Success: true, Output: "all done", SessionID: "s-1"}}
	notifier := &fakeNotifier{ok: true}
	orch := New(Config{
		Store:    st,
		Registry: runner.NewRegistry(claude),
		Notifier: notifier,
	})

	queued, err := orch.Submit(ctx, SubmitRequest{
		Runner:        "claude",
		Input:         "write a haiku",
		DeviceID:      "device-1",
		RoomID:        room.ID,
		ThreadID:      thread.ID,
		WorkspacePath: "/work/demo",
		NotifyToken:   "tok-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if queued.Status != model.StatusQueued {
		t.Fatalf("submit snapshot status = %q", queued.Status)
	}

	job, err := st.Job(ctx, queued.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != model.StatusSuccess {
		t.Fatalf("job status = %q, stderr = %q", job.Status, job.Stderr)
	}
	if job.ExitCode == nil || *job.ExitCode != 0 {
		t.Fatalf("exit code = %v", job.ExitCode)
	}
	if job.Stdout != "all done" {
		t.Fatalf("stdout = %q", job.Stdout)
	}
	if job.StartedAt == nil || job.FinishedAt == nil {
		t.Fatalf("timestamps not set: started=%v finished=%v", job.StartedAt, job.FinishedAt)
	}

	if claude.lastReq == nil {
		t.Fatal("runner never executed")
	}
	req := *claude.lastReq
	if req.Prompt != "write a haiku" || req.DeviceID != "device-1" || req.RoomID != room.ID ||
		req.ThreadID != thread.ID || req.WorkspacePath != "/work/demo" || !req.ContinueSession {
		t.Fatalf("unexpected runner request: %+v", req)
	}

	got, err := st.Thread(ctx, thread.ID)
	if err != nil {
		t.Fatalf("reload thread: %v", err)
	}
	if !got.HasUnread {
		t.Fatal("thread should be unread after job completion")
	}
	if len(got.UnreadRunners) != 1 || got.UnreadRunners[0] != "claude" {
		t.Fatalf("unread runners = %v", got.UnreadRunners)
	}

	if len(notifier.calls) != 1 {
		t.Fatalf("notifications = %d", len(notifier.calls))
	}
	push := notifier.calls[0]
	if push.token != "tok-1" || push.title != "Job completed" {
		t.Fatalf("notification = %+v", push)
	}
	if push.body != "demo room/main - claude" {
		t.Fatalf("notification body = %q", push.body)
	}
	if push.badge != 1 {
		t.Fatalf("badge = %d", push.badge)
	}
}

func TestSubmitFailureNotifies(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	room, thread := seedRoomAndThread(t, st, "device-1")

	codex := &fakeRunner{name: "codex", result: runner.Result{Success: false, Output: "partial", Error: "boom"}}
	notifier := &fakeNotifier{ok: true}
	orch := New(Config{
		Store:    st,
		Registry: runner.NewRegistry(codex),
		Notifier: notifier,
	})

	queued, err := orch.Submit(ctx, SubmitRequest{
		Runner:      "codex",
		Input:       "fix the build",
		DeviceID:    "device-1",
		RoomID:      room.ID,
		ThreadID:    thread.ID,
		NotifyToken: "tok-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	job, err := st.Job(ctx, queued.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != model.StatusFailed {
		t.Fatalf("job status = %q", job.Status)
	}
	if job.ExitCode == nil || *job.ExitCode != 1 {
		t.Fatalf("exit code = %v", job.ExitCode)
	}
	if job.Stdout != "partial" || job.Stderr != "boom" {
		t.Fatalf("output = %q / %q", job.Stdout, job.Stderr)
	}

	if len(notifier.calls) != 1 || notifier.calls[0].title != "Job failed" {
		t.Fatalf("notifications = %+v", notifier.calls)
	}
}

func TestUnknownRunnerFailsJob(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	room, thread := seedRoomAndThread(t, st, "device-1")

	notifier := &fakeNotifier{ok: true}
	orch := New(Config{
		Store:    st,
		Registry: runner.NewRegistry(),
		Notifier: notifier,
	})

	queued, err := orch.Submit(ctx, SubmitRequest{
		Runner:   "mystery",
		Input:    "hello",
		DeviceID: "device-1",
		RoomID:   room.ID,
		ThreadID: thread.ID,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	job, err := st.Job(ctx, queued.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != model.StatusFailed {
		t.Fatalf("job status = %q", job.Status)
	}
	if job.Stderr != "Unknown runner: mystery" {
		t.Fatalf("stderr = %q", job.Stderr)
	}

	// No notify token was supplied, so nothing must be sent.
	if len(notifier.calls) != 0 {
		t.Fatalf("unexpected notifications: %+v", notifier.calls)
	}
}

func TestPanickingRunnerFailsJob(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	room, thread := seedRoomAndThread(t, st, "device-1")

	gemini := &fakeRunner{name: "gemini", panics: true}
	orch := New(Config{
		Store:    st,
		Registry: runner.NewRegistry(gemini),
	})

	queued, err := orch.Submit(ctx, SubmitRequest{
		Runner:   "gemini",
		Input:    "hello",
		DeviceID: "device-1",
		RoomID:   room.ID,
		ThreadID: thread.ID,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	job, err := st.Job(ctx, queued.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != model.StatusFailed {
		t.Fatalf("job status = %q", job.Status)
	}
	if job.Stderr != "Internal error" {
		t.Fatalf("stderr = %q", job.Stderr)
	}
	if job.ExitCode == nil || *job.ExitCode != 1 {
		t.Fatalf("exit code = %v", job.ExitCode)
	}
}

func TestExecuteJobPublishesLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	room, thread := seedRoomAndThread(t, st, "device-1")

	broadcaster := stream.New()
	t.Cleanup(broadcaster.Shutdown)
	bridge := stream.NewBridge(broadcaster)
	t.Cleanup(bridge.Shutdown)

	claude := &fakeRunner{name: "claude", result: runner.Result{Success: true, Output: "hi"}}

	var task func()
	orch := New(Config{
		Store:    st,
		Registry: runner.NewRegistry(claude),
		Bridge:   bridge,
		Dispatch: func(f func()) { task = f },
	})

	queued, err := orch.Submit(ctx, SubmitRequest{
		Runner:   "claude",
		Input:    "hello",
		DeviceID: "device-1",
		RoomID:   room.ID,
		ThreadID: thread.ID,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if queued.Status != model.StatusQueued {
		t.Fatalf("status before dispatch = %q", queued.Status)
	}
	if task == nil {
		t.Fatal("dispatcher never received the job")
	}

	sub := broadcaster.Subscribe(queued.ID)
	defer sub.Cancel()

	task()

	next := func() (stream.Event, bool) {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return sub.Next(waitCtx)
	}

	ev, ok := next()
	if !ok {
		t.Fatal("stream ended before the running event")
	}
	if ev.Payload["status"] != "running" {
		t.Fatalf("first event = %+v", ev.Payload)
	}
	if _, present := ev.Payload["started_at"]; !present {
		t.Fatalf("running event missing started_at: %+v", ev.Payload)
	}

	ev, ok = next()
	if !ok {
		t.Fatal("stream ended before the terminal event")
	}
	if ev.Payload["status"] != "success" {
		t.Fatalf("terminal event = %+v", ev.Payload)
	}
	if code, _ := ev.Payload["exit_code"].(int); code != 0 {
		t.Fatalf("terminal exit_code = %v", ev.Payload["exit_code"])
	}

	if _, ok = next(); ok {
		t.Fatal("stream should close after the terminal event")
	}
}

func TestNotificationNameFallbacks(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	claude := &fakeRunner{name: "claude", result: runner.Result{Success: true, Output: "done"}}
	notifier := &fakeNotifier{ok: true}
	orch := New(Config{
		Store:    st,
		Registry: runner.NewRegistry(claude),
		Notifier: notifier,
	})

	// Room id points nowhere and there is no thread: the notification
	// falls back to placeholder names.
	queued, err := orch.Submit(ctx, SubmitRequest{
		Runner:      "claude",
		Input:       "hello",
		DeviceID:    "device-1",
		RoomID:      "gone",
		NotifyToken: "tok-9",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	job, err := st.Job(ctx, queued.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != model.StatusSuccess {
		t.Fatalf("job status = %q", job.Status)
	}

	if len(notifier.calls) != 1 {
		t.Fatalf("notifications = %d", len(notifier.calls))
	}
	push := notifier.calls[0]
	if push.body != "Unknown/Default - claude" {
		t.Fatalf("notification body = %q", push.body)
	}
	if push.badge != 0 {
		t.Fatalf("badge = %d", push.badge)
	}
}

func TestNotifierFailureDoesNotAffectJob(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	room, thread := seedRoomAndThread(t, st, "device-1")

	claude := &fakeRunner{name: "claude", result: runner.Result{Success: true, Output: "done"}}
	notifier := &fakeNotifier{ok: false}
	orch := New(Config{
		Store:    st,
		Registry: runner.NewRegistry(claude),
		Notifier: notifier,
	})

	queued, err := orch.Submit(ctx, SubmitRequest{
		Runner:      "claude",
		Input:       "hello",
		DeviceID:    "device-1",
		RoomID:      room.ID,
		ThreadID:    thread.ID,
		NotifyToken: "tok-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	job, err := st.Job(ctx, queued.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != model.StatusSuccess {
		t.Fatalf("job status = %q", job.Status)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("notifications = %d", len(notifier.calls))
	}
}
