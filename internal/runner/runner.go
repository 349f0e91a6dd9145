// Package runner executes prompts against external AI CLI backends and
// keeps the per-conversation session bookkeeping those backends need to
// resume work across invocations.
package runner

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// execTimeout bounds one external CLI invocation. Long agent runs are
// expected; anything past this is treated as stuck.
const execTimeout = 30 * time.Minute

// Request carries one prompt execution against a backend.
type Request struct {
	Prompt          string
	DeviceID        string
	RoomID          string
	ThreadID        string
	WorkspacePath   string
	ContinueSession bool
	Settings        *Settings
}

// Result is the structured outcome of one execution. Runners never fail
// past this contract: timeouts, launch faults, and bookkeeping errors all
// land here as a failed Result.
type Result struct {
	Success   bool
	Output    string
	SessionID string
	Error     string
}

// SessionDirectory persists session identifiers keyed by
// (device, room, runner, thread).
type SessionDirectory interface {
	SessionID(ctx context.Context, deviceID, roomID, runner, threadID string) (string, bool, error)
	SaveSessionID(ctx context.Context, deviceID, roomID, runner, threadID, sessionID string) error
}

// Runner is one external CLI backend.
type Runner interface {
	Name() string
	Execute(ctx context.Context, req Request) Result
	SessionID(ctx context.Context, deviceID, roomID, threadID string) (string, bool, error)
}

// Registry resolves runners by name.
type Registry struct {
	runners map[string]Runner
}

func NewRegistry(runners ...Runner) *Registry {
	m := make(map[string]Runner, len(runners))
	for _, r := range runners {
		m[r.Name()] = r
	}
	return &Registry{runners: m}
}

// Get returns the runner registered under name. The error message is the
// one surfaced to clients in job stderr, so it stays in their vocabulary.
func (reg *Registry) Get(name string) (Runner, error) {
	r, ok := reg.runners[name]
	if !ok {
		return nil, fmt.Errorf("Unknown runner: %s", name)
	}
	return r, nil
}

func (reg *Registry) Names() []string {
	names := make([]string, 0, len(reg.runners))
	for name := range reg.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// base holds what every backend strategy shares.
type base struct {
	name     string
	sessions SessionDirectory
	run      commandFunc
	timeout  time.Duration
}

func newBase(name string, sessions SessionDirectory) base {
	return base{name: name, sessions: sessions, run: runCommand, timeout: execTimeout}
}

func (b *base) Name() string { return b.name }

func (b *base) SessionID(ctx context.Context, deviceID, roomID, threadID string) (string, bool, error) {
	return b.sessions.SessionID(ctx, deviceID, roomID, b.name, threadID)
}

// storedSession returns the persisted session id for the request's key, or
// "" when the caller opted out of resuming or nothing is stored yet.
func (b *base) storedSession(ctx context.Context, req Request) (string, error) {
	if !req.ContinueSession {
		return "", nil
	}
	id, ok, err := b.sessions.SessionID(ctx, req.DeviceID, req.RoomID, b.name, req.ThreadID)
	if err != nil {
		return "", fmt.Errorf("load session id: %w", err)
	}
	if !ok {
		return "", nil
	}
	return id, nil
}

func (b *base) saveSession(ctx context.Context, req Request, sessionID string) error {
	return b.sessions.SaveSessionID(ctx, req.DeviceID, req.RoomID, b.name, req.ThreadID, sessionID)
}

func failure(msg string) Result {
	return Result{Error: msg}
}

const errThreadRequired = "thread_id is required for session management"
