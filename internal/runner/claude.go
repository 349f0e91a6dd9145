package runner

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// Claude drives the claude CLI. The session id is always chosen on this
// side: a fresh uuid passed via --session-id for new conversations, or the
// stored id via --resume.
type Claude struct {
	base
	trustedDir string
}

// NewClaude returns the claude strategy. trustedDir is the working
// directory used when a job carries no workspace path.
func NewClaude(sessions SessionDirectory, trustedDir string) *Claude {
	return &Claude{base: newBase("claude", sessions), trustedDir: trustedDir}
}

func (c *Claude) Execute(ctx context.Context, req Request) Result {
	if req.ThreadID == "" {
		return failure(errThreadRequired)
	}
	argv := buildClaudeArgs(req.Settings)

	sessionID, err := c.storedSession(ctx, req)
	if err != nil {
		log.Printf("runner: claude session lookup failed: %v", err)
		return failure(err.Error())
	}
	if sessionID != "" {
		argv = append(argv, "--resume", sessionID)
		log.Printf("runner: resuming claude session %s for %s in room %s thread %s",
			sessionID, req.DeviceID, req.RoomID, req.ThreadID)
	} else {
		sessionID = uuid.NewString()
		argv = append(argv, "--session-id", sessionID)
		log.Printf("runner: starting new claude session %s for %s in room %s thread %s",
			sessionID, req.DeviceID, req.RoomID, req.ThreadID)
	}

	dir := req.WorkspacePath
	if dir == "" {
		dir = c.trustedDir
	}

	res := c.run(ctx, argv, req.Prompt, dir, c.timeout)
	if res.TimedOut {
		log.Printf("runner: claude session timed out for %s", req.DeviceID)
		return failure("Timeout")
	}
	if res.Err != nil {
		log.Printf("runner: claude execution failed: %v", res.Err)
		return failure(res.Err.Error())
	}

	if res.ExitCode == 0 {
		if err := c.saveSession(ctx, req, sessionID); err != nil {
			log.Printf("runner: save claude session id: %v", err)
			return Result{
				Output:    res.Stdout,
				SessionID: sessionID,
				Error:     fmt.Sprintf("save session id: %v", err),
			}
		}
	}

	return Result{
		Success:   res.ExitCode == 0,
		Output:    res.Stdout,
		SessionID: sessionID,
		Error:     res.Stderr,
	}
}
