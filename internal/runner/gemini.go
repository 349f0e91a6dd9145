package runner

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// Gemini drives the gemini CLI. The prompt travels as the trailing
// positional argument rather than stdin, and the CLI never reports a
// session id, so one is synthesized on the first successful run.
type Gemini struct {
	base
}

func NewGemini(sessions SessionDirectory) *Gemini {
	return &Gemini{base: newBase("gemini", sessions)}
}

func (g *Gemini) Execute(ctx context.Context, req Request) Result {
	if req.ThreadID == "" {
		return failure(errThreadRequired)
	}
	argv := buildGeminiArgs(req.Settings)

	sessionID, err := g.storedSession(ctx, req)
	if err != nil {
		log.Printf("runner: gemini session lookup failed: %v", err)
		return failure(err.Error())
	}
	if sessionID != "" {
		argv = append(argv, "--resume", sessionID)
		log.Printf("runner: resuming gemini session %s for %s in room %s thread %s",
			sessionID, req.DeviceID, req.RoomID, req.ThreadID)
	} else {
		log.Printf("runner: starting new gemini session for %s in room %s thread %s",
			req.DeviceID, req.RoomID, req.ThreadID)
	}

	argv = append(argv, req.Prompt)

	res := g.run(ctx, argv, "", req.WorkspacePath, g.timeout)
	if res.TimedOut {
		log.Printf("runner: gemini session timed out for %s", req.DeviceID)
		return failure("Timeout")
	}
	if res.Err != nil {
		log.Printf("runner: gemini execution failed: %v", res.Err)
		return failure(res.Err.Error())
	}

	if res.ExitCode == 0 && sessionID == "" {
		sessionID = uuid.NewString()
		if err := g.saveSession(ctx, req, sessionID); err != nil {
			log.Printf("runner: save gemini session id: %v", err)
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
