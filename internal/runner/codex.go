package runner

import (
	"context"
	"fmt"
	"log"
	"regexp"
)

// codex prints its session id on a log line; the CLI offers no way to set
// one up front, so we scrape it from the output.
var codexSessionPattern = regexp.MustCompile(`(?i)session id:\s+([a-f0-9\-]{36})`)

// Codex drives the codex CLI. Resume uses the `resume <id>` subcommand
// arguments; new session ids are extracted from combined stdout+stderr.
type Codex struct {
	base
}

func NewCodex(sessions SessionDirectory) *Codex {
	return &Codex{base: newBase("codex", sessions)}
}

func (c *Codex) Execute(ctx context.Context, req Request) Result {
	if req.ThreadID == "" {
		return failure(errThreadRequired)
	}
	argv := buildCodexArgs(req.Settings)

	known, err := c.storedSession(ctx, req)
	if err != nil {
		log.Printf("runner: codex session lookup failed: %v", err)
		return failure(err.Error())
	}
	if known != "" {
		argv = append(argv, "resume", known)
		log.Printf("runner: resuming codex session %s for %s in room %s thread %s",
			known, req.DeviceID, req.RoomID, req.ThreadID)
	}

	res := c.run(ctx, argv, req.Prompt, req.WorkspacePath, c.timeout)
	if res.TimedOut {
		log.Printf("runner: codex session timed out for %s", req.DeviceID)
		return failure("Timeout")
	}
	if res.Err != nil {
		log.Printf("runner: codex execution failed: %v", res.Err)
		return failure(res.Err.Error())
	}

	combined := res.Stdout
	if res.Stderr != "" {
		combined = res.Stdout + "\n" + res.Stderr
	}
	sessionID := known
	if m := codexSessionPattern.FindStringSubmatch(combined); res.ExitCode == 0 && m != nil {
		sessionID = m[1]
		if err := c.saveSession(ctx, req, sessionID); err != nil {
			log.Printf("runner: save codex session id: %v", err)
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
