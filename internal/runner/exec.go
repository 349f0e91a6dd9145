package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// execResult captures one finished or aborted process invocation. Err is
// set only for launch failures; a nonzero exit status is reported through
// ExitCode instead.
type execResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Err      error
}

// commandFunc invokes argv with the given stdin and working directory,
// bounded by timeout. Strategies hold it as a field so tests can swap in a
// stub instead of spawning real processes.
type commandFunc func(ctx context.Context, argv []string, stdin, dir string, timeout time.Duration) execResult

func runCommand(ctx context.Context, argv []string, stdin, dir string, timeout time.Duration) execResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := execResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res
	}
	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
	case ctx.Err() != nil:
		res.Err = ctx.Err()
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.Err = err
	}
	return res
}
