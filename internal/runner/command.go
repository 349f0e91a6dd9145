package runner

import "strings"

// buildClaudeArgs assembles the claude invocation: non-interactive text
// output plus whatever validated options the room configured. Custom flags
// go last so dedicated options cannot be shadowed.
func buildClaudeArgs(s *Settings) []string {
	argv := []string{"claude", "--print", "--output-format", "text"}
	if s == nil || s.Claude == nil {
		return argv
	}
	opts := s.Claude
	if opts.Model != "" {
		argv = append(argv, "--model", opts.Model)
	}
	if opts.PermissionMode != "" {
		argv = append(argv, "--permission-mode", opts.PermissionMode)
	}
	if len(opts.Tools) > 0 {
		argv = append(argv, "--tools", strings.Join(opts.Tools, ","))
	}
	argv = append(argv, opts.CustomFlags...)
	return argv
}

func buildCodexArgs(s *Settings) []string {
	argv := []string{"codex", "exec"}
	if s == nil || s.Codex == nil {
		return argv
	}
	opts := s.Codex
	if opts.Model != "" {
		argv = append(argv, "-m", opts.Model)
	}
	if opts.Sandbox != "" {
		argv = append(argv, "-s", opts.Sandbox)
	}
	if opts.ApprovalPolicy != "" {
		argv = append(argv, "-a", opts.ApprovalPolicy)
	}
	if opts.ReasoningEffort != "" {
		argv = append(argv, "-r", opts.ReasoningEffort)
	}
	argv = append(argv, opts.CustomFlags...)
	return argv
}

// buildGeminiArgs has no configurable options yet; the prompt and any
// resume flag are appended by the strategy.
func buildGeminiArgs(_ *Settings) []string {
	return []string{"gemini"}
}
