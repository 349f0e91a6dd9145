package runner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Settings are the per-room backend options a client may set. Only the
// fields below survive validation; everything else is dropped.
type Settings struct {
	Claude *ClaudeOptions `json:"claude,omitempty"`
	Codex  *CodexOptions  `json:"codex,omitempty"`
}

type ClaudeOptions struct {
	Model          string   `json:"model,omitempty"`
	PermissionMode string   `json:"permission_mode,omitempty"`
	Tools          []string `json:"tools,omitempty"`
	CustomFlags    []string `json:"custom_flags,omitempty"`
}

type CodexOptions struct {
	Model           string   `json:"model,omitempty"`
	Sandbox         string   `json:"sandbox,omitempty"`
	ApprovalPolicy  string   `json:"approval_policy,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"`
	CustomFlags     []string `json:"custom_flags,omitempty"`
}

// ValidationError reports a rejected settings document. Its message is
// returned to the client verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

var (
	claudeModels          = []string{"sonnet", "opus", "haiku"}
	claudePermissionModes = []string{"default", "ask", "deny"}
	claudeTools           = []string{
		"Bash", "Edit", "Read", "Write", "Grep", "Glob", "Task",
		"WebFetch", "WebSearch", "NotebookEdit", "TodoWrite",
		"SlashCommand", "Skill",
	}

	codexModels           = []string{"gpt-5.1", "gpt-5.1-codex", "gpt-5.1-codex-mini", "gpt-5.1-codex-max"}
	codexSandboxes        = []string{"read-only", "workspace-write", "danger-full-access"}
	codexApprovalPolicies = []string{"untrusted", "on-failure", "on-request", "never"}
	codexReasoningEfforts = []string{"low", "medium", "high", "extra-high"}

	reservedFlags = map[string][]string{
		"claude": {"--model", "--permission-mode", "--tools"},
		"codex":  {"-m", "--model", "-s", "--sandbox", "-a", "--ask-for-approval", "-r", "--reasoning-effort"},
	}

	dangerousFlags = []string{
		"--exec", "--eval", "--unsafe", "--allow-root",
		"--disable-sandbox", "--no-verify", "--rm", "--delete",
	}
)

const shellMetaChars = ";|&$`()<>\n\r"

// ParseSettings parses and sanitizes a settings JSON document. Empty input
// and JSON null both yield nil. Unknown top-level keys are dropped; known
// sections are validated strictly.
func ParseSettings(raw string) (*Settings, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, invalid("Invalid JSON: %v", err)
	}
	if doc == nil {
		return nil, nil
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, invalid("Settings must be an object")
	}
	return ValidateSettings(obj)
}

// ValidateSettings sanitizes a decoded settings object, whitelisting the
// supported sections and rejecting invalid values.
func ValidateSettings(obj map[string]any) (*Settings, error) {
	out := &Settings{}

	if raw, ok := obj["claude"]; ok {
		section, ok := raw.(map[string]any)
		if !ok {
			return nil, invalid("claude settings must be an object")
		}
		opts, err := validateClaudeSection(section)
		if err != nil {
			return nil, err
		}
		out.Claude = opts
	}

	if raw, ok := obj["codex"]; ok {
		section, ok := raw.(map[string]any)
		if !ok {
			return nil, invalid("codex settings must be an object")
		}
		opts, err := validateCodexSection(section)
		if err != nil {
			return nil, err
		}
		out.Codex = opts
	}

	return out, nil
}

func validateClaudeSection(section map[string]any) (*ClaudeOptions, error) {
	opts := &ClaudeOptions{}

	if v, ok := section["model"]; ok {
		model, _ := v.(string)
		if !oneOf(model, claudeModels) {
			return nil, invalid("Invalid model for claude: %v", v)
		}
		opts.Model = model
	}
	if v, ok := section["permission_mode"]; ok {
		mode, _ := v.(string)
		if !oneOf(mode, claudePermissionModes) {
			return nil, invalid("Invalid permission_mode for claude: %v", v)
		}
		opts.PermissionMode = mode
	}
	for _, key := range []string{"sandbox", "approval_policy", "reasoning_effort"} {
		if _, ok := section[key]; ok {
			return nil, invalid("Unsupported field for claude: %s", key)
		}
	}
	if v, ok := section["tools"]; ok {
		tools, ok := stringList(v)
		if !ok {
			return nil, invalid("tools must be a list")
		}
		for _, tool := range tools {
			if !oneOf(tool, claudeTools) {
				return nil, invalid("Invalid tool for claude: %s", tool)
			}
		}
		opts.Tools = tools
	}
	if v, ok := section["custom_flags"]; ok {
		flags, ok := stringList(v)
		if !ok {
			return nil, invalid("custom_flags must be a list")
		}
		if err := validateCustomFlags(flags, "claude"); err != nil {
			return nil, err
		}
		opts.CustomFlags = flags
	}

	return opts, nil
}

func validateCodexSection(section map[string]any) (*CodexOptions, error) {
	opts := &CodexOptions{}

	enums := []struct {
		key     string
		allowed []string
		dst     *string
	}{
		{"model", codexModels, &opts.Model},
		{"sandbox", codexSandboxes, &opts.Sandbox},
		{"approval_policy", codexApprovalPolicies, &opts.ApprovalPolicy},
		{"reasoning_effort", codexReasoningEfforts, &opts.ReasoningEffort},
	}
	for _, e := range enums {
		if v, ok := section[e.key]; ok {
			value, _ := v.(string)
			if !oneOf(value, e.allowed) {
				return nil, invalid("Invalid %s for codex: %v", e.key, v)
			}
			*e.dst = value
		}
	}
	for _, key := range []string{"permission_mode", "tools"} {
		if _, ok := section[key]; ok {
			return nil, invalid("Unsupported field for codex: %s", key)
		}
	}
	if v, ok := section["custom_flags"]; ok {
		flags, ok := stringList(v)
		if !ok {
			return nil, invalid("custom_flags must be a list")
		}
		if err := validateCustomFlags(flags, "codex"); err != nil {
			return nil, err
		}
		opts.CustomFlags = flags
	}

	return opts, nil
}

func validateCustomFlags(flags []string, aiType string) error {
	if len(flags) > 10 {
		return invalid("Too many custom flags (max 10)")
	}
	reserved := reservedFlags[aiType]
	for _, flag := range flags {
		if !strings.HasPrefix(flag, "-") {
			return invalid("Invalid flag format: %s", flag)
		}
		if len(flag) > 100 {
			return invalid("Flag too long: %s", flag)
		}
		if name := flagName(flag); oneOf(name, reserved) {
			return invalid("Reserved flag cannot be used in custom_flags: %s. Use dedicated fields instead.", name)
		}
		lower := strings.ToLower(flag)
		for _, d := range dangerousFlags {
			if strings.Contains(lower, d) {
				return invalid("Dangerous flag detected: %s", flag)
			}
		}
		if strings.ContainsAny(flag, shellMetaChars) {
			return invalid("Invalid character in flag: %s", flag)
		}
	}
	return nil
}

// flagName isolates the option name: everything before the first '=' or
// whitespace.
func flagName(flag string) string {
	name := flag
	if i := strings.IndexByte(name, '='); i >= 0 {
		name = name[:i]
	}
	if fields := strings.Fields(name); len(fields) > 0 {
		name = fields[0]
	}
	return name
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func stringList(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
