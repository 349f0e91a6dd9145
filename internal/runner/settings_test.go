package runner

import (
	"errors"
	"strings"
	"testing"
)

func TestParseSettings_Valid(t *testing.T) {
	raw := `{
		"claude": {"model": "opus", "permission_mode": "ask", "tools": ["Bash", "Edit"]},
		"codex": {"model": "gpt-5.1-codex", "sandbox": "workspace-write"},
		"unknown": {"ignored": true}
	}`
	s, err := ParseSettings(raw)
	if err != nil {
		t.Fatalf("ParseSettings: %v", err)
	}
	if s.Claude == nil || s.Claude.Model != "opus" || s.Claude.PermissionMode != "ask" {
		t.Fatalf("unexpected claude options: %+v", s.Claude)
	}
	if len(s.Claude.Tools) != 2 {
		t.Fatalf("unexpected tools: %v", s.Claude.Tools)
	}
	if s.Codex == nil || s.Codex.Model != "gpt-5.1-codex" || s.Codex.Sandbox != "workspace-write" {
		t.Fatalf("unexpected codex options: %+v", s.Codex)
	}
}

func TestParseSettings_EmptyAndNull(t *testing.T) {
	for _, raw := range []string{"", "  ", "null"} {
		s, err := ParseSettings(raw)
		if err != nil || s != nil {
			t.Fatalf("ParseSettings(%q) = %v, %v; want nil, nil", raw, s, err)
		}
	}
}

func TestParseSettings_Rejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"bad json", `{`, "Invalid JSON"},
		{"not an object", `[1,2]`, "Settings must be an object"},
		{"section not object", `{"claude": 5}`, "claude settings must be an object"},
		{"bad claude model", `{"claude":{"model":"gpt-4"}}`, "Invalid model for claude: gpt-4"},
		{"bad permission mode", `{"claude":{"permission_mode":"yolo"}}`, "Invalid permission_mode for claude"},
		{"claude sandbox", `{"claude":{"sandbox":"read-only"}}`, "Unsupported field for claude: sandbox"},
		{"codex permission mode", `{"codex":{"permission_mode":"ask"}}`, "Unsupported field for codex: permission_mode"},
		{"bad codex model", `{"codex":{"model":"gpt-4"}}`, "Invalid model for codex: gpt-4"},
		{"bad reasoning", `{"codex":{"reasoning_effort":"max"}}`, "Invalid reasoning_effort for codex"},
		{"tools not list", `{"claude":{"tools":"Bash"}}`, "tools must be a list"},
		{"bad tool", `{"claude":{"tools":["Bash","Hammer"]}}`, "Invalid tool for claude: Hammer"},
		{"flags not list", `{"claude":{"custom_flags":"-v"}}`, "custom_flags must be a list"},
	}
	for _, tc := range cases {
		_, err := ParseSettings(tc.raw)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %T", tc.name, err)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not contain %q", tc.name, err.Error(), tc.want)
		}
	}
}

func TestValidateCustomFlags(t *testing.T) {
	tooMany := make([]string, 11)
	for i := range tooMany {
		tooMany[i] = "-x"
	}
	if err := validateCustomFlags(tooMany, "claude"); err == nil || !strings.Contains(err.Error(), "Too many custom flags") {
		t.Fatalf("expected too-many error, got %v", err)
	}

	cases := []struct {
		name   string
		flag   string
		aiType string
		want   string
	}{
		{"not a flag", "verbose", "claude", "Invalid flag format"},
		{"too long", "-" + strings.Repeat("x", 100), "claude", "Flag too long"},
		{"reserved claude", "--model=opus", "claude", "Reserved flag cannot be used"},
		{"reserved codex short", "-m gpt-5.1", "codex", "Reserved flag cannot be used"},
		{"dangerous", "--no-verify", "claude", "Dangerous flag detected"},
		{"dangerous embedded", "--do---exec-stuff", "claude", "Dangerous flag detected"},
		{"shell meta", "--name=a;b", "claude", "Invalid character in flag"},
		{"newline", "--x\n-y", "claude", "Invalid character in flag"},
	}
	for _, tc := range cases {
		err := validateCustomFlags([]string{tc.flag}, tc.aiType)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not contain %q", tc.name, err.Error(), tc.want)
		}
	}

	ok := []string{"--verbose", "--max-turns=3", "-q"}
	if err := validateCustomFlags(ok, "claude"); err != nil {
		t.Fatalf("expected flags %v to pass, got %v", ok, err)
	}
	// codex reserves -m; claude does not.
	if err := validateCustomFlags([]string{"-m"}, "claude"); err != nil {
		t.Fatalf("expected -m allowed for claude, got %v", err)
	}
}
