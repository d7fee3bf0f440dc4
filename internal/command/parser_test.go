package command

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		typ   Type
		args  string
	}{
		{"approve short", "ok", Approve, ""},
		{"approve letter", "y", Approve, ""},
		{"approve mixed case", "YES", Approve, ""},
		{"approve ignores trailing text", "ok whatever", Approve, ""},
		{"deny", "no", Deny, ""},
		{"deny word", "reject", Deny, ""},
		{"cancel", "cancel", Cancel, ""},
		{"cancel ignores trailing text", "stop it now", Cancel, ""},
		{"continue with args", "continue tighten the error handling", Continue, "tighten the error handling"},
		{"continue bare", "continue", Continue, ""},
		{"diff with pattern", "diff handler", Diff, "handler"},
		{"commit with message", "commit fix login bug", Commit, "fix login bug"},
		{"push", "push", Push, ""},
		{"rollback", "rollback", Rollback, ""},
		{"status", "status", Status, ""},
		{"free text", "please refactor the parser", Message, "please refactor the parser"},
		{"free text starting like a word", "pushing the limits", Message, "pushing the limits"},
		{"cjk approve", "批准", Approve, ""},
		{"cjk commit", "提交 修复登录", Commit, "修复登录"},
		{"empty", "", Message, ""},
		{"whitespace only", "   ", Message, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if got.Type != tt.typ {
				t.Errorf("Parse(%q).Type = %s, want %s", tt.input, got.Type, tt.typ)
			}
			if got.Args != tt.args {
				t.Errorf("Parse(%q).Args = %q, want %q", tt.input, got.Args, tt.args)
			}
		})
	}
}

func TestParsePreservesRaw(t *testing.T) {
	p := Parse("  Commit fix login bug  ")
	if p.Raw != "Commit fix login bug" {
		t.Errorf("Raw = %q", p.Raw)
	}
}

func TestAliasSetsDisjoint(t *testing.T) {
	seen := map[string]Type{}
	for typ, words := range aliases {
		for _, w := range words {
			if prev, ok := seen[w]; ok {
				t.Errorf("alias %q in both %s and %s", w, prev, typ)
			}
			seen[w] = typ
		}
	}
}

func TestPredicates(t *testing.T) {
	if !Parse("ok").IsPermissionResponse() {
		t.Error("ok should be a permission response")
	}
	if !Parse("cancel").IsTaskControl() {
		t.Error("cancel should be task control")
	}
	if !Parse("diff").IsGitOperation() {
		t.Error("diff should be a git operation")
	}
	if Parse("hello world").IsPermissionResponse() || Parse("hello world").IsTaskControl() {
		t.Error("free text should be a plain message")
	}
}
