// Package command classifies raw chat text into control commands.
package command

import "strings"

// Type is the category of a classified input line.
type Type string

const (
	// Permission responses
	Approve Type = "approve"
	Deny    Type = "deny"

	// Task control
	Cancel   Type = "cancel"
	Continue Type = "continue"

	// Repository operations
	Diff     Type = "diff"
	Commit   Type = "commit"
	Push     Type = "push"
	Rollback Type = "rollback"

	// Queries
	Status Type = "status"

	// Anything else goes to the agent as-is.
	Message Type = "message"
)

// Parsed is the result of classifying one input line.
type Parsed struct {
	Type Type
	Args string // remainder for commands that take arguments
	Raw  string // original input, trimmed
}

// Alias sets are disjoint: a first token matches at most one category.
var aliases = map[Type][]string{
	Approve:  {"ok", "y", "yes", "approve", "批准", "确认", "同意", "好", "行"},
	Deny:     {"no", "n", "deny", "reject", "拒绝", "不", "不行"},
	Cancel:   {"cancel", "stop", "abort", "取消", "停止"},
	Continue: {"continue", "继续", "再", "接着"},
	Diff:     {"diff", "查看", "改动", "变更"},
	Commit:   {"commit", "提交"},
	Push:     {"push", "推送", "推"},
	Rollback: {"rollback", "revert", "回滚", "撤销", "还原"},
	Status:   {"status", "状态", "进度"},
}

// takesArgs lists the commands whose remainder is meaningful.
var takesArgs = map[Type]bool{
	Continue: true,
	Diff:     true,
	Commit:   true,
}

var firstToken map[string]Type

func init() {
	firstToken = make(map[string]Type)
	for typ, words := range aliases {
		for _, w := range words {
			firstToken[w] = typ
		}
	}
}

// Parse classifies one line of input. It is total: every input maps to
// exactly one category, defaulting to Message with Args carrying the full
// original text.
func Parse(text string) Parsed {
	text = strings.TrimSpace(text)
	if text == "" {
		return Parsed{Type: Message, Raw: text}
	}

	first, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)

	typ, ok := firstToken[strings.ToLower(first)]
	if !ok {
		return Parsed{Type: Message, Args: text, Raw: text}
	}

	p := Parsed{Type: typ, Raw: text}
	if takesArgs[typ] {
		p.Args = rest
	}
	return p
}

// IsPermissionResponse reports whether the command answers a pending confirmation.
func (p Parsed) IsPermissionResponse() bool {
	return p.Type == Approve || p.Type == Deny
}

// IsTaskControl reports whether the command drives task lifecycle.
func (p Parsed) IsTaskControl() bool {
	return p.Type == Cancel || p.Type == Continue
}

// IsGitOperation reports whether the command maps to a version-control action.
func (p Parsed) IsGitOperation() bool {
	switch p.Type {
	case Diff, Commit, Push, Rollback:
		return true
	}
	return false
}
