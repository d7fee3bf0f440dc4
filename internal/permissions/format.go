package permissions

import "strings"

// FormatRequestMessage renders a confirmation prompt for the operator.
func FormatRequestMessage(req *Request) string {
	lines := []string{
		"⚠️ The agent wants to run:",
		"",
		"Tool: " + req.ToolName,
		"Command: " + req.Command,
		"",
		"Reply with:",
		`- "ok" or "y" to approve`,
		`- "no" or "n" to deny`,
		`- "cancel" to cancel the whole task`,
	}
	return strings.Join(lines, "\n")
}
