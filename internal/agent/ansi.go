package agent

import "regexp"

var ansiPattern = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

// CleanANSI strips ANSI escape sequences from agent output before it is
// relayed to chat.
func CleanANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
