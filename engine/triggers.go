package engine

import "strings"

// Triggers is the configured set of substrings that make a command worth
// logging. Matching is case-sensitive substring search, no tokenization;
// "nmap" matches anywhere in the command line. The description token is
// appended to the set at config load so a command carrying only a
// description marker still triggers.
type Triggers []string

// Match reports whether the command should produce a log entry. An empty
// or whitespace-only command never triggers.
func (t Triggers) Match(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	for _, keyword := range t {
		if keyword != "" && strings.Contains(command, keyword) {
			return true
		}
	}
	return false
}
