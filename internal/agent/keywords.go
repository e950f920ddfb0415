package agent

import "strings"

// Handler names.
const (
	HandlerCode     = "code"
	HandlerTerminal = "terminal"
	HandlerFile     = "file"
)

// ShellKeywords route a message to the terminal handler.
var ShellKeywords = []string{"run", "execute", "terminal", "command", "bash", "shell"}

// FileKeywords route a message to the file handler.
var FileKeywords = []string{"file", "read", "write", "save", "open", "create", "delete"}

// Rule maps a keyword set to a handler.
type Rule struct {
	Handler  string
	Keywords []string
}

// RoutingRules are evaluated in order and the first match wins, so a message
// with both shell and file keywords goes to the terminal handler.
var RoutingRules = []Rule{
	{Handler: HandlerTerminal, Keywords: ShellKeywords},
	{Handler: HandlerFile, Keywords: FileKeywords},
}

// DefaultHandler takes every message no rule matches.
const DefaultHandler = HandlerCode

// Classify returns the handler name for content.
func Classify(content string) string {
	lower := strings.ToLower(content)
	for _, rule := range RoutingRules {
		if containsAny(lower, rule.Keywords) {
			return rule.Handler
		}
	}
	return DefaultHandler
}

// containsAny reports whether s contains any keyword as a substring. s must
// already be lower case.
func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
