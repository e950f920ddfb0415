package command

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// AllowedCommands lists the programs a chat message may run. Any program
// whose name starts with "python" is also allowed.
var AllowedCommands = []string{
	"ls", "pwd", "cat", "echo", "grep", "find", "head", "tail",
	"python", "python3", "pip", "npm", "node", "git", "curl",
	"mkdir", "touch", "cp", "mv", "rm", "chmod", "chown",
}

// BlockedPatterns are rejected wherever they appear in a command line. Single
// words match a token's program name, so "/sbin/mkfs.ext4" matches "mkfs";
// "rm -rf" matches as a phrase.
var BlockedPatterns = []string{
	"rm -rf", "sudo", "su", "passwd", "shutdown", "reboot",
	"mkfs", "fdisk", "dd", "format",
}

var (
	// ErrEmptyCommand is returned for a blank command line.
	ErrEmptyCommand = errors.New("empty command")

	// ErrCommandNotAllowed is returned when a command fails the policy check.
	ErrCommandNotAllowed = errors.New("command not allowed")
)

// Validate checks a command line against BlockedPatterns and AllowedCommands.
func Validate(line string) error {
	tokens := tokenize(strings.ToLower(line))
	if len(tokens) == 0 {
		return ErrEmptyCommand
	}

	names := make([]string, len(tokens))
	for i, tok := range tokens {
		names[i] = programName(tok)
	}
	joined := " " + strings.Join(names, " ") + " "
	for _, pattern := range BlockedPatterns {
		if strings.Contains(pattern, " ") {
			if strings.Contains(joined, " "+pattern+" ") {
				return errors.Wrapf(ErrCommandNotAllowed, "contains %q", pattern)
			}
			continue
		}
		for i, name := range names {
			if name == pattern || tokens[i] == pattern || strings.HasPrefix(name, pattern+".") {
				return errors.Wrapf(ErrCommandNotAllowed, "contains %q", pattern)
			}
		}
	}

	first := strings.Fields(line)[0]
	if strings.HasPrefix(first, "python") {
		return nil
	}
	for _, allowed := range AllowedCommands {
		if first == allowed {
			return nil
		}
	}
	return errors.Wrapf(ErrCommandNotAllowed, "%q is not in the allow list", first)
}

// programName strips a directory prefix, so "/sbin/shutdown" becomes "shutdown".
func programName(tok string) string {
	if !strings.Contains(tok, "/") {
		return tok
	}
	return filepath.Base(tok)
}

// tokenize splits on whitespace and shell control characters so that a
// blocked word hidden behind ";" or "|" is still seen.
func tokenize(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', ';', '|', '&', '(', ')', '<', '>', '`', '$', '{', '}':
			return true
		}
		return false
	})
}
