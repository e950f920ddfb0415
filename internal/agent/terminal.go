package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aieditor/backend/internal/command"
	"github.com/aieditor/backend/internal/model"
)

// CommandKeywords mark a terminal message as a request to run something.
var CommandKeywords = []string{"run", "execute", "command", "terminal", "bash", "shell", "script"}

var (
	backtickPattern   = regexp.MustCompile("`([^`]+)`")
	runPattern        = regexp.MustCompile(`(?i)(?:run|execute)\s+(.+)`)
	commandPattern    = regexp.MustCompile(`(?i)command[:\s]+(.+)`)
	commandExtractors = []*regexp.Regexp{runPattern, commandPattern}
)

const (
	commandSuggestionPrompt = `You are a terminal expert. Suggest safe shell commands for the user's request,
explain what each one does, offer alternatives where relevant, and point out anything to be careful about.
Put every command in backticks.`

	terminalGeneralPrompt = `You are an experienced system administrator. Answer questions about the terminal,
bash, shell scripting and system administration with example commands and safety notes.`
)

// CommandRunner executes a shell command line in a directory.
type CommandRunner interface {
	Run(ctx context.Context, dir, line string) (*command.Result, error)
}

// TerminalHandler runs allow-listed commands in the session workspace and
// answers shell questions.
type TerminalHandler struct {
	usage
	gen           Generator
	runner        CommandRunner
	workspaceRoot string
}

// NewTerminalHandler creates a new TerminalHandler. Sessions without a
// workspace run commands in workspaceRoot/<session id>.
func NewTerminalHandler(gen Generator, runner CommandRunner, workspaceRoot string) *TerminalHandler {
	return &TerminalHandler{gen: gen, runner: runner, workspaceRoot: workspaceRoot}
}

func (h *TerminalHandler) Name() string { return HandlerTerminal }

func (h *TerminalHandler) Description() string {
	return "Runs shell commands in the session workspace and answers terminal questions."
}

func (h *TerminalHandler) Process(ctx context.Context, sess *model.Session, msg model.Message) ([]model.Message, error) {
	h.touch()

	if !containsAny(strings.ToLower(msg.Content), CommandKeywords) {
		result := ask(ctx, h.gen, sess, msg, terminalGeneralPrompt)
		return []model.Message{reply(h.Name(), result, nil)}, nil
	}

	line := ExtractCommand(msg.Content)
	if line == "" {
		result := ask(ctx, h.gen, sess, msg, commandSuggestionPrompt)
		return []model.Message{reply(h.Name(), result, map[string]any{
			"action": "command_suggestion",
			"type":   "suggestion",
		})}, nil
	}

	return []model.Message{h.execute(ctx, sess, line)}, nil
}

func (h *TerminalHandler) execute(ctx context.Context, sess *model.Session, line string) model.Message {
	if err := command.Validate(line); err != nil {
		return model.NewErrorMessage(h.Name(), fmt.Sprintf("Command refused for safety reasons: %s (%v)", line, err))
	}

	dir := workspaceFor(sess, h.workspaceRoot)
	result, err := h.runner.Run(ctx, dir, line)
	if err != nil {
		return model.NewErrorMessage(h.Name(), fmt.Sprintf("Command failed to start: %v", err))
	}

	metadata := map[string]any{
		"action":         "command_execution",
		"command":        line,
		"exit_code":      result.ExitCode,
		"execution_time": result.Duration.Seconds(),
		"timed_out":      result.TimedOut,
		"truncated":      result.Truncated,
		"working_dir":    dir,
	}
	if result.Recording != "" {
		metadata["recording"] = result.Recording
	}

	msg := model.NewMessage(model.MessageKindResult, fmt.Sprintf("Ran `%s` (exit %d):\n\n```\n%s\n```", line, result.ExitCode, strings.TrimRight(result.Output, "\n")))
	msg.AgentName = h.Name()
	msg.Metadata = metadata
	return msg
}

// ExtractCommand pulls a command line out of a chat message: the first
// backtick span, else the text after "run"/"execute", else after "command:".
func ExtractCommand(content string) string {
	if m := backtickPattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, re := range commandExtractors {
		if m := re.FindStringSubmatch(content); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
