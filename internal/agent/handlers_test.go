package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aieditor/backend/internal/command"
	"github.com/aieditor/backend/internal/model"
)

func TestCodeHandlerAnalysisAndGeneration(t *testing.T) {
	gen := &stubGenerator{text: "Here you go:\n```go\nfunc add(a, b int) int { return a + b }\n```\nand\n```\nplain\n```"}
	h := NewCodeHandler(gen)
	sess := newTestSession(t, "")
	sess.Messages = []model.Message{model.NewMessage(model.MessageKindAssistant, "earlier")}

	msg := model.NewUserMessage("review my code and write a function for it", map[string]any{"provider": "anthropic"})
	responses, err := h.Process(context.Background(), sess, msg)
	require.NoError(t, err)
	require.Len(t, responses, 2)

	require.Equal(t, "code_analysis", responses[0].Metadata["action"])
	require.Equal(t, "code_generation", responses[1].Metadata["action"])
	require.Equal(t, []CodeBlock{
		{Language: "go", Code: "func add(a, b int) int { return a + b }"},
		{Language: "text", Code: "plain"},
	}, responses[1].Metadata["code_blocks"])

	calls := gen.calls()
	require.Len(t, calls, 2)
	require.Equal(t, "anthropic", calls[0].Preferred)
	require.Len(t, calls[0].History, 1)
	require.Equal(t, codeAnalysisPrompt, calls[0].System)
	require.Equal(t, codeGenerationPrompt, calls[1].System)
}

func TestCodeHandlerGeneralAndDegraded(t *testing.T) {
	gen := &stubGenerator{text: "an answer"}
	h := NewCodeHandler(gen)

	responses, err := h.Process(context.Background(), newTestSession(t, ""), model.NewUserMessage("what is a goroutine", nil))
	require.NoError(t, err)
	require.Len(t, responses, 1)
	require.Equal(t, model.MessageKindAssistant, responses[0].Kind)
	require.Equal(t, "stub", responses[0].Metadata["provider"])

	gen.degraded = true
	gen.text = "Response generation failed: down"
	responses, err = h.Process(context.Background(), newTestSession(t, ""), model.NewUserMessage("what is a goroutine", nil))
	require.NoError(t, err)
	require.Equal(t, model.MessageKindError, responses[0].Kind)
	require.Equal(t, "Response generation failed: down", responses[0].Content)
}

func TestExtractCommand(t *testing.T) {
	tests := map[string]string{
		"run ls -la":                      "ls -la",
		"please execute `git status` now": "git status",
		"Run   pwd":                       "pwd",
		"command: echo hi":                "echo hi",
		"open a terminal":                 "",
	}
	for content, want := range tests {
		require.Equal(t, want, ExtractCommand(content), content)
	}
}

func TestTerminalHandlerRunsCommand(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "marker.txt"), []byte("x"), 0644))

	h := NewTerminalHandler(&stubGenerator{}, command.NewRunner(command.Config{}), t.TempDir())
	responses, err := h.Process(context.Background(), newTestSession(t, workspace), model.NewUserMessage("run ls -la", nil))
	require.NoError(t, err)
	require.Len(t, responses, 1)

	resp := responses[0]
	require.Equal(t, model.MessageKindResult, resp.Kind)
	require.Contains(t, resp.Content, "marker.txt")
	require.Equal(t, "command_execution", resp.Metadata["action"])
	require.Equal(t, "ls -la", resp.Metadata["command"])
	require.Equal(t, 0, resp.Metadata["exit_code"])
	require.Equal(t, workspace, resp.Metadata["working_dir"])
}

func TestTerminalHandlerDefaultWorkspace(t *testing.T) {
	root := t.TempDir()
	h := NewTerminalHandler(&stubGenerator{}, command.NewRunner(command.Config{}), root)

	responses, err := h.Process(context.Background(), newTestSession(t, ""), model.NewUserMessage("run pwd", nil))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "s1"), responses[0].Metadata["working_dir"])
	require.DirExists(t, filepath.Join(root, "s1"))
}

func TestTerminalHandlerRefusesDangerousCommands(t *testing.T) {
	h := NewTerminalHandler(&stubGenerator{}, command.NewRunner(command.Config{}), t.TempDir())

	for _, content := range []string{"run sudo ls", "run rm -rf /", "execute wget http://x"} {
		responses, err := h.Process(context.Background(), newTestSession(t, t.TempDir()), model.NewUserMessage(content, nil))
		require.NoError(t, err)
		require.Equal(t, model.MessageKindError, responses[0].Kind, content)
		require.Contains(t, responses[0].Content, "refused")
	}
}

func TestTerminalHandlerSuggestsAndAnswers(t *testing.T) {
	gen := &stubGenerator{text: "try `ls`"}
	h := NewTerminalHandler(gen, command.NewRunner(command.Config{}), t.TempDir())

	responses, err := h.Process(context.Background(), newTestSession(t, ""), model.NewUserMessage("which shell should I use", nil))
	require.NoError(t, err)
	require.Equal(t, "command_suggestion", responses[0].Metadata["action"])
	require.Equal(t, commandSuggestionPrompt, gen.calls()[0].System)

	responses, err = h.Process(context.Background(), newTestSession(t, ""), model.NewUserMessage("how do pipes work", nil))
	require.NoError(t, err)
	require.Nil(t, responses[0].Metadata["action"])
	require.Equal(t, terminalGeneralPrompt, gen.calls()[1].System)
}

func TestFileHandlerRead(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "notes.md"), []byte("# Notes\nhello"), 0644))

	h := NewFileHandler(&stubGenerator{}, t.TempDir())
	sess := newTestSession(t, workspace)

	responses, err := h.Process(context.Background(), sess, model.NewUserMessage("show me notes.md please", nil))
	require.NoError(t, err)
	resp := responses[0]
	require.Equal(t, model.MessageKindAssistant, resp.Kind)
	require.Contains(t, resp.Content, "hello")
	require.Equal(t, "file_read", resp.Metadata["action"])
	require.Equal(t, "notes.md", resp.Metadata["file_path"])
	require.Equal(t, int64(13), resp.Metadata["file_size"])
	require.True(t, strings.HasPrefix(resp.Metadata["mime_type"].(string), "text/"))

	responses, err = h.Process(context.Background(), sess, model.NewUserMessage("read `missing.txt`", nil))
	require.NoError(t, err)
	require.Equal(t, model.MessageKindError, responses[0].Kind)
	require.Contains(t, responses[0].Content, "not found")

	responses, err = h.Process(context.Background(), sess, model.NewUserMessage("read it", nil))
	require.NoError(t, err)
	require.Contains(t, responses[0].Content, "No file path")
}

func TestFileHandlerRejectsTraversal(t *testing.T) {
	parent := t.TempDir()
	workspace := filepath.Join(parent, "ws")
	require.NoError(t, os.MkdirAll(workspace, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("secret"), 0644))

	h := NewFileHandler(&stubGenerator{}, parent)
	sess := newTestSession(t, workspace)

	for _, content := range []string{"read `../secret.txt`", "open `" + filepath.Join(parent, "secret.txt") + "`"} {
		responses, err := h.Process(context.Background(), sess, model.NewUserMessage(content, nil))
		require.NoError(t, err)
		require.Equal(t, model.MessageKindError, responses[0].Kind, content)
		require.NotContains(t, responses[0].Content, "secret\n")
	}
}

func TestResolvePath(t *testing.T) {
	root := t.TempDir()

	got, err := ResolvePath(root, "a/b.txt")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "a", "b.txt"), got)

	got, err = ResolvePath(root, filepath.Join(root, "c.txt"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "c.txt"), got)

	_, err = ResolvePath(root, "a/../../escape.txt")
	require.ErrorIs(t, err, ErrPathOutsideWorkspace)

	_, err = ResolvePath(root, "..")
	require.ErrorIs(t, err, ErrPathOutsideWorkspace)

	// A sibling sharing the root as a prefix is still outside.
	_, err = ResolvePath(root, root+"-other/x.txt")
	require.ErrorIs(t, err, ErrPathOutsideWorkspace)
}

func TestFileHandlerList(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "b.txt"), make([]byte, 2048), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "a.go"), []byte("package a"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(workspace, "zdir"), 0755))

	h := NewFileHandler(&stubGenerator{}, t.TempDir())
	responses, err := h.Process(context.Background(), newTestSession(t, workspace), model.NewUserMessage("list the directory", nil))
	require.NoError(t, err)

	resp := responses[0]
	require.Equal(t, "file_list", resp.Metadata["action"])
	require.Equal(t, 2, resp.Metadata["file_count"])
	require.Equal(t, 1, resp.Metadata["directory_count"])

	lines := strings.Split(resp.Content, "\n")
	require.Equal(t, "Files in "+workspace+":", lines[0])
	require.Equal(t, []string{"zdir/", "a.go (9 B)", "b.txt (2.0 kB)"}, lines[1:])
}

func TestFileHandlerWritePlanAndGeneral(t *testing.T) {
	gen := &stubGenerator{text: "plan"}
	h := NewFileHandler(gen, t.TempDir())

	responses, err := h.Process(context.Background(), newTestSession(t, ""), model.NewUserMessage("save a todo list", nil))
	require.NoError(t, err)
	require.Equal(t, "file_write_plan", responses[0].Metadata["action"])

	responses, err = h.Process(context.Background(), newTestSession(t, ""), model.NewUserMessage("what is a file descriptor", nil))
	require.NoError(t, err)
	require.Nil(t, responses[0].Metadata["action"])
	require.Equal(t, fileGeneralPrompt, gen.calls()[1].System)
}
