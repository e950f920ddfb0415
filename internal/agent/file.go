package agent

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/aieditor/backend/internal/model"
)

// Sub-classification keywords of the file handler, checked in this order.
var (
	ReadKeywords  = []string{"read", "open", "show", "display", "content"}
	WriteKeywords = []string{"write", "save", "create"}
	ListKeywords  = []string{"list", "ls", "dir", "files", "directory"}
)

// FileExtensions are recognized when looking for a bare file name in a message.
var FileExtensions = []string{
	".txt", ".py", ".js", ".ts", ".go", ".html", ".css", ".json", ".xml",
	".md", ".yml", ".yaml", ".toml", ".ini", ".cfg", ".conf",
	".sh", ".bat", ".sql", ".csv", ".log",
}

// MaxReadSize is the largest file the handler will return.
const MaxReadSize = 10 * 1024 * 1024

// ErrPathOutsideWorkspace is returned for paths escaping the workspace.
var ErrPathOutsideWorkspace = errors.New("path is outside the workspace")

const (
	fileWritePrompt = `You are a file management expert. Plan the file write the user asks for.
If a name and content are given, show the file to create. If only a name is given, plan an empty file.
If only content is given, propose a suitable file name. State the file name and content clearly.`

	fileGeneralPrompt = `You are a file system expert. Answer questions about file management,
file formats and file operations.`
)

// FileHandler reads and lists files in the session workspace.
type FileHandler struct {
	usage
	gen           Generator
	workspaceRoot string
}

// NewFileHandler creates a new FileHandler. Sessions without a workspace use
// workspaceRoot/<session id>.
func NewFileHandler(gen Generator, workspaceRoot string) *FileHandler {
	return &FileHandler{gen: gen, workspaceRoot: workspaceRoot}
}

func (h *FileHandler) Name() string { return HandlerFile }

func (h *FileHandler) Description() string {
	return "Reads, lists and plans writes of files in the session workspace."
}

func (h *FileHandler) Process(ctx context.Context, sess *model.Session, msg model.Message) ([]model.Message, error) {
	h.touch()
	lower := strings.ToLower(msg.Content)

	switch {
	case containsAny(lower, ReadKeywords):
		path := ExtractFilePath(msg.Content)
		if path == "" {
			return []model.Message{model.NewErrorMessage(h.Name(), "No file path given.")}, nil
		}
		return []model.Message{h.read(sess, path)}, nil

	case containsAny(lower, WriteKeywords):
		result := ask(ctx, h.gen, sess, msg, fileWritePrompt)
		return []model.Message{reply(h.Name(), result, map[string]any{
			"action": "file_write_plan",
			"type":   "planning",
		})}, nil

	case containsAny(lower, ListKeywords):
		return []model.Message{h.list(sess)}, nil

	default:
		result := ask(ctx, h.gen, sess, msg, fileGeneralPrompt)
		return []model.Message{reply(h.Name(), result, nil)}, nil
	}
}

func (h *FileHandler) read(sess *model.Session, path string) model.Message {
	root := workspaceFor(sess, h.workspaceRoot)
	full, err := ResolvePath(root, path)
	if err != nil {
		return model.NewErrorMessage(h.Name(), fmt.Sprintf("Invalid file path: %s", path))
	}

	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return model.NewErrorMessage(h.Name(), fmt.Sprintf("File not found: %s", path))
	}
	if err != nil {
		return model.NewErrorMessage(h.Name(), fmt.Sprintf("Cannot read %s: %v", path, err))
	}
	if info.IsDir() {
		return model.NewErrorMessage(h.Name(), fmt.Sprintf("%s is a directory", path))
	}
	if info.Size() > MaxReadSize {
		return model.NewErrorMessage(h.Name(), fmt.Sprintf("File is too large (%s). Maximum is %s.",
			humanize.IBytes(uint64(info.Size())), humanize.IBytes(MaxReadSize)))
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return model.NewErrorMessage(h.Name(), fmt.Sprintf("Cannot read %s: %v", path, err))
	}

	msg := model.NewMessage(model.MessageKindAssistant, fmt.Sprintf("Contents of `%s`:\n\n```\n%s\n```", path, strings.ToValidUTF8(string(data), "\uFFFD")))
	msg.AgentName = h.Name()
	msg.Metadata = map[string]any{
		"action":    "file_read",
		"file_path": path,
		"file_size": info.Size(),
		"mime_type": detectMIME(full, data),
	}
	return msg
}

type dirEntry struct {
	name  string
	isDir bool
	size  int64
}

func (h *FileHandler) list(sess *model.Session) model.Message {
	root := workspaceFor(sess, h.workspaceRoot)
	if err := os.MkdirAll(root, 0755); err != nil {
		return model.NewErrorMessage(h.Name(), fmt.Sprintf("Cannot open workspace: %v", err))
	}

	items, err := os.ReadDir(root)
	if err != nil {
		return model.NewErrorMessage(h.Name(), fmt.Sprintf("Cannot list workspace: %v", err))
	}

	entries := make([]dirEntry, 0, len(items))
	for _, item := range items {
		e := dirEntry{name: item.Name(), isDir: item.IsDir()}
		if !e.isDir {
			if info, err := item.Info(); err == nil {
				e.size = info.Size()
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].isDir != entries[j].isDir {
			return entries[i].isDir
		}
		return entries[i].name < entries[j].name
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Files in %s:", root)
	files, dirs := 0, 0
	for _, e := range entries {
		if e.isDir {
			dirs++
			fmt.Fprintf(&b, "\n%s/", e.name)
			continue
		}
		files++
		fmt.Fprintf(&b, "\n%s (%s)", e.name, humanize.Bytes(uint64(e.size)))
	}
	if len(entries) == 0 {
		b.WriteString("\n(empty)")
	}

	msg := model.NewMessage(model.MessageKindAssistant, b.String())
	msg.AgentName = h.Name()
	msg.Metadata = map[string]any{
		"action":          "file_list",
		"directory":       root,
		"file_count":      files,
		"directory_count": dirs,
	}
	return msg
}

// ExtractFilePath finds a file path in a message: a backtick span containing
// "." or "/", else the first word with a known extension.
func ExtractFilePath(content string) string {
	for _, m := range backtickPattern.FindAllStringSubmatch(content, -1) {
		if strings.ContainsAny(m[1], "./") {
			return strings.TrimSpace(m[1])
		}
	}
	for _, word := range strings.Fields(content) {
		word = strings.TrimRight(strings.Trim(word, `"'(),;:!?`), ".")
		for _, ext := range FileExtensions {
			if strings.HasSuffix(strings.ToLower(word), ext) {
				return word
			}
		}
	}
	return ""
}

// ResolvePath joins path onto root and rejects results outside root.
// Absolute paths are accepted only when they fall inside root.
func ResolvePath(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrap(err, "resolve workspace")
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(absRoot, full)
	}
	full = filepath.Clean(full)

	rel, err := filepath.Rel(absRoot, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathOutsideWorkspace
	}
	return full, nil
}

// workspaceFor returns the directory a session's file and command work
// happens in.
func workspaceFor(sess *model.Session, root string) string {
	return sess.Workspace(filepath.Join(root, sess.ID))
}

func detectMIME(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
