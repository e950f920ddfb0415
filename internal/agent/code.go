package agent

import (
	"context"
	"regexp"
	"strings"

	"github.com/aieditor/backend/internal/model"
)

// AnalysisKeywords ask the code handler for a review.
var AnalysisKeywords = []string{"analyze", "review", "check", "bug", "problem", "optimize", "refactor", "improve"}

// GenerationKeywords ask the code handler to write code.
var GenerationKeywords = []string{"write", "create", "generate", "implement", "build", "make", "develop", "code", "function", "class"}

const (
	codeAnalysisPrompt = `You are an expert code reviewer. Analyze the code or problem the user describes and cover:
1. Code quality and idiomatic style
2. Potential bugs and security issues
3. Performance improvements
4. Refactoring suggestions
Be concrete and constructive.`

	codeGenerationPrompt = `You are an expert software developer. Write clean, readable code for the user's request.
Use descriptive names, handle errors, keep it modular and testable, and add comments only where they help.
Return code in fenced markdown blocks tagged with the language, followed by a short explanation.`

	codeGeneralPrompt = `You are an experienced software developer and mentor. Answer programming questions clearly,
with example code where useful, and point out alternative approaches.`
)

var codeBlockPattern = regexp.MustCompile("(?s)```(\\w+)?\\n(.*?)\\n```")

// CodeBlock is a fenced block extracted from a generated answer.
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// CodeHandler answers programming questions. It is the catch-all handler.
type CodeHandler struct {
	usage
	gen Generator
}

// NewCodeHandler creates a new CodeHandler.
func NewCodeHandler(gen Generator) *CodeHandler {
	return &CodeHandler{gen: gen}
}

func (h *CodeHandler) Name() string { return HandlerCode }

func (h *CodeHandler) Description() string {
	return "Writes, reviews, refactors and debugs code."
}

// Process may return two responses when a message asks for both a review and
// new code.
func (h *CodeHandler) Process(ctx context.Context, sess *model.Session, msg model.Message) ([]model.Message, error) {
	h.touch()
	lower := strings.ToLower(msg.Content)

	var responses []model.Message
	if containsAny(lower, AnalysisKeywords) {
		result := ask(ctx, h.gen, sess, msg, codeAnalysisPrompt)
		responses = append(responses, reply(h.Name(), result, map[string]any{
			"action": "code_analysis",
			"type":   "analysis",
		}))
	}
	if containsAny(lower, GenerationKeywords) {
		result := ask(ctx, h.gen, sess, msg, codeGenerationPrompt)
		responses = append(responses, reply(h.Name(), result, map[string]any{
			"action":      "code_generation",
			"type":        "generation",
			"code_blocks": ExtractCodeBlocks(result.Text),
		}))
	}
	if len(responses) == 0 {
		result := ask(ctx, h.gen, sess, msg, codeGeneralPrompt)
		responses = append(responses, reply(h.Name(), result, nil))
	}
	return responses, nil
}

// ExtractCodeBlocks returns every fenced code block in text. Untagged blocks
// get the language "text".
func ExtractCodeBlocks(text string) []CodeBlock {
	blocks := []CodeBlock{}
	for _, m := range codeBlockPattern.FindAllStringSubmatch(text, -1) {
		lang := m[1]
		if lang == "" {
			lang = "text"
		}
		blocks = append(blocks, CodeBlock{Language: lang, Code: strings.TrimSpace(m[2])})
	}
	return blocks
}
