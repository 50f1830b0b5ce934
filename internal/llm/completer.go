// Package llm is the boundary to the language-model providers. The pipeline
// only sees Completer; agent mode additionally needs ToolRunner.
package llm

import (
	"context"
	"errors"

	"github.com/ledgerai/ledgerai/internal/tools"
)

// ErrEmptyCompletion is returned when the provider answers with no text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Request is one single-turn completion.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completer turns a prompt into text. Implementations do not retry.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ToolRun is the outcome of a multi-turn tool conversation.
type ToolRun struct {
	Text       string
	ToolsUsed  []string
	Iterations int
}

// ToolRunner drives a conversation in which the model may call tools until it
// produces a final answer.
type ToolRunner interface {
	RunTools(ctx context.Context, system, prompt string, agentTools []tools.Tool) (ToolRun, error)
}

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)
