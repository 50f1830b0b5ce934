package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerai/ledgerai/internal/llm"
	"github.com/ledgerai/ledgerai/internal/models"
)

const (
	synthesisTemperature = 0.7
	synthesisMaxTokens   = 300

	DefaultSynthesisTimeout = 8 * time.Second
)

// FallbackAnswer replaces the prose answer when synthesis fails. The query
// and rows are still returned.
const FallbackAnswer = "I analyzed the data but had trouble formulating a response. Please try rephrasing your question."

// Synthesizer writes the natural-language answer for an executed query.
type Synthesizer struct {
	llm     llm.Completer
	timeout time.Duration
}

func NewSynthesizer(c llm.Completer, timeout time.Duration) *Synthesizer {
	if timeout <= 0 {
		timeout = DefaultSynthesisTimeout
	}
	return &Synthesizer{llm: c, timeout: timeout}
}

// Synthesize returns the answer. On failure it returns FallbackAnswer together
// with the error so the caller can log it; the answer is always usable.
func (s *Synthesizer) Synthesize(ctx context.Context, question, sql string, rs models.ResultSet) (string, error) {
	prompt, err := synthesizerUserPrompt(question, sql, rs)
	if err != nil {
		return FallbackAnswer, err
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.llm.Complete(sctx, llm.Request{
		System:      synthesizerSystemPrompt,
		Prompt:      prompt,
		Temperature: synthesisTemperature,
		MaxTokens:   synthesisMaxTokens,
	})
	if err != nil {
		return FallbackAnswer, fmt.Errorf("synthesize answer: %w", err)
	}
	if out == "" {
		return FallbackAnswer, llm.ErrEmptyCompletion
	}
	return out, nil
}
