package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ledgerai/ledgerai/internal/dialect"
	"github.com/ledgerai/ledgerai/internal/llm"
	"github.com/ledgerai/ledgerai/internal/models"
)

const (
	generationTemperature = 0
	generationMaxTokens   = 500

	DefaultGenerationTimeout = 8 * time.Second
)

// ErrNoSQL is returned when the model answered without a usable statement.
var ErrNoSQL = errors.New("model output contains no SQL statement")

// Generator turns a question into one untrusted SQL statement.
type Generator struct {
	llm     llm.Completer
	timeout time.Duration
}

func NewGenerator(c llm.Completer, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &Generator{llm: c, timeout: timeout}
}

// Generate asks the model for a query answering question against schema.
// Formatting around the statement is stripped; the result still has to be
// validated and scoped before it runs.
func (g *Generator) Generate(ctx context.Context, question string, schema models.SchemaDescription, d dialect.Dialect, today time.Time) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.llm.Complete(gctx, llm.Request{
		System:      generatorSystemPrompt(schema, d, today),
		Prompt:      generatorUserPrompt(question),
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}
	sql := extractSQL(out)
	if sql == "" {
		return "", ErrNoSQL
	}
	return sql, nil
}

var (
	reFence     = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\n?(.*?)```")
	reLineStart = regexp.MustCompile(`(?ims)^\s*(?:WITH\s+\w+\s+AS\s*\(|SELECT\b).*`)
	reSelect    = regexp.MustCompile(`(?is)\bSELECT\b.*`)
)

// extractSQL pulls the statement out of model output, in order:
// 1. the first fenced block that holds a SELECT/WITH
// 2. an unterminated fence ("```sql\nSELECT ...")
// 3. the text from the first line starting a query onwards
// 4. the text from the first SELECT keyword onwards
func extractSQL(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	for _, m := range reFence.FindAllStringSubmatch(text, -1) {
		if body := strings.TrimSpace(m[1]); startsWithQuery(body) {
			return body
		}
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 && !startsWithQuery(text) {
			text = text[nl+1:]
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
	}

	if startsWithQuery(text) {
		return text
	}
	if m := reLineStart.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	if m := reSelect.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

func startsWithQuery(s string) bool {
	up := strings.ToUpper(strings.TrimSpace(s))
	return strings.HasPrefix(up, "SELECT") || strings.HasPrefix(up, "WITH")
}
