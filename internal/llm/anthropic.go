package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ledgerai/ledgerai/internal/tools"
	"github.com/rs/zerolog/log"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-6"
	agentMaxTokens        = 4096
	maxToolIterations     = 10
	forceAnswerAfter      = 7
)

// toolCall represents a tool invocation request from the model
type toolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// AnthropicClient wraps the Anthropic SDK. It serves both single completions
// and the tool-calling loop.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a client for Anthropic or a compatible endpoint.
func NewAnthropicClient(apiKey, model, baseURL string) *AnthropicClient {
	if model == "" {
		model = defaultAnthropicModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Complete implements Completer.
func (a *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.F(anthropic.Model(a.model)),
		MaxTokens:   anthropic.F(int64(req.MaxTokens)),
		Temperature: anthropic.F(req.Temperature),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		}),
	}
	if req.System != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{anthropic.NewTextBlock(req.System)})
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
			sb.WriteString(b.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// RunTools executes the agent loop: the model calls tools until it stops
// asking for them. After forceAnswerAfter rounds it is told to answer.
func (a *AnthropicClient) RunTools(ctx context.Context, system, prompt string, agentTools []tools.Tool) (ToolRun, error) {
	toolParams := make([]anthropic.ToolUnionUnionParam, len(agentTools))
	for i, t := range agentTools {
		schema := map[string]interface{}{
			"type":       "object",
			"properties": t.InputSchema["properties"],
		}
		if required, ok := t.InputSchema["required"]; ok {
			schema["required"] = required
		}
		toolParams[i] = anthropic.ToolParam{
			Name:        anthropic.String(t.Name),
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.F[interface{}](schema),
		}
	}

	newParams := func(messages []anthropic.MessageParam, withTools bool) anthropic.MessageNewParams {
		params := anthropic.MessageNewParams{
			Model:     anthropic.F(anthropic.Model(a.model)),
			MaxTokens: anthropic.F(int64(agentMaxTokens)),
			Messages:  anthropic.F(messages),
		}
		if withTools {
			params.Tools = anthropic.F(toolParams)
		}
		if system != "" {
			params.System = anthropic.F([]anthropic.TextBlockParam{anthropic.NewTextBlock(system)})
		}
		return params
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}
	var run ToolRun

	for iter := 0; iter < maxToolIterations; iter++ {
		run.Iterations = iter + 1
		resp, err := a.client.Messages.New(ctx, newParams(messages, true))
		if err != nil {
			return run, fmt.Errorf("LLM call failed: %w", err)
		}

		var text string
		var pending []toolCall
		for _, block := range resp.Content {
			switch b := block.AsUnion().(type) {
			case anthropic.TextBlock:
				text += b.Text
			case anthropic.ToolUseBlock:
				var input map[string]interface{}
				if err := json.Unmarshal(b.Input, &input); err != nil {
					log.Warn().Err(err).Str("tool", b.Name).Msg("failed to parse tool input")
					input = map[string]interface{}{}
				}
				pending = append(pending, toolCall{ID: b.ID, Name: b.Name, Input: input})
			}
		}

		log.Debug().
			Int("iter", iter).
			Str("stop_reason", string(resp.StopReason)).
			Int("tool_calls", len(pending)).
			Msg("agent iteration")

		if resp.StopReason != "tool_use" || len(pending) == 0 {
			run.Text = strings.TrimSpace(text)
			return run, nil
		}

		messages = append(messages, resp.ToParam())

		if iter >= forceAnswerAfter {
			// every tool_use needs a tool_result in the next user turn
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(pending)+1)
			for _, tc := range pending {
				blocks = append(blocks, anthropic.NewToolResultBlock(tc.ID, "skipped: tool budget exhausted", true))
			}
			blocks = append(blocks, anthropic.NewTextBlock("You have enough data. Please provide your final answer now without calling any more tools."))
			messages = append(messages, anthropic.NewUserMessage(blocks...))
			final, err := a.client.Messages.New(ctx, newParams(messages, false))
			if err != nil {
				return run, fmt.Errorf("final answer call failed: %w", err)
			}
			for _, block := range final.Content {
				if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
					text += b.Text
				}
			}
			run.Text = strings.TrimSpace(text)
			return run, nil
		}

		var results []anthropic.ContentBlockParamUnion
		for _, tc := range pending {
			run.ToolsUsed = append(run.ToolsUsed, tc.Name)
			out, execErr := executeTool(ctx, tc, agentTools)
			if execErr != nil {
				log.Warn().Err(execErr).Str("tool", tc.Name).Msg("tool execution error")
				out = fmt.Sprintf("error: %v", execErr)
			}
			results = append(results, anthropic.NewToolResultBlock(tc.ID, out, execErr != nil))
		}
		messages = append(messages, anthropic.NewUserMessage(results...))
	}

	return run, fmt.Errorf("agent loop exceeded max iterations (%d)", maxToolIterations)
}

func executeTool(ctx context.Context, tc toolCall, agentTools []tools.Tool) (string, error) {
	for _, t := range agentTools {
		if t.Name == tc.Name {
			return t.Execute(ctx, tc.Input)
		}
	}
	return "", fmt.Errorf("unknown tool: %s", tc.Name)
}
