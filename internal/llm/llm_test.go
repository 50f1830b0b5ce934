package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ledgerai/ledgerai/internal/llm"
	"github.com/ledgerai/ledgerai/internal/tools"
)

func TestOpenAIClientComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  SELECT 1  "}}]}`))
	}))
	defer srv.Close()

	c, err := llm.NewOpenAIClient(llm.OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	text, err := c.Complete(context.Background(), llm.Request{System: "sys", Prompt: "q", Temperature: 0, MaxTokens: 500})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "SELECT 1" {
		t.Errorf("text = %q", text)
	}
	if got["model"] != "m" || got["max_tokens"] != float64(500) || got["temperature"] != float64(0) {
		t.Errorf("payload = %v", got)
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", got["messages"])
	}
}

func TestOpenAIClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":"   "}}]}`},
		{"bad json", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := llm.NewOpenAIClient(llm.OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
			if _, err := c.Complete(context.Background(), llm.Request{Prompt: "q"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestOpenAIClientRequiresKey(t *testing.T) {
	if _, err := llm.NewOpenAIClient(llm.OpenAIConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func anthropicServer(t *testing.T, responses ...string) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		i := len(bodies)
		bodies = append(bodies, string(raw))
		mu.Unlock()
		if i >= len(responses) {
			t.Errorf("unexpected request %d", i)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responses[i]))
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

const anthropicText = `{"id":"msg_1","type":"message","role":"assistant","model":"m",
	"content":[{"type":"text","text":"You spent $30.00 on coffee."}],
	"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":1}}`

func TestAnthropicClientComplete(t *testing.T) {
	srv, bodies := anthropicServer(t, anthropicText)
	c := llm.NewAnthropicClient("k", "m", srv.URL)

	text, err := c.Complete(context.Background(), llm.Request{System: "sys", Prompt: "q", Temperature: 0.7, MaxTokens: 300})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "You spent $30.00 on coffee." {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains((*bodies)[0], `"max_tokens":300`) {
		t.Errorf("request body = %s", (*bodies)[0])
	}
}

func TestAnthropicClientRunTools(t *testing.T) {
	toolUse := `{"id":"msg_1","type":"message","role":"assistant","model":"m",
		"content":[{"type":"tool_use","id":"tu_1","name":"get_schema","input":{}}],
		"stop_reason":"tool_use","stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":1}}`
	srv, bodies := anthropicServer(t, toolUse, anthropicText)
	c := llm.NewAnthropicClient("k", "m", srv.URL)

	called := 0
	agentTools := []tools.Tool{{
		Name:        "get_schema",
		Description: "schema",
		InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			called++
			return "Table: transactions", nil
		},
	}}

	run, err := c.RunTools(context.Background(), "sys", "q", agentTools)
	if err != nil {
		t.Fatalf("RunTools() error = %v", err)
	}
	if called != 1 {
		t.Errorf("tool called %d times, want 1", called)
	}
	if len(run.ToolsUsed) != 1 || run.ToolsUsed[0] != "get_schema" {
		t.Errorf("tools used = %v", run.ToolsUsed)
	}
	if run.Text != "You spent $30.00 on coffee." || run.Iterations != 2 {
		t.Errorf("run = %+v", run)
	}
	if len(*bodies) != 2 || !strings.Contains((*bodies)[1], "tool_result") {
		t.Errorf("second request should carry the tool result: %v", *bodies)
	}
}

func TestCompleterFunc(t *testing.T) {
	var c llm.Completer = llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "", llm.ErrEmptyCompletion
	})
	if _, err := c.Complete(context.Background(), llm.Request{}); !errors.Is(err, llm.ErrEmptyCompletion) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()
	c, err := llm.New(ctx, llm.Config{Provider: "anthropic", APIKey: "k"})
	if err != nil {
		t.Fatalf("New(anthropic) error = %v", err)
	}
	if _, ok := c.(llm.ToolRunner); !ok {
		t.Error("anthropic client should support tools")
	}

	c, err = llm.New(ctx, llm.Config{Provider: "openai", APIKey: "k"})
	if err != nil {
		t.Fatalf("New(openai) error = %v", err)
	}
	if _, ok := c.(llm.ToolRunner); ok {
		t.Error("openai client does not run tools")
	}

	if _, err := llm.New(ctx, llm.Config{Provider: "anthropic"}); err == nil {
		t.Error("missing key must fail")
	}
	if _, err := llm.New(ctx, llm.Config{Provider: "llama", APIKey: "k"}); err == nil {
		t.Error("unknown provider must fail")
	}
}
