package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ledgerai/ledgerai/internal/dialect"
	"github.com/ledgerai/ledgerai/internal/llm"
	"github.com/ledgerai/ledgerai/internal/models"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "SELECT 1", "SELECT 1"},
		{"sql fence", "```sql\nSELECT amount FROM transactions\n```", "SELECT amount FROM transactions"},
		{"bare fence", "```\nWITH a AS (SELECT 1) SELECT * FROM a\n```", "WITH a AS (SELECT 1) SELECT * FROM a"},
		{"unterminated fence", "```sql\nSELECT 2", "SELECT 2"},
		{"prose before fence", "Here you go:\n```sql\nSELECT 3\n```\nThis sums it.", "SELECT 3"},
		{"prose then statement line", "Sure, here is the query with totals:\nSELECT 4 LIMIT 100", "SELECT 4 LIMIT 100"},
		{"inline statement", "Query: SELECT 5", "SELECT 5"},
		{"surrounding whitespace", "\n\n  select 6 \n", "select 6"},
		{"no sql", "I cannot answer that.", ""},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractSQL(tt.in); got != tt.want {
				t.Errorf("extractSQL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGeneratorPrompt(t *testing.T) {
	schema := models.SchemaDescription{Tables: []models.TableSchema{{
		Name:    "transactions",
		Columns: []models.Column{{Name: "amount", Type: "REAL"}, {Name: "date", Type: "TEXT"}},
	}}}
	today := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		d    dialect.Dialect
		want []string
	}{
		{dialect.SQLite, []string{
			"Table: transactions\nColumns: amount (REAL), date (TEXT)",
			"Today's date is 2025-03-14",
			"date >= date('now', 'start of month')",
			"date < date('now', 'start of month')",
			"LIMIT (default 100)",
			"ABS(amount)",
			"ROUND(ABS(SUM(amount)), 2)",
			"LOWER(category)",
			"Common Table Expressions",
			"Coffee, Groceries",
			"Never filter on user_id",
		}},
		{dialect.Postgres, []string{
			"date_trunc('month', CURRENT_DATE)",
			"ROUND((ABS(SUM(amount)))::numeric, 2)",
			"ILIKE",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.d.Name, func(t *testing.T) {
			p := generatorSystemPrompt(schema, tt.d, today)
			for _, w := range tt.want {
				if !strings.Contains(p, w) {
					t.Errorf("prompt missing %q\n%s", w, p)
				}
			}
		})
	}
}

func TestGeneratorRequest(t *testing.T) {
	var got llm.Request
	g := NewGenerator(llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		got = req
		if _, ok := ctx.Deadline(); !ok {
			t.Error("generation call must carry a deadline")
		}
		return "```sql\nSELECT 1\n```", nil
	}), 0)

	sql, err := g.Generate(context.Background(), "coffee?", models.SchemaDescription{}, dialect.SQLite, time.Now())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if sql != "SELECT 1" {
		t.Errorf("sql = %q", sql)
	}
	if got.Temperature != 0 || got.MaxTokens != 500 {
		t.Errorf("generation uses temperature 0 and 500 tokens, got %+v", got)
	}
	if !strings.Contains(got.Prompt, `"coffee?"`) {
		t.Errorf("question missing from prompt: %q", got.Prompt)
	}
}

func TestGeneratorFailures(t *testing.T) {
	boom := errors.New("provider down")
	tests := []struct {
		name    string
		out     string
		err     error
		wantErr error
	}{
		{"model error", "", boom, boom},
		{"no statement", "Sorry, I can't help with that.", nil, ErrNoSQL},
		{"empty", "", nil, ErrNoSQL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
				return tt.out, tt.err
			}), time.Second)
			_, err := g.Generate(context.Background(), "q", models.SchemaDescription{}, dialect.SQLite, time.Now())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSynthesizer(t *testing.T) {
	rs := models.ResultSet{Columns: []string{"n"}}
	for i := 0; i < 25; i++ {
		rs.Rows = append(rs.Rows, models.Row{"n": float64(i)})
	}

	var got llm.Request
	s := NewSynthesizer(llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		got = req
		return "You have 25 rows.", nil
	}), 0)
	answer, err := s.Synthesize(context.Background(), "count?", "SELECT n FROM t", rs)
	if err != nil || answer != "You have 25 rows." {
		t.Fatalf("Synthesize() = %q, %v", answer, err)
	}
	if got.Temperature != 0.7 || got.MaxTokens != 300 {
		t.Errorf("unexpected request settings %+v", got)
	}
	if !strings.Contains(got.Prompt, `"n": 9`) || strings.Contains(got.Prompt, `"n": 10`) {
		t.Errorf("preview must hold exactly the first 10 rows:\n%s", got.Prompt)
	}
	if !strings.Contains(got.Prompt, "Total rows returned: 25") {
		t.Errorf("total row count missing:\n%s", got.Prompt)
	}
}

func TestSynthesizerFallback(t *testing.T) {
	for name, c := range map[string]llm.CompleterFunc{
		"error": func(context.Context, llm.Request) (string, error) { return "", errors.New("timeout") },
		"empty": func(context.Context, llm.Request) (string, error) { return "", nil },
	} {
		t.Run(name, func(t *testing.T) {
			answer, err := NewSynthesizer(c, time.Second).Synthesize(context.Background(), "q", "SELECT 1", models.ResultSet{})
			if err == nil {
				t.Error("expected the failure to be reported")
			}
			if answer != FallbackAnswer {
				t.Errorf("answer = %q, want fallback", answer)
			}
		})
	}
}
