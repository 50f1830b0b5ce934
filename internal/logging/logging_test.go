package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, "warn")
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, `"service":"ledgerai"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestFromContextAddsRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	prev := log.Logger
	log.Logger = New(buf, "info")
	defer func() { log.Logger = prev }()

	ctx := WithRequestID(context.Background(), "req-1")
	if RequestID(ctx) != "req-1" {
		t.Fatalf("RequestID = %q", RequestID(ctx))
	}
	l := FromContext(ctx)
	l.Info().Msg("x")
	if !strings.Contains(buf.String(), `"request_id":"req-1"`) {
		t.Errorf("request id missing: %s", buf.String())
	}
	if RequestID(context.Background()) != "" {
		t.Error("empty context has no request id")
	}
}
