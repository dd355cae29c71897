package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestGenerateInvocationIDIsUniqueAndPrefixed(t *testing.T) {
	a := GenerateInvocationID()
	b := GenerateInvocationID()
	if a == b {
		t.Fatalf("expected two generated invocation ids to differ")
	}
	if !strings.HasPrefix(a, "inv_") {
		t.Fatalf("expected invocation id to carry the inv_ prefix, got %q", a)
	}
}

func TestWithInvocationIDRoundTrips(t *testing.T) {
	ctx := WithInvocationID(context.Background(), "inv_abc")
	if got := InvocationID(ctx); got != "inv_abc" {
		t.Fatalf("expected to recover the attached invocation id, got %q", got)
	}
	if got := InvocationID(context.Background()); got != "" {
		t.Fatalf("expected an empty string for a context with no invocation id, got %q", got)
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestForComponentEmitsJSONWithComponentTag(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	logger := ForComponent(slog.New(handler), "comp-a")
	logger.Info("hello")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v, body: %s", err, buf.String())
	}
	if decoded["component_id"] != "comp-a" {
		t.Fatalf("expected component_id=comp-a in the log record, got %#v", decoded["component_id"])
	}
	if decoded["msg"] != "hello" {
		t.Fatalf("expected msg=hello in the log record, got %#v", decoded["msg"])
	}
}
