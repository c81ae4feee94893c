package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := levelFromString(in).Level(); got != want {
			t.Errorf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "info").With("request_id", "abc")
	ctx := WithContext(context.Background(), l)
	FromContext(ctx, nil).Info("hello")
	if !strings.Contains(buf.String(), `"request_id":"abc"`) {
		t.Fatalf("expected request id in %s", buf.String())
	}
	fallback := Discard()
	if FromContext(context.Background(), fallback) != fallback {
		t.Fatal("expected fallback logger")
	}
}
