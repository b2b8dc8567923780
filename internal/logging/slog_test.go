package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG msg=dbg a=1",
		"level=INFO msg=inf b=2",
		"level=WARN msg=wrn c=3",
		"level=ERROR msg=err d=4",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSlogLogger_With(t *testing.T) {
	log, buf := newTestLogger(t)
	child := log.With("module", "worker")
	child.Info(context.Background(), "claimed")

	if !strings.Contains(buf.String(), "module=worker") {
		t.Fatalf("child logger lost bound attribute:\n%s", buf.String())
	}
}
