package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func newTestLogger(t *testing.T, buf *bytes.Buffer, opts Options) Logger {
	t.Helper()
	opts.Writer = buf
	opts.JsonFormat = true
	l, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

// lastRecord parses the last JSON line written to buf.
func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("parse log line: %v\nraw: %s", err, buf.String())
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLogger_BaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "ligadeals-web", Component: "server", Environment: "production"})

	l.Info(context.Background(), "hello", "k", "v")

	m := lastRecord(t, &buf)
	if m["msg"] != "hello" {
		t.Fatalf("msg = %v", m["msg"])
	}
	if m["app"] != "ligadeals-web" || m["component"] != "server" || m["env"] != "production" {
		t.Fatalf("base attrs missing: %v", m)
	}
	if m["k"] != "v" {
		t.Fatalf("k = %v, want v", m["k"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "t", Level: slog.LevelWarn})

	l.Debug(context.Background(), "debug")
	l.Info(context.Background(), "info")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %s", buf.String())
	}

	l.Warn(context.Background(), "warn")
	if !strings.Contains(buf.String(), `"msg":"warn"`) {
		t.Fatalf("warn not written: %s", buf.String())
	}
}

func TestLogger_WithCopyOnWrite(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(t, &buf, Options{App: "t"})
	child := base.With("handler", "contact")

	base.Info(context.Background(), "base")
	if strings.Contains(buf.String(), "handler") {
		t.Fatal("With leaked attrs into the parent logger")
	}

	buf.Reset()
	child.Info(context.Background(), "child")
	if lastRecord(t, &buf)["handler"] != "contact" {
		t.Fatal("child logger missing handler attr")
	}
}

func TestLogger_WithIgnoresBadKeys(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "t"}).With(42, "x", "dangling")

	l.Info(context.Background(), "m")
	m := lastRecord(t, &buf)
	if _, ok := m["dangling"]; ok {
		t.Fatal("odd trailing key should be dropped")
	}
}

func TestLogger_ErrorEnrichment(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "t", IncludeErrorLinks: true})

	root := errors.New("connection refused")
	err := fmt.Errorf("invalidate /blog: %w", root)
	l.Error(context.Background(), err, "invalidation failed")

	m := lastRecord(t, &buf)
	if m["err"] != "invalidate /blog: connection refused" {
		t.Fatalf("err = %v", m["err"])
	}
	if m["cause_type"] != "*errors.errorString" {
		t.Fatalf("cause_type = %v", m["cause_type"])
	}
	chain, ok := m["error_chain"].([]any)
	if !ok || len(chain) != 2 {
		t.Fatalf("error_chain = %v", m["error_chain"])
	}
	if _, ok := m["error_links"]; !ok {
		t.Fatal("error_links missing")
	}
	if _, ok := m["stack"]; !ok {
		t.Fatal("stack missing at error level")
	}
}

func TestLogger_ErrorLinksDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "t"})

	l.Error(context.Background(), errors.New("boom"), "failed")
	if _, ok := lastRecord(t, &buf)["error_links"]; ok {
		t.Fatal("error_links should be omitted when disabled")
	}
}

func TestLogger_TraceFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "t"})

	tid, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	sid, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.Info(ctx, "traced")
	m := lastRecord(t, &buf)
	if m["trace_id"] != tid.String() || m["span_id"] != sid.String() {
		t.Fatalf("trace fields = %v / %v", m["trace_id"], m["span_id"])
	}
}

func TestErrorChain_Join(t *testing.T) {
	err := errors.Join(errors.New("a"), errors.New("b"))
	chain := errorChain(err)
	if len(chain) != 3 {
		t.Fatalf("chain = %v, want joined msg plus both members", chain)
	}
}

func TestContext_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "t"})
	ctx := WithContext(context.Background(), l)

	if FromContext(ctx) != l {
		t.Fatal("FromContext did not return stored logger")
	}
	if _, ok := FromContext(context.Background()).(nopLogger); !ok {
		t.Fatal("empty context should yield Nop")
	}
}

func TestNop_Safe(t *testing.T) {
	n := Nop()
	ctx := context.Background()
	n.Debug(ctx, "d")
	n.Info(ctx, "i")
	n.Warn(ctx, "w")
	n.Error(ctx, nil, "e")
	if n.With("a", 1) == nil {
		t.Fatal("With returned nil")
	}
	if err := n.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}
