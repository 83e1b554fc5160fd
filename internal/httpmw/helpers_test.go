package httpmw

import (
	"context"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/ligadeals/ligadeals-web/internal/log"
)

type logLine struct {
	level string
	msg   string
	err   error
	kv    []any // With fields first, then call fields
}

func (l logLine) field(key string) (any, bool) {
	for i := 0; i+1 < len(l.kv); i += 2 {
		if k, ok := l.kv[i].(string); ok && k == key {
			return l.kv[i+1], true
		}
	}
	return nil, false
}

// memLogger records every line, including fields attached through With.
type memLogger struct {
	mu     *sync.Mutex
	lines  *[]logLine
	fields []any
}

func newMemLogger() *memLogger {
	return &memLogger{mu: &sync.Mutex{}, lines: &[]logLine{}}
}

func (m *memLogger) add(level, msg string, err error, kv []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append(append([]any(nil), m.fields...), kv...)
	*m.lines = append(*m.lines, logLine{level: level, msg: msg, err: err, kv: all})
}

func (m *memLogger) With(kv ...any) log.Logger {
	return &memLogger{mu: m.mu, lines: m.lines, fields: append(append([]any(nil), m.fields...), kv...)}
}
func (m *memLogger) Debug(_ context.Context, msg string, kv ...any) { m.add("debug", msg, nil, kv) }
func (m *memLogger) Info(_ context.Context, msg string, kv ...any)  { m.add("info", msg, nil, kv) }
func (m *memLogger) Warn(_ context.Context, msg string, kv ...any)  { m.add("warn", msg, nil, kv) }
func (m *memLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	m.add("error", msg, err, kv)
}
func (m *memLogger) Sync() error { return nil }

func (m *memLogger) all() []logLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]logLine(nil), *m.lines...)
}

func (m *memLogger) only(t *testing.T) logLine {
	t.Helper()
	lines := m.all()
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %+v", len(lines), lines)
	}
	return lines[0]
}

// tracedContext starts a recording span. End it and read the result from
// the returned recorder.
func tracedContext(t *testing.T) (context.Context, trace.Span, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "http.server")
	return ctx, span, sr
}
