package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	ctx, span := StartSpan(context.Background(), "relay.test")
	var buf bytes.Buffer
	Logger(ctx, slog.New(slog.NewTextHandler(&buf, nil))).Info("hello")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "relay.test" {
		t.Fatalf("spans=%v", spans)
	}
	if !strings.Contains(buf.String(), "trace_id="+spans[0].SpanContext.TraceID().String()) {
		t.Fatalf("log line missing trace id: %s", buf.String())
	}
}

func TestLogger_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	if got := Logger(context.Background(), base); got != base {
		t.Fatalf("Logger without span should return base")
	}
}

func TestInitTracing(t *testing.T) {
	orig := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	exp := tracetest.NewInMemoryExporter()
	shutdown, err := InitTracing(context.Background(), ProviderConfig{ServiceVersion: "test", Exporter: exp})
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := StartSpan(context.Background(), "relay.init")
	span.End()

	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		t.Fatalf("global provider is %T", otel.GetTracerProvider())
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n := len(exp.GetSpans()); n != 1 {
		t.Fatalf("exported %d spans, want 1", n)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
