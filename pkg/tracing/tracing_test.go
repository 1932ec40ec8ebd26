package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Error("tracing must be disabled by default")
	}
	if cfg.ServiceName != "bore-relay" {
		t.Errorf("expected service name 'bore-relay', got '%s'", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(DefaultConfig())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestSpanHelpers_WithNoopProvider(t *testing.T) {
	ctx := context.Background()

	ctx, span := TraceHTTPRequest(ctx, "POST", "/api/bans")
	RecordError(ctx, errors.New("boom"))
	span.End()

	_, span = TraceRelayEvent(ctx, "action:ban", "peer-1")
	span.End()

	_, span = TraceStoreOperation(ctx, "insert", "bans")
	span.End()
}

func TestTracePlayerOperation_SetsPlayerID(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := TracePlayerOperation(context.Background(), "set_mod", 42)
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	if ended[0].Name() != "admin.set_mod" {
		t.Errorf("unexpected span name %q", ended[0].Name())
	}
	found := false
	for _, kv := range ended[0].Attributes() {
		if kv.Key == PlayerIDKey && kv.Value.AsInt64() == 42 {
			found = true
		}
	}
	if !found {
		t.Errorf("span is missing %s=42: %v", PlayerIDKey, ended[0].Attributes())
	}
}
