package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestConfigFromEnv_DisabledByDefault(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	cfg := ConfigFromEnv("triage-service")
	if cfg.Enabled {
		t.Fatal("expected tracing disabled by default")
	}
	if cfg.SampleRatio != 0.25 || cfg.ServiceName != "triage-service" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestSetup_DisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	ctx := ContextWithTraceContext(context.Background(), traceparent, "")
	gotParent, _ := TraceContextStrings(ctx)
	if gotParent != traceparent {
		t.Fatalf("expected %q, got %q", traceparent, gotParent)
	}

	if ContextWithTraceContext(context.Background(), "", "") != context.Background() {
		t.Fatal("expected empty carrier to return the parent context")
	}
}
