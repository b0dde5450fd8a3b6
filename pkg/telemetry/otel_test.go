package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestTelemetrySetup(t *testing.T) {
	tel, err := Setup("live-broker-test")
	if err != nil {
		t.Fatalf("Failed to setup telemetry: %v", err)
	}

	if otel.GetTracerProvider() == nil {
		t.Error("Tracer provider not set")
	}
	if otel.GetMeterProvider() == nil {
		t.Error("Meter provider not set")
	}

	if GetTracer("test-tracer") == nil {
		t.Error("Failed to get tracer")
	}
	if GetMeter("test-meter") == nil {
		t.Error("Failed to get meter")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestBrokerMetricsInit(t *testing.T) {
	holder := GetBrokerMetrics()
	if err := holder.InitMetrics(GetMeter("live-broker-metrics-test")); err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}

	ctx := context.Background()
	holder.AddSubmitted(ctx, "BUY")
	holder.AddRejected(ctx)
	holder.AddDeferred(ctx)
	holder.SetGauges(123.45, 2, 1, true)
}
