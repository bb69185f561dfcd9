package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-reader/internal/pipeline"

type instruments struct {
	tracer        trace.Tracer
	chunks        metric.Int64Counter
	chunkFailures metric.Int64Counter
	conversions   metric.Int64Counter
	chunkLatency  metric.Float64Histogram
	audioSeconds  metric.Float64Histogram
}

// newInstruments binds to the global providers installed by the runtime.
// Instrument creation only fails on invalid names, so errors fall back to
// no-op instruments.
func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	in := &instruments{tracer: otel.Tracer(instrumentationName)}
	in.chunks, _ = meter.Int64Counter("reader.chunks.synthesized",
		metric.WithDescription("Chunks synthesized and stored"))
	in.chunkFailures, _ = meter.Int64Counter("reader.chunks.failed",
		metric.WithDescription("Chunks that failed synthesis, by kind"))
	in.conversions, _ = meter.Int64Counter("reader.conversions",
		metric.WithDescription("Conversions finished, by outcome"))
	in.chunkLatency, _ = meter.Float64Histogram("reader.chunk.latency",
		metric.WithDescription("Provider latency per chunk"), metric.WithUnit("s"))
	in.audioSeconds, _ = meter.Float64Histogram("reader.asset.duration",
		metric.WithDescription("Duration of joined assets"), metric.WithUnit("s"))
	return in
}

func (in *instruments) chunkDone(ctx context.Context, latency time.Duration, kind string) {
	if in.chunkLatency != nil {
		in.chunkLatency.Record(ctx, latency.Seconds())
	}
	if kind == "" {
		if in.chunks != nil {
			in.chunks.Add(ctx, 1)
		}
		return
	}
	if in.chunkFailures != nil {
		in.chunkFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (in *instruments) conversionDone(ctx context.Context, outcome string, total time.Duration) {
	if in.conversions != nil {
		in.conversions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if outcome == "ok" && in.audioSeconds != nil {
		in.audioSeconds.Record(ctx, total.Seconds())
	}
}
