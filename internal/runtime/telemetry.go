package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// telemetry owns the global trace and meter providers and the optional
// Prometheus scrape server.
type telemetry struct {
	tracer  *sdktrace.TracerProvider
	meter   *sdkmetric.MeterProvider
	metrics *http.Server
	logger  *slog.Logger
}

func setupTelemetry(ctx context.Context, cfg config.Config, logger *slog.Logger) (*telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			attribute.String("deployment.environment", cfg.Environment),
			attribute.String("reader.synthesis.mode", cfg.Synthesis.Mode),
		),
	)
	if err != nil {
		return nil, err
	}

	tp, err := initTracer(ctx, cfg, res, logger)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	mp, handler := initMetrics(res, logger)
	otel.SetMeterProvider(mp)

	t := &telemetry{tracer: tp, meter: mp, logger: logger}
	if bind := strings.TrimSpace(cfg.Telemetry.PrometheusBind); bind != "" && handler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		t.metrics = &http.Server{Addr: bind, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := t.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slogError(err))
			}
		}()
		logger.Info("metrics endpoint listening", slog.String("addr", bind))
	}
	return t, nil
}

func (t *telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.metrics != nil {
		if err := t.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.meter.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func initTracer(ctx context.Context, cfg config.Config, res *resource.Resource, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	if endpoint := strings.TrimSpace(cfg.Telemetry.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Telemetry.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		logger.Info("telemetry initialized", slog.String("exporter", "otlp"), slog.String("endpoint", endpoint))
		return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res)), nil
	}

	// Without a collector, spans are only printed at debug level.
	if !strings.EqualFold(cfg.Telemetry.LogLevel, "debug") {
		logger.Info("telemetry initialized", slog.String("exporter", "none"))
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	logger.Info("telemetry initialized", slog.String("exporter", "stdout"))
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res)), nil
}

func initMetrics(res *resource.Resource, logger *slog.Logger) (*sdkmetric.MeterProvider, http.Handler) {
	promExporter, err := prometheus.New()
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", slogError(err))
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	return mp, promhttp.Handler()
}
