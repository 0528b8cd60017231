// Package telemetry exposes ingestion metrics through OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/stwalsh4118/rentroll/internal/config"
	"github.com/stwalsh4118/rentroll/internal/models"
)

const instrumentationName = "github.com/stwalsh4118/rentroll"

// Detection stages.
const (
	StageClassify = "classify"
	StageHeaders  = "headers"
)

// Sheet outcomes.
const (
	SheetProcessed = "processed"
	SheetSkipped   = "skipped"
)

// Provider owns the meter provider and its exporter.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
}

// NewProvider builds a meter provider. With an OTLP endpoint configured the
// metrics are pushed over gRPC every 15 seconds; otherwise they are recorded
// but never exported.
func NewProvider(ctx context.Context, cfg config.TelemetryConfig, env string) (*Provider, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", env),
	)

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)))
	}

	return &Provider{meterProvider: sdkmetric.NewMeterProvider(opts...)}, nil
}

// Meter returns the service meter.
func (p *Provider) Meter() metric.Meter {
	return p.meterProvider.Meter(instrumentationName)
}

// Shutdown flushes and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}

// Metrics records pipeline outcomes. A nil *Metrics records nothing.
type Metrics struct {
	files      metric.Int64Counter
	sheets     metric.Int64Counter
	detections metric.Int64Counter
	fallbacks  metric.Int64Counter
	units      metric.Int64Counter
	rowErrors  metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewMetrics registers the ingestion instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.files, err = meter.Int64Counter("rentroll.files.processed",
		metric.WithDescription("Uploaded files processed"),
		metric.WithUnit("{file}"),
	); err != nil {
		return nil, err
	}
	if m.sheets, err = meter.Int64Counter("rentroll.sheets",
		metric.WithDescription("Sheets processed or skipped"),
		metric.WithUnit("{sheet}"),
	); err != nil {
		return nil, err
	}
	if m.detections, err = meter.Int64Counter("rentroll.detections",
		metric.WithDescription("Classification and header detections by source"),
		metric.WithUnit("{detection}"),
	); err != nil {
		return nil, err
	}
	if m.fallbacks, err = meter.Int64Counter("rentroll.ai.fallbacks",
		metric.WithDescription("Detections answered by heuristics while AI was enabled"),
		metric.WithUnit("{detection}"),
	); err != nil {
		return nil, err
	}
	if m.units, err = meter.Int64Counter("rentroll.units.extracted",
		metric.WithDescription("Unit records extracted"),
		metric.WithUnit("{unit}"),
	); err != nil {
		return nil, err
	}
	if m.rowErrors, err = meter.Int64Counter("rentroll.rows.errors",
		metric.WithDescription("Rows rejected with an error"),
		metric.WithUnit("{row}"),
	); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("rentroll.file.duration",
		metric.WithDescription("File processing duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordFile records a finished file.
func (m *Metrics) RecordFile(ctx context.Context, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.files.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordSheet records a sheet outcome.
func (m *Metrics) RecordSheet(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.sheets.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordDetection records which source answered a detection stage. When AI
// was enabled and the heuristic answered, a fallback is counted too.
func (m *Metrics) RecordDetection(ctx context.Context, stage string, source models.DetectionSource, aiEnabled bool) {
	if m == nil {
		return
	}
	m.detections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("source", string(source)),
	))
	if aiEnabled && source == models.SourceHeuristic {
		m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
}

// RecordExtraction records the units and row errors of one sheet.
func (m *Metrics) RecordExtraction(ctx context.Context, units, rowErrors int) {
	if m == nil {
		return
	}
	m.units.Add(ctx, int64(units))
	m.rowErrors.Add(ctx, int64(rowErrors))
}
