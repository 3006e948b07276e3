package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/asmbly/membersync/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"google.golang.org/grpc/credentials/insecure"
)

// Telemetry records sync outcomes as metrics. All methods are safe to
// call on a disabled instance, so callers never need to branch.
type Telemetry interface {
	RecordReconciliation(ctx context.Context, transition string, wrote bool)
	RecordReconcileFailure(ctx context.Context, reason string)
	RecordNotification(ctx context.Context, kind string, suppressed bool)
	RecordProvisioned(ctx context.Context, resurrected bool)
	Shutdown(ctx context.Context) error
}

type OpenTelemetry struct {
	loggerProvider *sdklog.LoggerProvider
	meterProvider  *sdkmetric.MeterProvider
	config         config.TelemetryConfig

	reconciliations  metric.Int64Counter
	reconcileErrors  metric.Int64Counter
	notifications    metric.Int64Counter
	usersProvisioned metric.Int64Counter
}

// NewOpenTelemetry sets up OTLP gRPC exporters for logs and metrics.
// With telemetry disabled or no exporter URL it returns a no-op
// instance so the rest of the service is unaffected.
func NewOpenTelemetry(cfg config.TelemetryConfig) (Telemetry, error) {
	if !cfg.Enabled || cfg.ExporterURL == "" {
		slog.Info("Telemetry disabled or no exporter URL provided")
		return &OpenTelemetry{config: cfg}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	logExporter, err := otlploggrpc.New(context.Background(),
		otlploggrpc.WithEndpoint(cfg.ExporterURL),
		otlploggrpc.WithTLSCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(context.Background(),
		otlpmetricgrpc.WithEndpoint(cfg.ExporterURL),
		otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(10*time.Second))),
	)

	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)

	tel := &OpenTelemetry{
		loggerProvider: lp,
		meterProvider:  mp,
		config:         cfg,
	}

	if err := tel.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	slog.Info("Telemetry initialized",
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"environment", cfg.Environment,
		"endpoint", cfg.ExporterURL,
	)

	return tel, nil
}

func (t *OpenTelemetry) initMetrics() error {
	meter := otel.Meter("membersync")

	var err error

	t.reconciliations, err = meter.Int64Counter(
		"membersync_reconciliations_total",
		metric.WithDescription("Completed per-account reconciliation passes"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create reconciliations counter: %w", err)
	}

	t.reconcileErrors, err = meter.Int64Counter(
		"membersync_reconcile_failures_total",
		metric.WithDescription("Per-account reconciliation failures"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create failures counter: %w", err)
	}

	t.notifications, err = meter.Int64Counter(
		"membersync_notifications_total",
		metric.WithDescription("Access change notifications, including suppressed ones"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create notifications counter: %w", err)
	}

	t.usersProvisioned, err = meter.Int64Counter(
		"membersync_users_provisioned_total",
		metric.WithDescription("OpenPath users created, split by resurrection repair"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create provisioned counter: %w", err)
	}

	return nil
}

func (t *OpenTelemetry) IsEnabled() bool {
	return t.config.Enabled && t.meterProvider != nil
}

func (t *OpenTelemetry) RecordReconciliation(ctx context.Context, transition string, wrote bool) {
	if !t.IsEnabled() || t.reconciliations == nil {
		return
	}
	t.reconciliations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transition", transition),
		attribute.Bool("wrote", wrote),
	))
}

func (t *OpenTelemetry) RecordReconcileFailure(ctx context.Context, reason string) {
	if !t.IsEnabled() || t.reconcileErrors == nil {
		return
	}
	t.reconcileErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

func (t *OpenTelemetry) RecordNotification(ctx context.Context, kind string, suppressed bool) {
	if !t.IsEnabled() || t.notifications == nil {
		return
	}
	t.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("suppressed", suppressed),
	))
}

func (t *OpenTelemetry) RecordProvisioned(ctx context.Context, resurrected bool) {
	if !t.IsEnabled() || t.usersProvisioned == nil {
		return
	}
	t.usersProvisioned.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("resurrected", resurrected),
	))
}

// Shutdown flushes and stops the providers.
func (t *OpenTelemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.loggerProvider != nil {
		if err := t.loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log provider shutdown: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown errors: %v", errs)
	}

	return nil
}

// NewDisabled returns a telemetry instance that records nothing.
// Tests and dry runs use it.
func NewDisabled() Telemetry {
	return &OpenTelemetry{}
}
