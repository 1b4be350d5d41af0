package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	exporter       *prometheus.Exporter

	// RED Metrics (Rate, Errors, Duration)
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Business Metrics
	fetchesTotal          metric.Int64Counter
	fetchesActive         metric.Int64UpDownCounter
	fetchDuration         metric.Float64Histogram
	fetchBytes            metric.Int64Counter
	sourceOperationsTotal metric.Int64Counter
	sourceErrors          metric.Int64Counter
	migrationsTotal       metric.Int64Counter
	evaluationsTotal      metric.Int64Counter
	assetsMissing         metric.Int64Gauge
	pendingFetches        metric.Int64Gauge
	ready                 metric.Int64Gauge
	partialsRemoved       metric.Int64Counter
	dbOperationsTotal     metric.Int64Counter
	dbOperationDuration   metric.Float64Histogram

	// System health
	systemErrors metric.Int64Counter
	startTime    time.Time
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint adds a push exporter next to the Prometheus endpoint when set.
	OTLPEndpoint string
}

// New creates a new telemetry instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}

	if cfg.OTLPEndpoint != "" {
		otlp, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlp)))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(meterProvider)

	// Spans are not exported; the provider exists so log lines carry trace and span ids.
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tracerProvider)

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		exporter:       exporter,
		startTime:      time.Now(),
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Meter returns the OpenTelemetry meter.
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)

	if t.httpRequestsTotal != nil {
		t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	}

	if t.httpRequestDuration != nil {
		t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
	}
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight() {
	if t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight() {
	if t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), -1)
	}
}

// RecordFetch records a finished fetch. Asset ids come from the catalog, so the label set stays small.
func (t *Telemetry) RecordFetch(assetID, status string, duration time.Duration, bytes int64) {
	attrs := metric.WithAttributes(
		attribute.String("asset", assetID),
		attribute.String("status", status),
	)

	if t.fetchesTotal != nil {
		t.fetchesTotal.Add(context.Background(), 1, attrs)
	}

	if t.fetchDuration != nil {
		t.fetchDuration.Record(context.Background(), duration.Seconds(), attrs)
	}

	if t.fetchBytes != nil && bytes > 0 {
		t.fetchBytes.Add(context.Background(), bytes, metric.WithAttributes(attribute.String("asset", assetID)))
	}
}

// IncrementActiveFetches increments the running fetches counter.
func (t *Telemetry) IncrementActiveFetches() {
	if t.fetchesActive != nil {
		t.fetchesActive.Add(context.Background(), 1)
	}
}

// DecrementActiveFetches decrements the running fetches counter.
func (t *Telemetry) DecrementActiveFetches() {
	if t.fetchesActive != nil {
		t.fetchesActive.Add(context.Background(), -1)
	}
}

// RecordSourceOperation records a remote source call.
func (t *Telemetry) RecordSourceOperation(scheme, operation, status string) {
	if t.sourceOperationsTotal != nil {
		t.sourceOperationsTotal.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("scheme", scheme),
				attribute.String("operation", operation),
				attribute.String("status", status),
			),
		)
	}

	if status == "error" && t.sourceErrors != nil {
		t.sourceErrors.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("scheme", scheme),
				attribute.String("operation", operation),
			),
		)
	}
}

// RecordMigration counts one migration record by outcome.
func (t *Telemetry) RecordMigration(outcome string) {
	if t.migrationsTotal != nil {
		t.migrationsTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", outcome)),
		)
	}
}

// RecordEvaluation records one manifest evaluation and the state it left behind.
func (t *Telemetry) RecordEvaluation(trigger string, missing, pending int, ready bool) {
	if t.evaluationsTotal != nil {
		t.evaluationsTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("trigger", trigger)),
		)
	}

	if t.assetsMissing != nil {
		t.assetsMissing.Record(context.Background(), int64(missing))
	}

	if t.pendingFetches != nil {
		t.pendingFetches.Record(context.Background(), int64(pending))
	}

	if t.ready != nil {
		var v int64
		if ready {
			v = 1
		}

		t.ready.Record(context.Background(), v)
	}
}

// RecordPartialsRemoved counts abandoned partial files deleted by cleanup.
func (t *Telemetry) RecordPartialsRemoved(n int) {
	if t.partialsRemoved != nil && n > 0 {
		t.partialsRemoved.Add(context.Background(), int64(n))
	}
}

// RecordDBOperation records database operation metrics.
func (t *Telemetry) RecordDBOperation(operation, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	if t.dbOperationsTotal != nil {
		t.dbOperationsTotal.Add(context.Background(), 1, attrs)
	}

	if t.dbOperationDuration != nil {
		t.dbOperationDuration.Record(context.Background(), duration.Seconds(), attrs)
	}
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(component, errorType string) {
	if t.systemErrors != nil {
		t.systemErrors.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("component", component),
				attribute.String("error_type", errorType),
			),
		)
	}
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown flushes and stops the meter and tracer providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}

	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

// initializeMetrics creates all metric instruments.
func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	if err := t.initializeBusinessMetrics(); err != nil {
		return err
	}

	return t.initializeSystemMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeBusinessMetrics() error {
	var err error

	t.fetchesTotal, err = t.meter.Int64Counter(
		"asset_fetches_total",
		metric.WithDescription("Total number of finished asset fetches"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create asset_fetches_total counter: %w", err)
	}

	t.fetchesActive, err = t.meter.Int64UpDownCounter(
		"asset_fetches_active",
		metric.WithDescription("Number of running asset fetches"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create asset_fetches_active counter: %w", err)
	}

	t.fetchDuration, err = t.meter.Float64Histogram(
		"asset_fetch_duration_seconds",
		metric.WithDescription("Asset fetch duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create asset_fetch_duration histogram: %w", err)
	}

	t.fetchBytes, err = t.meter.Int64Counter(
		"asset_fetch_bytes_total",
		metric.WithDescription("Bytes written by asset fetches"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create asset_fetch_bytes_total counter: %w", err)
	}

	t.sourceOperationsTotal, err = t.meter.Int64Counter(
		"source_operations_total",
		metric.WithDescription("Total number of remote source operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create source_operations_total counter: %w", err)
	}

	t.sourceErrors, err = t.meter.Int64Counter(
		"source_errors_total",
		metric.WithDescription("Total number of remote source errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create source_errors counter: %w", err)
	}

	t.migrationsTotal, err = t.meter.Int64Counter(
		"migrations_total",
		metric.WithDescription("Legacy file migrations by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create migrations_total counter: %w", err)
	}

	t.evaluationsTotal, err = t.meter.Int64Counter(
		"manifest_evaluations_total",
		metric.WithDescription("Manifest evaluations by trigger"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create manifest_evaluations_total counter: %w", err)
	}

	t.assetsMissing, err = t.meter.Int64Gauge(
		"assets_missing",
		metric.WithDescription("Required assets missing after the last evaluation"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create assets_missing gauge: %w", err)
	}

	t.pendingFetches, err = t.meter.Int64Gauge(
		"fetches_pending",
		metric.WithDescription("Outstanding fetch requests in the current episode"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create fetches_pending gauge: %w", err)
	}

	t.ready, err = t.meter.Int64Gauge(
		"ready",
		metric.WithDescription("1 when every required asset is present"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create ready gauge: %w", err)
	}

	t.partialsRemoved, err = t.meter.Int64Counter(
		"partials_removed_total",
		metric.WithDescription("Abandoned partial files removed by cleanup"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create partials_removed counter: %w", err)
	}

	t.dbOperationsTotal, err = t.meter.Int64Counter(
		"db_operations_total",
		metric.WithDescription("Total number of database operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operations_total counter: %w", err)
	}

	t.dbOperationDuration, err = t.meter.Float64Histogram(
		"db_operation_duration_seconds",
		metric.WithDescription("Database operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operation_duration histogram: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeSystemMetrics() error {
	var err error

	t.systemErrors, err = t.meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	_, err = t.meter.Float64ObservableGauge(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(time.Since(t.startTime).Seconds())

			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}
