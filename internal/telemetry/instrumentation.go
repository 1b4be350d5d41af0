package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span and metric attributes must stay bounded: operation names, statuses, schemes and
// asset ids from the catalog are fine. Paths, URLs, handles and error messages go to logs
// or span status instead.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", duration.Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)
	duration := time.Since(start)

	t.RecordDBOperation(operation, statusOf(err), duration)

	return err
}

// InstrumentSourceOperation instruments calls to a remote asset source.
func (t *Telemetry) InstrumentSourceOperation(ctx context.Context, scheme, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "source_"+operation, "source", func(ctx context.Context) error {
		if t.tracer == nil {
			return fn(ctx)
		}

		ctx, span := t.tracer.Start(ctx, "source_"+operation)
		defer span.End()

		span.SetAttributes(
			attribute.String("source.scheme", scheme),
			attribute.String("source.operation", operation),
		)

		return fn(ctx)
	})

	t.RecordSourceOperation(scheme, operation, statusOf(err))

	return err
}

// InstrumentFetch instruments one asset transfer from start to rename.
func (t *Telemetry) InstrumentFetch(ctx context.Context, assetID string, fn func(ctx context.Context) (int64, error)) error {
	if t == nil {
		_, err := fn(ctx)

		return err
	}

	start := time.Now()

	t.IncrementActiveFetches()
	defer t.DecrementActiveFetches()

	var written int64

	err := t.InstrumentOperation(ctx, "fetch", "fetcher", func(ctx context.Context) error {
		var err error

		written, err = fn(ctx)

		return err
	})

	t.RecordFetch(assetID, statusOf(err), time.Since(start), written)

	return err
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
