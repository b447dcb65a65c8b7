// Package aggregate computes null-aware statistics over a result set.
package aggregate

import (
	"context"
	"iter"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/metrics"
	"github.com/adfharrison1/livedb/pkg/schema"
)

// Compute validates field for op and then aggregates records in one scan.
// No record is read when validation fails.
func Compute(ctx context.Context, op Op, field schema.Field, records iter.Seq[domain.Record]) (res Result, err error) {
	tr := otel.Tracer("livedb/aggregate")
	_, span := tr.Start(ctx, "aggregate."+op.String(), trace.WithAttributes(
		attribute.String("field", field.Name),
		attribute.String("field.type", field.Type.String()),
	))
	defer func() {
		metrics.AggregationsTotal.WithLabelValues(op.String(), metrics.Status(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rule, err := RuleFor(op)
	if err != nil {
		return Result{}, err
	}
	if err = rule.Check(field); err != nil {
		return Result{}, err
	}
	stats := Collect(field, records)
	span.SetAttributes(attribute.Int("rows", stats.Rows), attribute.Int("count", stats.Count))
	return stats.Result(op)
}

// Min returns the smallest non-null value, or an absent Number.
func Min(field schema.Field, records iter.Seq[domain.Record]) (Number, error) {
	res, err := Compute(context.Background(), OpMin, field, records)
	return res.Number, err
}

// Max returns the largest non-null value, or an absent Number.
func Max(field schema.Field, records iter.Seq[domain.Record]) (Number, error) {
	res, err := Compute(context.Background(), OpMax, field, records)
	return res.Number, err
}

// Sum returns the sum of non-null values, zero of the field's kind when there are none.
// Integer sums are int64 and wrap around on overflow.
func Sum(field schema.Field, records iter.Seq[domain.Record]) (Number, error) {
	res, err := Compute(context.Background(), OpSum, field, records)
	return res.Number, err
}

// Average returns the mean over non-null values, 0.0 when there are none.
// Integer values are averaged in float64, so it does not overflow where Sum does.
func Average(field schema.Field, records iter.Seq[domain.Record]) (float64, error) {
	res, err := Compute(context.Background(), OpAverage, field, records)
	return res.Number.Float, err
}

func MinDate(field schema.Field, records iter.Seq[domain.Record]) (time.Time, bool, error) {
	res, err := Compute(context.Background(), OpMinDate, field, records)
	return res.Date, res.Present, err
}

func MaxDate(field schema.Field, records iter.Seq[domain.Record]) (time.Time, bool, error) {
	res, err := Compute(context.Background(), OpMaxDate, field, records)
	return res.Date, res.Present, err
}
