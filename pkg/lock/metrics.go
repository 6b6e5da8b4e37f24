package lock

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	otelPackageName = "github.com/DataONEorg/hashstore/pkg/lock"

	// Kind constants identify which of the three keyed lock sets an
	// acquisition belongs to (§4.E).
	KindPid          = "pid"
	KindCid          = "cid"
	KindPidNamespace = "pid_namespace"

	// Result constants for metrics.
	ResultSuccess    = "success"
	ResultContention = "contention"
)

var (
	//nolint:gochecknoglobals
	meter metric.Meter

	// lockAcquisitionsTotal tracks total lock acquisition attempts.
	//nolint:gochecknoglobals
	lockAcquisitionsTotal metric.Int64Counter

	// lockHoldDuration tracks how long locks are held.
	//nolint:gochecknoglobals
	lockHoldDuration metric.Float64Histogram
)

//nolint:gochecknoinits
func init() {
	meter = otel.Meter(otelPackageName)

	var err error

	lockAcquisitionsTotal, err = meter.Int64Counter(
		"hashstore_lock_acquisitions_total",
		metric.WithDescription("Total number of lock acquisition attempts, by kind and result"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		panic(err)
	}

	lockHoldDuration, err = meter.Float64Histogram(
		"hashstore_lock_hold_duration_seconds",
		metric.WithDescription("Duration that locks are held, by kind"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(err)
	}
}

// RecordAcquisition records a lock acquisition attempt.
// kind should be one of the Kind* constants, result one of the Result* constants.
func RecordAcquisition(ctx context.Context, kind, result string) {
	if lockAcquisitionsTotal == nil {
		return
	}

	lockAcquisitionsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("result", result),
		),
	)
}

// RecordHoldDuration records how long a lock of the given kind was held, in seconds.
func RecordHoldDuration(ctx context.Context, kind string, duration float64) {
	if lockHoldDuration == nil {
		return
	}

	lockHoldDuration.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("kind", kind),
		),
	)
}
