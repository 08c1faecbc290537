package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds berth metric instruments.
type Metrics struct {
	// Intents
	IntentTotal    metric.Int64Counter
	IntentDuration metric.Float64Histogram
	IntentErrors   metric.Int64Counter

	// Runtime driver
	DriverRetries metric.Int64Counter

	// Reconciliation
	DriftCorrections metric.Int64Counter
	Adoptions        metric.Int64Counter
	TombstonesPurged metric.Int64Counter

	// Containers
	ManagedContainers metric.Int64UpDownCounter

	// Events
	EventsPublished metric.Int64Counter
	EventsDropped   metric.Int64Counter
}

// NewMetrics creates and registers all berth metric instruments.
// All fields are always initialized; OTel hands out noop instruments
// when no MeterProvider is set.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("berth")
	m := &Metrics{}
	var err error

	if m.IntentTotal, err = meter.Int64Counter("berth.intent.total",
		metric.WithDescription("Total lifecycle intents handled")); err != nil {
		return nil, err
	}
	if m.IntentDuration, err = meter.Float64Histogram("berth.intent.duration_seconds",
		metric.WithDescription("Lifecycle intent duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30)); err != nil {
		return nil, err
	}
	if m.IntentErrors, err = meter.Int64Counter("berth.intent.errors",
		metric.WithDescription("Total lifecycle intents that failed")); err != nil {
		return nil, err
	}
	if m.DriverRetries, err = meter.Int64Counter("berth.driver.retries",
		metric.WithDescription("Runtime driver calls retried after a transient error")); err != nil {
		return nil, err
	}
	if m.DriftCorrections, err = meter.Int64Counter("berth.reconcile.drift_corrected",
		metric.WithDescription("Records corrected to match the runtime")); err != nil {
		return nil, err
	}
	if m.Adoptions, err = meter.Int64Counter("berth.reconcile.adopted",
		metric.WithDescription("Runtime units adopted into the store")); err != nil {
		return nil, err
	}
	if m.TombstonesPurged, err = meter.Int64Counter("berth.store.tombstones_purged",
		metric.WithDescription("Tombstones purged after retention")); err != nil {
		return nil, err
	}
	if m.ManagedContainers, err = meter.Int64UpDownCounter("berth.container.managed",
		metric.WithDescription("Currently managed containers")); err != nil {
		return nil, err
	}
	if m.EventsPublished, err = meter.Int64Counter("berth.events.published",
		metric.WithDescription("Total events published")); err != nil {
		return nil, err
	}
	if m.EventsDropped, err = meter.Int64Counter("berth.events.dropped",
		metric.WithDescription("Total events dropped")); err != nil {
		return nil, err
	}

	return m, nil
}
