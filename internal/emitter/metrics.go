package emitter

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/fleetop/pkg/instance"
)

// MetricsEmitter exposes the last report as an instance info gauge, one
// series per instance with value 1.
type MetricsEmitter struct {
	instanceInfo metric.Int64ObservableGauge
	registration metric.Registration

	mu      sync.RWMutex
	records []instance.Record
}

// NewMetricsEmitter registers the gauge on meter.
func NewMetricsEmitter(meter metric.Meter) (*MetricsEmitter, error) {
	e := &MetricsEmitter{}

	var err error
	e.instanceInfo, err = meter.Int64ObservableGauge(
		"fleetop.instance.info",
		metric.WithDescription("Instance state observed by the last report"),
		metric.WithUnit("{instance}"),
	)
	if err != nil {
		return nil, err
	}

	e.registration, err = meter.RegisterCallback(e.observe, e.instanceInfo)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *MetricsEmitter) observe(_ context.Context, o metric.Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, r := range e.records {
		o.ObserveInt64(e.instanceInfo, 1, metric.WithAttributes(
			attribute.String("instance_id", r.InstanceID),
			attribute.String("name", r.Name),
			attribute.String("state", r.State),
		))
	}
	return nil
}

// Emit replaces the observed records.
func (e *MetricsEmitter) Emit(_ context.Context, records []instance.Record) error {
	cp := make([]instance.Record, len(records))
	copy(cp, records)

	e.mu.Lock()
	e.records = cp
	e.mu.Unlock()
	return nil
}

// Close unregisters the gauge callback.
func (e *MetricsEmitter) Close() error {
	return e.registration.Unregister()
}
