// Package observe exports router counters as OpenTelemetry metrics.
//
// Queue and callback counters already live in the router as atomics, so the
// instruments here are observable: they are read when a collection happens,
// never from an audio callback.
package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/audiolibrelab/xlrbridge/internal/router"
)

// meterName is the instrumentation scope of every xlrbridge metric.
const meterName = "github.com/audiolibrelab/xlrbridge"

// StatsSource is anything that can snapshot router counters.
type StatsSource interface {
	Stats() router.Stats
}

// Metrics holds the instruments of one process.
type Metrics struct {
	// SessionsStarted counts sessions that reached the running state.
	SessionsStarted metric.Int64Counter
	// SetupFailures counts failed session setups. Use with
	// attribute.String("stage", ...).
	SetupFailures metric.Int64Counter

	queuePushed   metric.Int64ObservableCounter
	queueEvicted  metric.Int64ObservableCounter
	queueReads    metric.Int64ObservableCounter
	queueShort    metric.Int64ObservableCounter
	queueLength   metric.Int64ObservableGauge
	unitCalls     metric.Int64ObservableCounter
	unitFailures  metric.Int64ObservableCounter
	routerRunning metric.Int64ObservableGauge

	reg metric.Registration
}

// NewMetrics creates every instrument on mp and, when src is non-nil, binds
// the observable ones to it.
func NewMetrics(mp metric.MeterProvider, src StatsSource) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionsStarted, err = m.Int64Counter("xlrbridge.sessions.started",
		metric.WithDescription("Routing sessions that reached the running state."),
	); err != nil {
		return nil, err
	}
	if met.SetupFailures, err = m.Int64Counter("xlrbridge.setup.failures",
		metric.WithDescription("Session setups that failed, by stage."),
	); err != nil {
		return nil, err
	}

	if met.queuePushed, err = m.Int64ObservableCounter("xlrbridge.queue.pushed",
		metric.WithDescription("Samples pushed into a channel queue."),
		metric.WithUnit("{sample}"),
	); err != nil {
		return nil, err
	}
	if met.queueEvicted, err = m.Int64ObservableCounter("xlrbridge.queue.evicted",
		metric.WithDescription("Samples dropped because a channel queue was full."),
		metric.WithUnit("{sample}"),
	); err != nil {
		return nil, err
	}
	if met.queueReads, err = m.Int64ObservableCounter("xlrbridge.queue.reads",
		metric.WithDescription("Window reads from a channel queue."),
	); err != nil {
		return nil, err
	}
	if met.queueShort, err = m.Int64ObservableCounter("xlrbridge.queue.short_reads",
		metric.WithDescription("Window reads that found fewer samples than requested."),
	); err != nil {
		return nil, err
	}
	if met.queueLength, err = m.Int64ObservableGauge("xlrbridge.queue.length",
		metric.WithDescription("Samples currently buffered in a channel queue."),
		metric.WithUnit("{sample}"),
	); err != nil {
		return nil, err
	}
	if met.unitCalls, err = m.Int64ObservableCounter("xlrbridge.unit.callbacks",
		metric.WithDescription("Callback invocations per host unit."),
	); err != nil {
		return nil, err
	}
	if met.unitFailures, err = m.Int64ObservableCounter("xlrbridge.unit.callback_failures",
		metric.WithDescription("Callback invocations that reported a failure."),
	); err != nil {
		return nil, err
	}
	if met.routerRunning, err = m.Int64ObservableGauge("xlrbridge.router.running",
		metric.WithDescription("1 while the router is running, 0 otherwise."),
	); err != nil {
		return nil, err
	}

	if src != nil {
		met.reg, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			met.observe(o, src.Stats())
			return nil
		},
			met.queuePushed, met.queueEvicted, met.queueReads, met.queueShort, met.queueLength,
			met.unitCalls, met.unitFailures, met.routerRunning,
		)
		if err != nil {
			return nil, err
		}
	}
	return met, nil
}

func (m *Metrics) observe(o metric.Observer, st router.Stats) {
	running := int64(0)
	if st.State == router.StateRunning.String() {
		running = 1
	}
	o.ObserveInt64(m.routerRunning, running)

	for _, c := range st.Channels {
		attrs := metric.WithAttributes(
			attribute.String("direction", c.Direction),
			attribute.String("channel", c.Channel),
		)
		o.ObserveInt64(m.queuePushed, int64(c.Queue.Pushed), attrs)
		o.ObserveInt64(m.queueEvicted, int64(c.Queue.Evicted), attrs)
		o.ObserveInt64(m.queueReads, int64(c.Queue.Reads), attrs)
		o.ObserveInt64(m.queueShort, int64(c.Queue.ShortReads), attrs)
		o.ObserveInt64(m.queueLength, int64(c.Queue.Len), attrs)
	}
	for _, u := range st.Units {
		attrs := metric.WithAttributes(
			attribute.String("unit", u.Unit),
			attribute.String("direction", u.Direction),
			attribute.String("role", u.Role),
		)
		o.ObserveInt64(m.unitCalls, int64(u.Calls), attrs)
		o.ObserveInt64(m.unitFailures, int64(u.Failures), attrs)
	}
}

// RecordSetupFailure counts a failed setup at stage.
func (m *Metrics) RecordSetupFailure(ctx context.Context, stage string) {
	m.SetupFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// Close detaches the observable instruments from their stats source.
func (m *Metrics) Close() error {
	if m.reg == nil {
		return nil
	}
	err := m.reg.Unregister()
	m.reg = nil
	if err != nil {
		return errors.Join(errors.New("unregister metrics callback"), err)
	}
	return nil
}
