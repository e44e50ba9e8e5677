// Package observe holds the OpenTelemetry instruments recorded by the bridge.
//
// Instruments are created from an injected [metric.MeterProvider]; production
// wires a Prometheus exporter (see internal/infrastructure), tests use a
// manual reader.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all bridge metrics.
const meterName = "github.com/Raikerian/go-sip-realtime-bridge"

// Metrics holds all metric instruments for the bridge. Safe for concurrent use.
type Metrics struct {
	// ActiveCalls tracks the number of sessions in the registry.
	ActiveCalls metric.Int64UpDownCounter

	// CallsStarted counts sessions created by start-call events.
	CallsStarted metric.Int64Counter

	// CallsEnded counts torn down sessions. Use with attribute:
	//   attribute.String("reason", ...)
	CallsEnded metric.Int64Counter

	// ChunksForwarded counts ingress chunks. Use with attribute:
	//   attribute.String("status", "accepted"|"unknown_call")
	ChunksForwarded metric.Int64Counter

	// FramesSent counts RTP packets written to the network.
	FramesSent metric.Int64Counter

	// LateTicks counts pacer iterations whose deadline had already passed.
	LateTicks metric.Int64Counter

	// TransportErrors counts failed RTP writes.
	TransportErrors metric.Int64Counter

	// RemoteErrors counts speech channel failures. Use with attribute:
	//   attribute.String("stage", "dial"|"send"|"receive")
	RemoteErrors metric.Int64Counter

	// DialDuration tracks how long opening a speech channel takes.
	DialDuration metric.Float64Histogram
}

var dialBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveCalls, err = m.Int64UpDownCounter("bridge.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}
	if met.CallsStarted, err = m.Int64Counter("bridge.calls.started",
		metric.WithDescription("Total call sessions started."),
	); err != nil {
		return nil, err
	}
	if met.CallsEnded, err = m.Int64Counter("bridge.calls.ended",
		metric.WithDescription("Total call sessions ended by reason."),
	); err != nil {
		return nil, err
	}
	if met.ChunksForwarded, err = m.Int64Counter("bridge.ingress.chunks",
		metric.WithDescription("Ingress audio chunks by delivery status."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("bridge.rtp.frames_sent",
		metric.WithDescription("RTP packets written to the network."),
	); err != nil {
		return nil, err
	}
	if met.LateTicks, err = m.Int64Counter("bridge.pacer.late_ticks",
		metric.WithDescription("Pacer iterations that missed their deadline."),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("bridge.rtp.send_errors",
		metric.WithDescription("Failed RTP packet writes."),
	); err != nil {
		return nil, err
	}
	if met.RemoteErrors, err = m.Int64Counter("bridge.remote.errors",
		metric.WithDescription("Speech channel failures by stage."),
	); err != nil {
		return nil, err
	}
	if met.DialDuration, err = m.Float64Histogram("bridge.remote.dial.duration",
		metric.WithDescription("Latency of opening a speech channel."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(dialBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// NewNopMetrics returns instruments that record nothing.
func NewNopMetrics() *Metrics {
	met, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return met
}

// RecordCallStarted increments the started counter and the active gauge.
func (m *Metrics) RecordCallStarted(ctx context.Context) {
	m.CallsStarted.Add(ctx, 1)
	m.ActiveCalls.Add(ctx, 1)
}

// RecordCallEnded increments the ended counter and decrements the active gauge.
func (m *Metrics) RecordCallEnded(ctx context.Context, reason string) {
	m.CallsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.ActiveCalls.Add(ctx, -1)
}

// RecordChunk counts one ingress chunk with its delivery status.
func (m *Metrics) RecordChunk(ctx context.Context, status string) {
	m.ChunksForwarded.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordRemoteError counts a speech channel failure at stage.
func (m *Metrics) RecordRemoteError(ctx context.Context, stage string) {
	m.RemoteErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordDial observes a channel dial duration.
func (m *Metrics) RecordDial(ctx context.Context, d time.Duration) {
	m.DialDuration.Record(ctx, d.Seconds())
}
