// Package metrics exposes collection health as Prometheus metrics.
//
// Metrics implements policy.Recorder and pipeline.Observer, and is also a
// report.Sink keeping the last value of every channel as a gauge.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-sensornode/internal/report"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

const namespace = "sensornode"

var validStatus = sensor.StatusValid.String()

// Metrics holds the node's collectors.
type Metrics struct {
	collections *prometheus.CounterVec // sensor, counted
	retries     *prometheus.CounterVec // sensor
	faults      *prometheus.CounterVec // sensor
	failures    *prometheus.CounterVec // sensor
	restarts    *prometheus.CounterVec // sensor
	outOfRange  *prometheus.CounterVec // sensor, channel
	alarms      *prometheus.CounterVec // sensor, kind

	stageDuration *prometheus.HistogramVec // builder, stage
	sweepDuration prometheus.Histogram

	values *prometheus.GaugeVec // sensor, channel

	reg prometheus.Registerer
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		collections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "attempts_total",
			Help:      "Collection cycles started, by whether they count towards consumption",
		}, []string{"sensor", "counted"}),

		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "retries_total",
			Help:      "Collection attempts retried after a failure",
		}, []string{"sensor"}),

		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "faults_total",
			Help:      "Collections abandoned on a device that never worked",
		}, []string{"sensor"}),

		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "failures_total",
			Help:      "Collections abandoned on a device that worked before",
		}, []string{"sensor"}),

		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "restarts_total",
			Help:      "Node restarts requested by a failing sensor",
		}, []string{"sensor"}),

		outOfRange: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "check",
			Name:      "out_of_range_total",
			Help:      "Channel values outside their configured window",
		}, []string{"sensor", "channel"}),

		alarms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "raised_total",
			Help:      "Threshold alarms raised",
		}, []string{"sensor", "kind"}),

		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"builder", "stage"}),

		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a full sweep over every builder",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),

		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "value",
			Help:      "Last reported channel value",
		}, []string{"sensor", "channel"}),

		reg: reg,
	}

	for _, c := range []prometheus.Collector{
		m.collections, m.retries, m.faults, m.failures, m.restarts,
		m.outOfRange, m.alarms, m.stageDuration, m.sweepDuration, m.values,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Collected implements policy.Recorder.
func (m *Metrics) Collected(sensor string, counted bool) {
	m.collections.WithLabelValues(sensor, strconv.FormatBool(counted)).Inc()
}

// Retried implements policy.Recorder.
func (m *Metrics) Retried(sensor string) { m.retries.WithLabelValues(sensor).Inc() }

// Faulted implements policy.Recorder.
func (m *Metrics) Faulted(sensor string) { m.faults.WithLabelValues(sensor).Inc() }

// Failed implements policy.Recorder.
func (m *Metrics) Failed(sensor string) { m.failures.WithLabelValues(sensor).Inc() }

// Restarted implements policy.Recorder.
func (m *Metrics) Restarted(sensor string) { m.restarts.WithLabelValues(sensor).Inc() }

// OutOfRange implements policy.Recorder.
func (m *Metrics) OutOfRange(sensor string, channel int) {
	m.outOfRange.WithLabelValues(sensor, strconv.Itoa(channel)).Inc()
}

// StageDone implements pipeline.Observer.
func (m *Metrics) StageDone(builder, stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(builder, stage).Observe(d.Seconds())
}

// SweepDone implements pipeline.Observer.
func (m *Metrics) SweepDone(d time.Duration) {
	m.sweepDuration.Observe(d.Seconds())
}

// Alarm counts a raised alarm.
func (m *Metrics) Alarm(a report.Alarm) {
	m.alarms.WithLabelValues(a.Sensor, a.Kind).Inc()
}

// Write implements report.Sink. Only valid readings move the gauge.
func (m *Metrics) Write(_ context.Context, readings []report.Reading) error {
	for _, r := range readings {
		if r.Status != validStatus {
			continue
		}
		m.values.WithLabelValues(r.Sensor, r.Channel).Set(r.Value)
	}
	return nil
}

// WatchPower exports the power source state as a 0/1 gauge.
func (m *Metrics) WatchPower(external func() bool) error {
	return m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "external_power",
		Help:      "1 while the node runs on external power",
	}, func() float64 {
		if external() {
			return 1
		}
		return 0
	}))
}
