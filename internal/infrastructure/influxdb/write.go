package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-sensornode/internal/report"
)

// Measurement names.
const (
	readingMeasurement = "sensor_reading"
	alarmMeasurement   = "sensor_alarm"
)

// Write archives readings, one point per channel. It implements report.Sink.
//
// Points are tagged by node, sensor, channel and status; value, count and
// unit are fields. Readings without a timestamp are stamped now.
//
// Parameters:
//   - ctx: Unused; points are queued, not sent
//   - readings: Readings to archive
//
// Returns:
//   - error: ErrNotConnected after Close
func (c *Client) Write(_ context.Context, readings []report.Reading) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	for _, r := range readings {
		c.writePoint(readingPoint(r))
	}
	return nil
}

// WriteAlarm archives a threshold alarm.
func (c *Client) WriteAlarm(a report.Alarm) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ts := a.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	c.writePoint(write.NewPoint(
		alarmMeasurement,
		map[string]string{
			"node":    a.Node,
			"sensor":  a.Sensor,
			"channel": a.Channel,
			"kind":    a.Kind,
		},
		map[string]interface{}{
			"value":     a.Value,
			"threshold": a.Threshold,
		},
		ts,
	))
	return nil
}

func readingPoint(r report.Reading) *write.Point {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	tags := map[string]string{
		"node":    r.Node,
		"sensor":  r.Sensor,
		"channel": r.Channel,
		"status":  r.Status,
	}
	if r.Boot != "" {
		tags["boot"] = r.Boot
	}

	return write.NewPoint(
		readingMeasurement,
		tags,
		map[string]interface{}{
			"value": r.Value,
			"count": int64(r.Count),
			"unit":  int64(r.Unit),
		},
		ts,
	)
}
