package policy

import (
	"github.com/benbjohnson/clock"

	"github.com/nerrad567/gray-logic-sensornode/internal/report"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// Threshold is an alarm window. Nil bounds are not checked.
type Threshold struct {
	Above *float64
	Below *float64
}

// ThresholdAlarm returns an alarm hook that calls notify when a valid value
// crosses above or below the threshold. It fires once per crossing and
// re-arms when the value returns inside the window.
func ThresholdAlarm(node, channel string, t Threshold, clk clock.Clock, notify func(report.Alarm)) func(sensor.Device, int, float64) {
	if clk == nil {
		clk = clock.New()
	}
	active := ""
	return func(dev sensor.Device, ch int, v float64) {
		if s, err := sensor.Status(dev, sensor.Channel(ch)); err != nil || s != sensor.StatusValid {
			return
		}

		kind, limit := "", 0.0
		switch {
		case t.Above != nil && v > *t.Above:
			kind, limit = "above", *t.Above
		case t.Below != nil && v < *t.Below:
			kind, limit = "below", *t.Below
		}
		if kind == active {
			return
		}
		active = kind
		if kind == "" {
			return
		}
		notify(report.Alarm{
			Node:      node,
			Sensor:    dev.Name(),
			Channel:   channel,
			Index:     ch,
			Value:     v,
			Threshold: limit,
			Kind:      kind,
			Time:      clk.Now(),
		})
	}
}
