package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-sensornode/internal/report"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

var errCollect = errors.New("no ack from sensor")

// scriptedDevice returns the queued collect results in order; the last one
// repeats. A successful collect loads readings into the raw slots.
type scriptedDevice struct {
	sensor.Base
	sensor.Values

	results  []error
	readings []float64

	opens, closes, collects int
}

func newScripted(name string, readings ...float64) *scriptedDevice {
	return &scriptedDevice{
		Base:     sensor.NewBase(name),
		Values:   sensor.NewValues(len(readings)),
		readings: readings,
	}
}

func (d *scriptedDevice) Open(context.Context) error  { d.opens++; return nil }
func (d *scriptedDevice) Close(context.Context) error { d.closes++; return nil }

func (d *scriptedDevice) Collect(context.Context) error {
	d.collects++
	var err error
	if len(d.results) > 0 {
		err = d.results[0]
		if len(d.results) > 1 {
			d.results = d.results[1:]
		}
	}
	if err == nil {
		for i, r := range d.readings {
			d.SetRaw(i, r)
		}
	}
	return err
}

func (d *scriptedDevice) value(t *testing.T, ch int) float64 {
	t.Helper()
	v, err := sensor.Value(d, sensor.Channel(ch))
	if err != nil {
		t.Fatalf("Value(%d) error = %v", ch, err)
	}
	return v
}

func (d *scriptedDevice) status(ch int) sensor.DataStatus {
	s, _ := sensor.Status(d, sensor.Channel(ch))
	return s
}

type countingRestarter struct{ restarts int }

func (r *countingRestarter) Restart() { r.restarts++ }

type mapStore map[uint32]CalibrationRecord

func (m mapStore) Calibration(_ context.Context, key uint32) (CalibrationRecord, error) {
	rec, ok := m[key]
	if !ok {
		return CalibrationRecord{}, ErrCalibrationNotFound
	}
	return rec, nil
}

type captureSink struct{ readings []report.Reading }

func (c *captureSink) Write(_ context.Context, r []report.Reading) error {
	c.readings = append(c.readings, r...)
	return nil
}

func channels(n int) []ChannelConfig {
	cfg := make([]ChannelConfig, n)
	for i := range cfg {
		cfg[i].ApplyDefaults()
	}
	return cfg
}
