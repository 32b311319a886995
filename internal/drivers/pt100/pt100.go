// Package pt100 reads PT100 platinum resistance probes through an ADS1015.
//
// Each probe is excited by a reference resistor. Collect samples the voltage
// across the reference to derive the excitation current, then the voltage
// across the probe, and converts the resulting resistance to °C with the
// Callendar-Van Dusen equation. Probes sharing a converter belong to one
// sensor.Module whose driver is the *ads1015.ADC.
package pt100

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/ads1015"
	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/hw"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// Callendar-Van Dusen coefficients for IEC 60751 probes.
const (
	cvdA = 3.9083e-3
	cvdB = -5.775e-7
	cvdC = -4.183e-12
)

const (
	// OutOfRange is the temperature reported for resistances outside the
	// -200 °C to 850 °C span of the probe.
	OutOfRange = 3276.7

	// DoorContact is the raw value stored when a door contact rather than a
	// probe is wired to the input.
	DoorContact = 32767

	// refResistor is the excitation reference in Ω.
	refResistor = 1800
	// doorContactMillivolts is the reference voltage at or above which the
	// input is treated as a door contact.
	doorContactMillivolts = 1950
	// switchRangeCode is the filtered code at which the 256 mV range is too
	// narrow and the probe moves to 512 mV.
	switchRangeCode = 2000

	maxIterations = 50
	tolerance     = 0.001
)

// Driver commands accepted by Control.
const (
	// CmdRange reads the current full-scale range of the probe input. data: *ads1015.FSR
	CmdRange = sensor.CmdDriver + iota
	// CmdResetRange puts the probe input back on its configured range. data: nil
	CmdResetRange
)

// ErrNoSamples is returned when every conversion of a burst failed.
var ErrNoSamples = errors.New("pt100: no usable samples")

// Config configures one probe.
type Config struct {
	// Ref is the converter input across the reference resistor.
	Ref ads1015.Mux
	// Input is the converter input across the probe.
	Input ads1015.Mux
	// Range is the starting full-scale range of the probe input.
	Range ads1015.FSR

	Power      hw.Power
	PowerDelay time.Duration
	// Samples is the burst length per measurement.
	Samples int

	Clock clock.Clock
}

// DefaultConfig returns the settings of the reference board for input in.
func DefaultConfig(ref, in ads1015.Mux) Config {
	return Config{
		Ref:        ref,
		Input:      in,
		Range:      ads1015.FSR256,
		PowerDelay: 300 * time.Millisecond,
		Samples:    5,
	}
}

// Device is one PT100 probe.
type Device struct {
	sensor.Base
	sensor.Values

	adc *ads1015.ADC
	cfg Config
	fsr ads1015.FSR
}

// New creates a probe named name read through adc.
func New(name string, adc *ads1015.ADC, cfg Config) *Device {
	if cfg.Samples <= 0 {
		cfg.Samples = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Device{
		Base:   sensor.NewBase(name),
		Values: sensor.NewValues(1),
		adc:    adc,
		cfg:    cfg,
		fsr:    cfg.Range,
	}
}

// Open switches the excitation on and waits for it to settle.
func (d *Device) Open(ctx context.Context) error {
	if err := d.cfg.Power.On(); err != nil {
		return fmt.Errorf("%s: power on: %w", d.Name(), err)
	}
	return hw.Sleep(ctx, d.cfg.Clock, d.cfg.PowerDelay)
}

// Close switches the excitation off.
func (d *Device) Close(context.Context) error {
	return d.cfg.Power.Off()
}

// Collect measures the probe into raw slot 0.
func (d *Device) Collect(ctx context.Context) error {
	ref, err := d.burst(ctx, d.cfg.Ref, ads1015.FSR2048)
	if err != nil {
		return fmt.Errorf("%s: reference: %w", d.Name(), err)
	}
	refMillivolts := ref * ads1015.FSR2048.LSB()
	if refMillivolts >= doorContactMillivolts {
		d.SetRaw(0, DoorContact)
		return nil
	}
	current := refMillivolts / refResistor

	code, err := d.burst(ctx, d.cfg.Input, d.fsr)
	if err != nil {
		return fmt.Errorf("%s: input: %w", d.Name(), err)
	}
	if code >= switchRangeCode && d.fsr == ads1015.FSR256 {
		d.fsr = ads1015.FSR512
		if code, err = d.burst(ctx, d.cfg.Input, d.fsr); err != nil {
			return fmt.Errorf("%s: input: %w", d.Name(), err)
		}
	}

	d.SetRaw(0, Temperature(code*d.fsr.LSB()/current))
	return nil
}

// Control handles the driver commands and the generic data commands.
func (d *Device) Control(cmd sensor.Command, ch sensor.Channel, data any) error {
	switch cmd {
	case CmdRange:
		out, ok := data.(*ads1015.FSR)
		if !ok || out == nil {
			return sensor.ErrBadData
		}
		*out = d.fsr
		return nil
	case CmdResetRange:
		d.fsr = d.cfg.Range
		return nil
	}
	return d.Values.Control(cmd, ch, data)
}

func (d *Device) burst(ctx context.Context, mux ads1015.Mux, fsr ads1015.FSR) (float64, error) {
	samples, err := d.adc.Collect(ctx, mux, ads1015.Continuous, fsr, d.cfg.Samples)
	if err != nil {
		return 0, err
	}
	codes := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.OK {
			codes = append(codes, float64(s.Code))
		}
	}
	if len(codes) == 0 {
		return 0, ErrNoSamples
	}
	return Filter(codes), nil
}

// Filter averages xs after dropping one minimum and one maximum. Fewer than
// three values are averaged as they are.
func Filter(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	if len(s) >= 3 {
		s = s[1 : len(s)-1]
	}
	var sum float64
	for _, x := range s {
		sum += x
	}
	return sum / float64(len(s))
}

// Temperature converts a probe resistance in Ω to °C. Resistances outside
// [18.52, 390.481] give OutOfRange.
func Temperature(r float64) float64 {
	t0 := (r/100 - 1) / cvdA

	var step func(t float64) float64
	switch {
	case r >= 18.52 && r < 100:
		step = func(t float64) float64 {
			t2, t3 := t*t, t*t*t
			f := 100 * (1 + cvdA*t + cvdB*t2 - 100*cvdC*t3 + cvdC*t3*t)
			df := 100 * (cvdA + 2*cvdB*t - 300*cvdC*t2 + 4*cvdC*t3)
			return t + (r-f)/df
		}
	case r >= 100 && r <= 390.481:
		step = func(t float64) float64 {
			f := 100 * (1 + cvdA*t + cvdB*t*t)
			df := 100 * (cvdA + 2*cvdB*t)
			return t + (r-f)/df
		}
	default:
		return OutOfRange
	}

	t := t0
	for i := 0; i < maxIterations; i++ {
		t = step(t0)
		if math.Abs(t-t0) < tolerance {
			break
		}
		t0 = t
	}
	return t
}
