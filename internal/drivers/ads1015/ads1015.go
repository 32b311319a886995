// Package ads1015 drives the TI ADS1015 12-bit ADC over I²C.
//
// The converter is shared by several probes, so an ADC is meant to be the
// driver of a sensor.Module: it implements sensor.ModuleOpener and
// sensor.ModuleCloser and refuses to sample while the module is closed.
package ads1015

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/hw"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// DefaultAddr is the address with ADDR tied to ground.
const DefaultAddr = 0x48

// Registers.
const (
	regConversion = 0x00
	regConfig     = 0x01
)

// Config register fields.
const (
	bitOS     = 15
	shiftMux  = 12
	shiftPGA  = 9
	bitMode   = 8
	shiftRate = 5

	maskMux  = 0x7 << shiftMux
	maskPGA  = 0x7 << shiftPGA
	maskRate = 0x7 << shiftRate
)

// Mux selects the input pair.
type Mux uint8

// Inputs.
const (
	Diff01 Mux = iota
	Diff03
	Diff13
	Diff23
	Single0
	Single1
	Single2
	Single3
)

// FSR is the programmable gain, named by its full-scale range in mV.
type FSR uint8

// Full-scale ranges.
const (
	FSR6144 FSR = iota
	FSR4096
	FSR2048
	FSR1024
	FSR512
	FSR256
)

var fsrMillivolts = [...]float64{6144, 4096, 2048, 1024, 512, 256}

// LSB returns the weight of one code in mV.
func (f FSR) LSB() float64 {
	if int(f) >= len(fsrMillivolts) {
		return fsrMillivolts[FSR256] / 2048
	}
	return fsrMillivolts[f] / 2048
}

// Mode is the conversion mode.
type Mode uint8

// Modes.
const (
	Continuous Mode = iota
	SingleShot
)

// DataRate is the conversion rate.
type DataRate uint8

// Data rates.
const (
	SPS128 DataRate = iota
	SPS250
	SPS490
	SPS920
	SPS1600
	SPS2400
	SPS3300
)

// ErrClosed is returned when sampling while the owning module is closed.
var ErrClosed = errors.New("ads1015: converter is closed")

// Sample is one conversion result. OK is false when the read failed.
type Sample struct {
	Code int16
	OK   bool
}

// Config configures the converter.
type Config struct {
	Addr uint16
	// Speed is applied to the bus when the module opens. Zero keeps the
	// bus speed.
	Speed physic.Frequency
	// SampleDelay is the wait before each conversion read.
	SampleDelay time.Duration
	Clock       clock.Clock
}

// DefaultConfig returns the converter defaults.
func DefaultConfig() Config {
	return Config{
		Addr:        DefaultAddr,
		Speed:       400 * physic.KiloHertz,
		SampleDelay: 10 * time.Millisecond,
	}
}

// ADC is one ADS1015.
type ADC struct {
	bus i2c.Bus
	dev i2c.Dev
	cfg Config

	mu   sync.Mutex
	open bool
}

var (
	_ sensor.ModuleOpener = (*ADC)(nil)
	_ sensor.ModuleCloser = (*ADC)(nil)
)

// New creates a converter on bus.
func New(bus i2c.Bus, cfg Config) *ADC {
	if cfg.Addr == 0 {
		cfg.Addr = DefaultAddr
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &ADC{bus: bus, dev: i2c.Dev{Bus: bus, Addr: cfg.Addr}, cfg: cfg}
}

// OpenModule readies the bus for the members.
func (a *ADC) OpenModule(_ context.Context, dev sensor.Device) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.Speed > 0 {
		if err := a.bus.SetSpeed(a.cfg.Speed); err != nil {
			return fmt.Errorf("ads1015: setting bus speed for %s: %w", dev.Name(), err)
		}
	}
	a.open = true
	return nil
}

// CloseModule marks the converter closed.
func (a *ADC) CloseModule(context.Context, sensor.Device) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = false
	return nil
}

// Configure writes mux, mode, gain and rate, keeping the comparator bits.
func (a *ADC) Configure(mux Mux, mode Mode, fsr FSR, rate DataRate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.configure(mux, mode, fsr, rate)
}

func (a *ADC) configure(mux Mux, mode Mode, fsr FSR, rate DataRate) error {
	reg, err := a.read(regConfig)
	if err != nil {
		return err
	}
	reg &^= 1<<bitOS | maskMux | maskPGA | 1<<bitMode | maskRate
	reg |= uint16(mux)<<shiftMux | uint16(fsr)<<shiftPGA | uint16(mode)<<bitMode | uint16(rate)<<shiftRate
	return a.write(regConfig, reg)
}

// Collect configures the input and takes n samples at 128 SPS. In
// continuous mode the first conversion is read twice so the result belongs
// to the new configuration. Failed reads are reported per sample.
func (a *ADC) Collect(ctx context.Context, mux Mux, mode Mode, fsr FSR, n int) ([]Sample, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.open {
		return nil, ErrClosed
	}
	if err := a.configure(mux, mode, fsr, SPS128); err != nil {
		return nil, fmt.Errorf("ads1015: configuring: %w", err)
	}

	out := make([]Sample, n)
	for i := range out {
		if mode == SingleShot {
			if err := hw.Sleep(ctx, a.cfg.Clock, a.cfg.SampleDelay); err != nil {
				return nil, err
			}
			if err := a.trigger(); err != nil {
				continue
			}
		}
		if err := hw.Sleep(ctx, a.cfg.Clock, a.cfg.SampleDelay); err != nil {
			return nil, err
		}
		if i == 0 && mode == Continuous {
			_, _ = a.read(regConversion) //nolint:errcheck // Stale result
			if err := hw.Sleep(ctx, a.cfg.Clock, a.cfg.SampleDelay); err != nil {
				return nil, err
			}
		}
		v, err := a.read(regConversion)
		if err != nil {
			continue
		}
		out[i] = Sample{Code: int16(v) >> 4, OK: true}
	}
	return out, nil
}

func (a *ADC) trigger() error {
	reg, err := a.read(regConfig)
	if err != nil {
		return err
	}
	return a.write(regConfig, reg|1<<bitOS)
}

func (a *ADC) read(reg byte) (uint16, error) {
	buf := make([]byte, 2)
	if err := a.dev.Tx([]byte{reg}, buf); err != nil {
		return 0, fmt.Errorf("reading register %d: %w", reg, err)
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

func (a *ADC) write(reg byte, v uint16) error {
	if err := a.dev.Tx([]byte{reg, byte(v >> 8), byte(v)}, nil); err != nil {
		return fmt.Errorf("writing register %d: %w", reg, err)
	}
	return nil
}
