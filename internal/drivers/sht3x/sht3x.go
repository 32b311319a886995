// Package sht3x drives the Sensirion SHT3x temperature and humidity sensor
// over I²C.
//
// Channel 0 is temperature in °C and channel 1 relative humidity in %.
// Readings land in the matching raw slots, so builders for this driver use
// the per-channel raw mode.
package sht3x

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"periph.io/x/conn/v3/i2c"

	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/hw"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// DefaultAddr is the sensor address with ADDR tied low.
const DefaultAddr = 0x44

// Channels.
const (
	Temperature = 0
	Humidity    = 1
)

// Sensor commands.
const (
	cmdMeasureLow  = 0x2416 // polling, low repeatability
	cmdSoftReset   = 0x30A2
	cmdHeaterOn    = 0x306D
	cmdHeaterOff   = 0x3066
	cmdReadStatus  = 0xF32D
	cmdClearStatus = 0x3041
)

// Driver commands accepted by Control.
const (
	// CmdHeater switches the internal heater. data: *bool
	CmdHeater = sensor.CmdDriver + iota
	// CmdReadStatus reads the status register. data: *uint16
	CmdReadStatus
	// CmdClearStatus clears the status register alert flags. data: nil
	CmdClearStatus
)

var (
	// ErrCRC is returned when a reading fails its checksum.
	ErrCRC = errors.New("sht3x: checksum mismatch")

	// ErrBroken is returned once the sensor has failed too often in a row.
	// Only a restart clears it.
	ErrBroken = errors.New("sht3x: sensor marked broken")
)

// Config configures one sensor.
type Config struct {
	Addr  uint16
	Power hw.Power

	// PowerDelay is the settle time after switching the rail on.
	PowerDelay time.Duration
	// MeasureDelay is the wait between the measure command and the read.
	MeasureDelay time.Duration
	// ResetDelay is the wait on each side of a power cycle.
	ResetDelay time.Duration

	// Attempts is how many measurements Collect tries, resetting between
	// them, before giving up.
	Attempts int
	// BrokenAfter is the number of failed collections in a row after which
	// the sensor is marked broken.
	BrokenAfter int

	Clock clock.Clock
}

// DefaultConfig returns the timings of the datasheet.
func DefaultConfig() Config {
	return Config{
		Addr:         DefaultAddr,
		PowerDelay:   50 * time.Millisecond,
		MeasureDelay: 10 * time.Millisecond,
		ResetDelay:   10 * time.Millisecond,
		Attempts:     3,
		BrokenAfter:  8,
	}
}

// Device is an SHT3x sensor.
type Device struct {
	sensor.Base
	sensor.Values

	dev i2c.Dev
	cfg Config

	// recovering is set when the sensor failed at init; Collect then makes a
	// single attempt per call without counting failures.
	recovering bool
	errCount   int
	broken     bool
}

// New creates a sensor named name on bus.
func New(name string, bus i2c.Bus, cfg Config) *Device {
	if cfg.Addr == 0 {
		cfg.Addr = DefaultAddr
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Device{
		Base:   sensor.NewBase(name),
		Values: sensor.NewValues(2),
		dev:    i2c.Dev{Bus: bus, Addr: cfg.Addr},
		cfg:    cfg,
	}
}

// Init powers the sensor up, checks that it answers and powers it down
// again. A sensor that does not answer is left in recovery rather than
// failing init.
func (d *Device) Init(ctx context.Context) error {
	if err := d.cfg.Power.On(); err != nil {
		return fmt.Errorf("%s: power on: %w", d.Name(), err)
	}
	defer d.cfg.Power.Off() //nolint:errcheck // Best effort

	d.errCount = 0
	d.broken = false
	d.recovering = true
	for i := 0; i < d.cfg.Attempts; i++ {
		if err := d.reset(ctx); err != nil {
			return err
		}
		if _, _, err := d.measure(ctx); err == nil {
			d.recovering = false
			break
		}
	}
	return nil
}

// Open switches the rail on and waits for the sensor to settle.
func (d *Device) Open(ctx context.Context) error {
	if err := d.cfg.Power.On(); err != nil {
		return fmt.Errorf("%s: power on: %w", d.Name(), err)
	}
	return hw.Sleep(ctx, d.cfg.Clock, d.cfg.PowerDelay)
}

// Close switches the rail off.
func (d *Device) Close(context.Context) error {
	return d.cfg.Power.Off()
}

// Collect measures temperature and humidity into the raw slots.
func (d *Device) Collect(ctx context.Context) error {
	if d.broken {
		return ErrBroken
	}

	attempts := d.cfg.Attempts
	if d.recovering {
		attempts = 1
	}

	var (
		temp, hum float64
		err       error
	)
	for i := 0; i < attempts; i++ {
		if temp, hum, err = d.measure(ctx); err == nil {
			break
		}
		if i < attempts-1 {
			if rerr := d.reset(ctx); rerr != nil {
				return rerr
			}
		}
	}

	if err != nil {
		if !d.recovering {
			d.errCount++
		}
		if d.cfg.BrokenAfter > 0 && d.errCount > d.cfg.BrokenAfter {
			d.broken = true
		}
		return fmt.Errorf("%s: %w", d.Name(), err)
	}

	d.errCount = 0
	d.recovering = false
	d.SetRaw(Temperature, temp)
	d.SetRaw(Humidity, hum)
	return nil
}

// Broken reports whether the sensor has been given up on.
func (d *Device) Broken() bool { return d.broken }

// Control handles the driver commands and the generic data commands.
func (d *Device) Control(cmd sensor.Command, ch sensor.Channel, data any) error {
	switch cmd {
	case CmdHeater:
		on, ok := data.(*bool)
		if !ok || on == nil {
			return sensor.ErrBadData
		}
		c := uint16(cmdHeaterOff)
		if *on {
			c = cmdHeaterOn
		}
		return d.command(c)
	case CmdReadStatus:
		out, ok := data.(*uint16)
		if !ok || out == nil {
			return sensor.ErrBadData
		}
		v, err := d.readWord(cmdReadStatus)
		if err != nil {
			return err
		}
		*out = v
		return nil
	case CmdClearStatus:
		return d.command(cmdClearStatus)
	}
	return d.Values.Control(cmd, ch, data)
}

func (d *Device) command(c uint16) error {
	if err := d.dev.Tx([]byte{byte(c >> 8), byte(c)}, nil); err != nil {
		return fmt.Errorf("%s: command %#04x: %w", d.Name(), c, err)
	}
	return nil
}

func (d *Device) readWord(c uint16) (uint16, error) {
	if err := d.command(c); err != nil {
		return 0, err
	}
	buf := make([]byte, 3)
	if err := d.dev.Tx(nil, buf); err != nil {
		return 0, fmt.Errorf("%s: read: %w", d.Name(), err)
	}
	if hw.CRC8(buf[:2]) != buf[2] {
		return 0, ErrCRC
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

// measure runs one polled measurement.
func (d *Device) measure(ctx context.Context) (temp, hum float64, err error) {
	if err := d.command(cmdMeasureLow); err != nil {
		return 0, 0, err
	}
	if err := hw.Sleep(ctx, d.cfg.Clock, d.cfg.MeasureDelay); err != nil {
		return 0, 0, err
	}

	buf := make([]byte, 6)
	if err := d.dev.Tx(nil, buf); err != nil {
		return 0, 0, fmt.Errorf("%s: read: %w", d.Name(), err)
	}
	if hw.CRC8(buf[0:2]) != buf[2] || hw.CRC8(buf[3:5]) != buf[5] {
		return 0, 0, ErrCRC
	}

	rawT := uint16(buf[0])<<8 | uint16(buf[1])
	rawH := uint16(buf[3])<<8 | uint16(buf[4])
	return Celsius(rawT), RelativeHumidity(rawH), nil
}

// reset power-cycles the sensor and issues a soft reset.
func (d *Device) reset(ctx context.Context) error {
	if d.cfg.Power.Pin != nil {
		if err := d.cfg.Power.Off(); err != nil {
			return fmt.Errorf("%s: power off: %w", d.Name(), err)
		}
		if err := hw.Sleep(ctx, d.cfg.Clock, d.cfg.ResetDelay); err != nil {
			return err
		}
		if err := d.cfg.Power.On(); err != nil {
			return fmt.Errorf("%s: power on: %w", d.Name(), err)
		}
	}
	// A sensor that is mid-reset NACKs; the measurement will tell.
	_ = d.command(cmdSoftReset) //nolint:errcheck // See above
	return hw.Sleep(ctx, d.cfg.Clock, d.cfg.ResetDelay)
}

// Celsius converts a raw temperature word.
func Celsius(raw uint16) float64 {
	return 175*float64(raw)/65535 - 45
}

// RelativeHumidity converts a raw humidity word.
func RelativeHumidity(raw uint16) float64 {
	return 100 * float64(raw) / 65535
}
