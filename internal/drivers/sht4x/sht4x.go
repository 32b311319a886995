// Package sht4x drives the Sensirion SHT4x temperature and humidity sensor
// over I²C using its high-precision measurement.
package sht4x

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

// DefaultAddr is the fixed address of the SHT40-AD.
const DefaultAddr = 0x44

// Channels.
const (
	Temperature = 0
	Humidity    = 1
)

const (
	cmdMeasureHigh = 0xFD
	cmdSerial      = 0x89
	cmdSoftReset   = 0x94
)

// Driver commands accepted by Control.
const (
	// CmdSerial reads the serial number. data: *uint32
	CmdSerial = sensor.CmdDriver + iota
	// CmdReset issues a soft reset. data: nil
	CmdReset
)

// ErrCRC is returned when a reading fails its checksum.
var ErrCRC = errors.New("sht4x: checksum mismatch")

// Config configures one sensor.
type Config struct {
	Addr uint16
	// Delay is the wait between a command and its result.
	Delay time.Duration
	Clock clock.Clock
}

// DefaultConfig returns the datasheet timing.
func DefaultConfig() Config {
	return Config{Addr: DefaultAddr, Delay: 10 * time.Millisecond}
}

// Device is an SHT4x sensor. It needs no power sequencing, so it only
// implements Collect and Control.
type Device struct {
	sensor.Base
	sensor.Values

	dev i2c.Dev
	cfg Config
}

// New creates a sensor named name on bus.
func New(name string, bus i2c.Bus, cfg Config) *Device {
	if cfg.Addr == 0 {
		cfg.Addr = DefaultAddr
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

// Collect measures temperature and humidity into the raw slots.
func (d *Device) Collect(ctx context.Context) error {
	t, h, err := d.words(ctx, cmdMeasureHigh)
	if err != nil {
		return err
	}
	d.SetRaw(Temperature, Celsius(t))
	d.SetRaw(Humidity, RelativeHumidity(h))
	return nil
}

// Control handles the driver commands and the generic data commands.
func (d *Device) Control(cmd sensor.Command, ch sensor.Channel, data any) error {
	switch cmd {
	case CmdSerial:
		out, ok := data.(*uint32)
		if !ok || out == nil {
			return sensor.ErrBadData
		}
		hi, lo, err := d.words(context.Background(), cmdSerial)
		if err != nil {
			return err
		}
		*out = uint32(hi)<<16 | uint32(lo)
		return nil
	case CmdReset:
		if err := d.dev.Tx([]byte{cmdSoftReset}, nil); err != nil {
			return fmt.Errorf("%s: reset: %w", d.Name(), err)
		}
		return hw.Sleep(context.Background(), d.cfg.Clock, d.cfg.Delay)
	}
	return d.Values.Control(cmd, ch, data)
}

// words sends c and reads back two CRC-protected words.
func (d *Device) words(ctx context.Context, c byte) (uint16, uint16, error) {
	if err := d.dev.Tx([]byte{c}, nil); err != nil {
		return 0, 0, fmt.Errorf("%s: command %#02x: %w", d.Name(), c, err)
	}
	if err := hw.Sleep(ctx, d.cfg.Clock, d.cfg.Delay); err != nil {
		return 0, 0, err
	}
	buf := make([]byte, 6)
	if err := d.dev.Tx(nil, buf); err != nil {
		return 0, 0, fmt.Errorf("%s: read: %w", d.Name(), err)
	}
	if hw.CRC8(buf[0:2]) != buf[2] || hw.CRC8(buf[3:5]) != buf[5] {
		return 0, 0, ErrCRC
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), uint16(buf[3])<<8 | uint16(buf[4]), nil
}

// Celsius converts a raw temperature word.
func Celsius(raw uint16) float64 {
	return 175*float64(raw)/65535 - 45
}

// RelativeHumidity converts a raw humidity word, clamped to [0, 100].
func RelativeHumidity(raw uint16) float64 {
	h := 125*float64(raw)/65535 - 6
	switch {
	case h > 100:
		return 100
	case h < 0:
		return 0
	}
	return h
}
