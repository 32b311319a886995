// Package ds18b20 drives a Maxim DS18B20 temperature probe on a 1-Wire bus.
package ds18b20

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"periph.io/x/conn/v3/onewire"

	"github.com/nerrad567/gray-logic-sensornode/internal/drivers/hw"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

const (
	cmdSkipROM        = 0xCC
	cmdConvert        = 0x44
	cmdReadScratchpad = 0xBE
	scratchpadSize    = 9
)

var (
	// ErrCRC is returned when the scratchpad fails its checksum.
	ErrCRC = errors.New("ds18b20: scratchpad checksum mismatch")

	// ErrNoProbe is returned when nothing drives the bus during a read.
	ErrNoProbe = errors.New("ds18b20: no probe responding")
)

// Config configures one probe.
type Config struct {
	// Addr selects the probe with Match ROM. Zero addresses the only probe
	// on the bus with Skip ROM.
	Addr  onewire.Address
	Power hw.Power

	PowerDelay time.Duration
	// ConvertDelay is the 12-bit conversion time.
	ConvertDelay time.Duration

	Clock clock.Clock
}

// DefaultConfig returns the datasheet timings for 12-bit resolution.
func DefaultConfig() Config {
	return Config{
		PowerDelay:   50 * time.Millisecond,
		ConvertDelay: 750 * time.Millisecond,
	}
}

// Device is a DS18B20 probe with one temperature channel in °C.
type Device struct {
	sensor.Base
	sensor.Values

	bus onewire.Bus
	cfg Config
}

// New creates a probe named name on bus.
func New(name string, bus onewire.Bus, cfg Config) *Device {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Device{
		Base:   sensor.NewBase(name),
		Values: sensor.NewValues(1),
		bus:    bus,
		cfg:    cfg,
	}
}

// Open powers the probe.
func (d *Device) Open(ctx context.Context) error {
	if err := d.cfg.Power.On(); err != nil {
		return fmt.Errorf("%s: power on: %w", d.Name(), err)
	}
	return hw.Sleep(ctx, d.cfg.Clock, d.cfg.PowerDelay)
}

// Close removes power from the probe.
func (d *Device) Close(context.Context) error {
	return d.cfg.Power.Off()
}

// Collect starts a conversion, waits for it and reads the scratchpad.
func (d *Device) Collect(ctx context.Context) error {
	if err := d.tx([]byte{cmdConvert}, nil, onewire.StrongPullup); err != nil {
		return fmt.Errorf("%s: convert: %w", d.Name(), err)
	}
	if err := hw.Sleep(ctx, d.cfg.Clock, d.cfg.ConvertDelay); err != nil {
		return err
	}

	pad := make([]byte, scratchpadSize)
	if err := d.tx([]byte{cmdReadScratchpad}, pad, onewire.WeakPullup); err != nil {
		return fmt.Errorf("%s: read scratchpad: %w", d.Name(), err)
	}
	temp, err := Decode(pad)
	if err != nil {
		return fmt.Errorf("%s: %w", d.Name(), err)
	}
	d.SetRaw(0, temp)
	return nil
}

func (d *Device) tx(w, r []byte, pull onewire.Pullup) error {
	if d.cfg.Addr == 0 {
		return d.bus.Tx(append([]byte{cmdSkipROM}, w...), r, pull)
	}
	dev := onewire.Dev{Bus: d.bus, Addr: d.cfg.Addr}
	if pull == onewire.StrongPullup {
		return dev.TxPower(w, r)
	}
	return dev.Tx(w, r)
}

// Decode checks a scratchpad and returns its temperature in °C.
func Decode(pad []byte) (float64, error) {
	if len(pad) != scratchpadSize {
		return 0, fmt.Errorf("ds18b20: scratchpad is %d bytes", len(pad))
	}
	if allBytes(pad, 0xFF) || allBytes(pad, 0x00) {
		return 0, ErrNoProbe
	}
	if !onewire.CheckCRC(pad) {
		return 0, ErrCRC
	}
	raw := int16(uint16(pad[1])<<8 | uint16(pad[0]))
	return float64(raw) / 16, nil
}

func allBytes(b []byte, v byte) bool {
	for _, x := range b {
		if x != v {
			return false
		}
	}
	return true
}
