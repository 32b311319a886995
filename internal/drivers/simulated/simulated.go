// Package simulated provides a sensor that produces scripted readings. It
// stands in for hardware on development hosts and in end-to-end tests.
package simulated

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// Driver commands accepted by Control.
const (
	// CmdSetBase replaces the base reading of channel ch. data: *float64
	CmdSetBase = sensor.CmdDriver + iota
	// CmdFail makes the next n collections fail. data: *int
	CmdFail
)

// ErrInjected is returned by Collect while failures are injected.
var ErrInjected = errors.New("simulated: injected failure")

// Config configures a simulated sensor.
type Config struct {
	// Base holds one starting reading per channel.
	Base []float64
	// Step is added to every channel on each collection.
	Step float64
	// FailEvery makes every n-th collection fail. Zero never fails.
	FailEvery int
}

// Device is a simulated sensor.
type Device struct {
	sensor.Base
	sensor.Values

	mu      sync.Mutex
	cfg     Config
	base    []float64
	count   int
	failing int
	opened  bool
}

// New creates a simulated sensor named name.
func New(name string, cfg Config) *Device {
	if len(cfg.Base) == 0 {
		cfg.Base = []float64{0}
	}
	return &Device{
		Base:   sensor.NewBase(name),
		Values: sensor.NewValues(len(cfg.Base)),
		cfg:    cfg,
		base:   append([]float64(nil), cfg.Base...),
	}
}

// Init resets the script.
func (d *Device) Init(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count = 0
	d.failing = 0
	return nil
}

// Open marks the sensor powered.
func (d *Device) Open(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	return nil
}

// Close marks the sensor unpowered.
func (d *Device) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}

// Opened reports whether the sensor is between Open and Close.
func (d *Device) Opened() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Collect produces the next scripted reading.
func (d *Device) Collect(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count++
	if d.failing > 0 {
		d.failing--
		return ErrInjected
	}
	if d.cfg.FailEvery > 0 && d.count%d.cfg.FailEvery == 0 {
		return ErrInjected
	}
	for i, b := range d.base {
		d.SetRaw(i, b+d.cfg.Step*float64(d.count))
	}
	return nil
}

// Control handles the driver commands and the generic data commands.
func (d *Device) Control(cmd sensor.Command, ch sensor.Channel, data any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch cmd {
	case CmdSetBase:
		v, ok := data.(*float64)
		if !ok || v == nil {
			return sensor.ErrBadData
		}
		i := ch.Index()
		if i >= len(d.base) {
			return sensor.ErrBadChannel
		}
		d.base[i] = *v
		return nil
	case CmdFail:
		n, ok := data.(*int)
		if !ok || n == nil {
			return sensor.ErrBadData
		}
		d.failing = *n
		return nil
	}
	return d.Values.Control(cmd, ch, data)
}
