// Package power tells the node whether it runs on external power.
//
// Collections made on external power do not drain the battery, so they are
// left out of the consumption count.
package power

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/policy"
)

// Source names.
const (
	SourceStatic = "static"
	SourceGPIO   = "gpio"
)

var (
	// ErrUnknownSource is returned for a source other than static or gpio.
	ErrUnknownSource = errors.New("power: unknown source")
	// ErrNoPin is returned when the gpio source names no usable pin.
	ErrNoPin = errors.New("power: pin not found")
)

// Source reports the power supply state.
type Source interface {
	External() bool
}

// Static is a fixed answer, for nodes that are always on mains or always on
// battery.
type Static bool

// External implements Source.
func (s Static) External() bool { return bool(s) }

// GPIO senses external power on an input pin.
type GPIO struct {
	pin       gpio.PinIn
	activeLow bool
}

// NewGPIO configures pin as a floating input.
func NewGPIO(pin gpio.PinIn, activeLow bool) (*GPIO, error) {
	if pin == nil {
		return nil, ErrNoPin
	}
	if err := pin.In(gpio.Float, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configuring power pin %s: %w", pin.Name(), err)
	}
	return &GPIO{pin: pin, activeLow: activeLow}, nil
}

// External implements Source.
func (g *GPIO) External() bool {
	return (g.pin.Read() == gpio.High) != g.activeLow
}

// PinLookup resolves a GPIO by name, like gpioreg.ByName.
type PinLookup func(name string) gpio.PinIO

// New builds the source described by cfg. An empty source is static.
func New(cfg config.PowerSourceConfig, lookup PinLookup) (Source, error) {
	switch cfg.Source {
	case "", SourceStatic:
		return Static(cfg.External), nil
	case SourceGPIO:
		if lookup == nil || cfg.Pin == "" {
			return nil, fmt.Errorf("%w: %q", ErrNoPin, cfg.Pin)
		}
		pin := lookup(cfg.Pin)
		if pin == nil {
			return nil, fmt.Errorf("%w: %q", ErrNoPin, cfg.Pin)
		}
		return NewGPIO(pin, cfg.ActiveLow)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Source)
}

// AllowCount is the channel hook that counts a collection only while the
// node runs on its own supply.
func AllowCount(src Source) func([]policy.ChannelConfig) bool {
	return func([]policy.ChannelConfig) bool {
		return !src.External()
	}
}
