package drivers

import (
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewirereg"
	"periph.io/x/host/v3"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
)

// Hardware is the set of buses the drivers are built on. Nil buses are
// only an error once a driver needs them.
type Hardware struct {
	I2C     i2c.Bus
	OneWire onewire.Bus
	// Pin resolves a GPIO by name.
	Pin func(name string) gpio.PinIO

	closers []interface{ Close() error }
}

// OpenHardware loads the host drivers and opens the configured buses.
// An empty bus name leaves that bus closed.
func OpenHardware(cfg config.HardwareConfig) (*Hardware, error) {
	hw := &Hardware{Pin: gpioreg.ByName}
	if !cfg.Enabled {
		return hw, nil
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialising host drivers: %w", err)
	}

	if cfg.I2CBus != "" {
		bus, err := i2creg.Open(cfg.I2CBus)
		if err != nil {
			return nil, fmt.Errorf("opening i2c bus %q: %w", cfg.I2CBus, err)
		}
		hw.I2C = bus
		hw.closers = append(hw.closers, bus)
	}

	if cfg.OneWireBus != "" {
		bus, err := onewirereg.Open(cfg.OneWireBus)
		if err != nil {
			return nil, multierr.Append(
				fmt.Errorf("opening 1-wire bus %q: %w", cfg.OneWireBus, err),
				hw.Close(),
			)
		}
		hw.OneWire = bus
		hw.closers = append(hw.closers, bus)
	}

	return hw, nil
}

// Close closes every bus opened by OpenHardware.
func (h *Hardware) Close() error {
	var err error
	for _, c := range h.closers {
		err = multierr.Append(err, c.Close())
	}
	h.closers = nil
	return err
}

func (h *Hardware) pin(name string) (gpio.PinIO, error) {
	if h.Pin == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoPin, name)
	}
	p := h.Pin(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoPin, name)
	}
	return p, nil
}
