package sensor

import (
	"context"
	"fmt"
)

// Init initialises dev, running its module's init hook first if the module
// has not been initialised yet.
func Init(ctx context.Context, dev Device) error {
	if dev == nil {
		return ErrNilDevice
	}
	in, ok := dev.(Initializer)
	if !ok {
		return fmt.Errorf("%s init: %w", dev.Name(), ErrUnsupported)
	}
	if m := ModuleOf(dev); m != nil {
		if err := m.transition(ctx, ModuleInit, dev); err != nil {
			return fmt.Errorf("%s init: %w", dev.Name(), err)
		}
	}
	return in.Init(ctx)
}

// Open prepares dev for a collection.
func Open(ctx context.Context, dev Device) error {
	if dev == nil {
		return ErrNilDevice
	}
	op, ok := dev.(Opener)
	if !ok {
		return fmt.Errorf("%s open: %w", dev.Name(), ErrUnsupported)
	}
	if m := ModuleOf(dev); m != nil {
		if err := m.transition(ctx, ModuleOpen, dev); err != nil {
			return fmt.Errorf("%s open: %w", dev.Name(), err)
		}
	}
	return op.Open(ctx)
}

// Close releases dev after a collection.
func Close(ctx context.Context, dev Device) error {
	if dev == nil {
		return ErrNilDevice
	}
	cl, ok := dev.(Closer)
	if !ok {
		return fmt.Errorf("%s close: %w", dev.Name(), ErrUnsupported)
	}
	if m := ModuleOf(dev); m != nil {
		if err := m.transition(ctx, ModuleClose, dev); err != nil {
			return fmt.Errorf("%s close: %w", dev.Name(), err)
		}
	}
	return cl.Close(ctx)
}

// Collect acquires a reading from dev.
//
// For module members the device collect only runs when the module is not
// already in the read state, so repeated collects against one bus state are
// coalesced into the first.
func Collect(ctx context.Context, dev Device) error {
	if dev == nil {
		return ErrNilDevice
	}
	m := ModuleOf(dev)
	if m == nil {
		return dev.Collect(ctx)
	}
	if m.status == ModuleRead {
		return nil
	}
	if err := dev.Collect(ctx); err != nil {
		return err
	}
	m.status = ModuleRead
	return nil
}

// LowPower moves dev into (enter) or out of low-power mode. The module is
// transitioned first. Devices without a LowPowerer fall back to Close and
// Open and must implement both.
func LowPower(ctx context.Context, dev Device, enter bool) error {
	if dev == nil {
		return ErrNilDevice
	}

	status := ModuleLowPowerOut
	if enter {
		status = ModuleLowPowerIn
	}

	var device func(context.Context) error
	if lp, ok := dev.(LowPowerer); ok {
		device = func(ctx context.Context) error { return lp.LowPower(ctx, enter) }
	} else {
		op, okOpen := dev.(Opener)
		cl, okClose := dev.(Closer)
		if !okOpen || !okClose {
			return fmt.Errorf("%s low power: %w", dev.Name(), ErrUnsupported)
		}
		device = op.Open
		if enter {
			device = cl.Close
		}
	}

	if m := ModuleOf(dev); m != nil {
		if err := m.transition(ctx, status, dev); err != nil {
			return fmt.Errorf("%s low power: %w", dev.Name(), err)
		}
	}
	return device(ctx)
}

// Control dispatches cmd to dev. The channel and data are interpreted by the
// device alone.
func Control(dev Device, cmd Command, ch Channel, data any) error {
	if dev == nil {
		return ErrNilDevice
	}
	return dev.Control(cmd, ch, data)
}

// Status returns the data status of channel ch.
func Status(dev Device, ch Channel) (DataStatus, error) {
	var s DataStatus
	err := Control(dev, CmdStatusGet, ch, &s)
	return s, err
}

// SetStatus sets the data status of channel ch.
func SetStatus(dev Device, ch Channel, s DataStatus) error {
	return Control(dev, CmdStatusSet, ch, &s)
}

// Value returns the value held in channel ch. Use Raw(i) for raw readings.
func Value(dev Device, ch Channel) (float64, error) {
	var v float64
	err := Control(dev, CmdDataGet, ch, &v)
	return v, err
}

// SetValue stores v in channel ch.
func SetValue(dev Device, ch Channel, v float64) error {
	return Control(dev, CmdDataSet, ch, &v)
}
