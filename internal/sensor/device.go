package sensor

import "context"

// Device is one physical sensor.
//
// Collect acquires a fresh reading into the device's raw slots. Control
// reads and writes per-channel status and values (see Command and Channel).
// Everything else a device can do is optional and expressed through the
// Initializer, Opener, Closer and LowPowerer interfaces.
type Device interface {
	Name() string
	Collect(ctx context.Context) error
	Control(cmd Command, ch Channel, data any) error
}

// Initializer is implemented by devices that need one-time setup.
type Initializer interface {
	Init(ctx context.Context) error
}

// Opener is implemented by devices that must be powered or prepared before a collection.
type Opener interface {
	Open(ctx context.Context) error
}

// Closer is implemented by devices that release power or the bus after a collection.
type Closer interface {
	Close(ctx context.Context) error
}

// LowPowerer is implemented by devices with a dedicated low-power mode.
// Devices without one fall back to Close/Open.
type LowPowerer interface {
	LowPower(ctx context.Context, enter bool) error
}

// Member is implemented by devices that can belong to a Module.
// Embedding Base satisfies it.
type Member interface {
	Module() *Module
	setModule(m *Module)
}

// Owned is implemented by devices that remember the handle of the builder
// that drives them. Embedding Base satisfies it.
type Owned interface {
	Owner() (int, bool)
	SetOwner(handle int)
}

// Base carries the bookkeeping every driver shares: its name, the module it
// belongs to and the handle of its owning builder. Drivers embed it.
type Base struct {
	name   string
	module *Module
	owner  int // handle + 1, zero when unowned
}

// NewBase returns a Base for a device called name.
func NewBase(name string) Base {
	return Base{name: name}
}

// Name returns the device name.
func (b *Base) Name() string { return b.name }

// Module returns the module the device belongs to, or nil.
func (b *Base) Module() *Module { return b.module }

func (b *Base) setModule(m *Module) { b.module = m }

// Owner returns the handle of the builder driving this device.
func (b *Base) Owner() (int, bool) {
	if b.owner == 0 {
		return 0, false
	}
	return b.owner - 1, true
}

// SetOwner records the handle of the builder driving this device.
func (b *Base) SetOwner(handle int) { b.owner = handle + 1 }

// ModuleOf returns the module dev belongs to, or nil.
func ModuleOf(dev Device) *Module {
	if m, ok := dev.(Member); ok {
		return m.Module()
	}
	return nil
}
