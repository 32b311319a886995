package sensor

import (
	"context"
	"errors"
)

// fakeDevice records calls to every capability.
type fakeDevice struct {
	Base
	Values

	inits, opens, closes, collects int
	openErr, collectErr            error
	lowPower                       []bool
}

func newFakeDevice(name string, channels int) *fakeDevice {
	return &fakeDevice{Base: NewBase(name), Values: NewValues(channels)}
}

func (f *fakeDevice) Init(context.Context) error { f.inits++; return nil }

func (f *fakeDevice) Open(context.Context) error {
	f.opens++
	return f.openErr
}

func (f *fakeDevice) Close(context.Context) error { f.closes++; return nil }

func (f *fakeDevice) Collect(context.Context) error {
	f.collects++
	return f.collectErr
}

// collectOnly implements only the mandatory methods.
type collectOnly struct {
	Values
	name string
}

func (c *collectOnly) Name() string                  { return c.name }
func (c *collectOnly) Collect(context.Context) error { return nil }

// lowPowerDevice has a native low-power mode.
type lowPowerDevice struct {
	*fakeDevice
}

func (l lowPowerDevice) LowPower(_ context.Context, enter bool) error {
	l.lowPower = append(l.lowPower, enter)
	return nil
}

// fakeBus counts module hook invocations.
type fakeBus struct {
	inits, opens, closes int
	openErr              error
}

func (b *fakeBus) InitModule(context.Context, Device) error { b.inits++; return nil }

func (b *fakeBus) OpenModule(context.Context, Device) error {
	b.opens++
	return b.openErr
}

func (b *fakeBus) CloseModule(context.Context, Device) error { b.closes++; return nil }

var errBus = errors.New("bus stuck")
